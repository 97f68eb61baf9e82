package os

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// LoadEnvFile sets KEY=VALUE lines of filename as environment variables.
// A missing file is not an error.
func LoadEnvFile(filename string) error {
	_, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return errors.Wrap(err, "ERROR_IN_LOAD_ENV_FILE_STAT_FILENAME")
	}

	file, err := os.Open(filename)
	if err != nil {
		return errors.Wrap(err, "ERROR_IN_LOAD_ENV_FILE_OPEN")
	}
	defer func() {
		_ = file.Close()
	}()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key, value := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		err := os.Setenv(key, strings.Trim(value, `"`))
		if err != nil {
			return errors.Wrap(err, "ERROR_IN_LOAD_ENV_FILE_SETENV")
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "ERROR_IN_LOAD_ENV_FILE_SCAN")
	}

	return nil
}

func GetEnvDefaultValue(key string, defaultValue string) string {
	value, isPresent := os.LookupEnv(key)
	if !isPresent {
		value = defaultValue
	}
	return value
}

func GetEnvDefaultValueAsInt(key string, defaultValue int) int {
	value, isPresent := os.LookupEnv(key)
	if !isPresent {
		return defaultValue
	}
	valueInt, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return valueInt
}

func GetEnvDefaultValueAsBool(key string, defaultValue bool) bool {
	value, isPresent := os.LookupEnv(key)
	if !isPresent {
		return defaultValue
	}
	return (strings.ToUpper(value) == "TRUE") || (value == "1")
}
