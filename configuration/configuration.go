// Package configuration loads the YAML configuration of a clusto deployment.
package configuration

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/donnyhardyanto/dxclusto/log"
	utilsOs "github.com/donnyhardyanto/dxclusto/utils/os"
	"github.com/donnyhardyanto/dxclusto/vault"
)

// Environment overrides of the storage section.
const (
	EnvDSN                = "DXCLUSTO_DSN"
	EnvEcho               = "DXCLUSTO_ECHO"
	EnvMaxOpenConnections = "DXCLUSTO_MAX_OPEN_CONNECTIONS"
)

// DefaultEnvFiles are loaded by LoadEnvFiles when no file is named.
var DefaultEnvFiles = []string{".env", "run.env"}

type LogConfiguration struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type StorageConfiguration struct {
	NameId             string        `yaml:"nameid"`
	DSN                string        `yaml:"dsn"`
	Echo               bool          `yaml:"echo"`
	MustConnected      bool          `yaml:"must_connected"`
	MaxOpenConnections int           `yaml:"max_open_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections"`
	ConnMaxLifetime    time.Duration `yaml:"conn_max_lifetime"`
}

type VaultConfiguration struct {
	Address string `yaml:"address"`
	Token   string `yaml:"token"`
	Path    string `yaml:"path"`
	Prefix  string `yaml:"prefix"`
}

type Configuration struct {
	Log     LogConfiguration     `yaml:"log"`
	Storage StorageConfiguration `yaml:"storage"`
	Vault   *VaultConfiguration  `yaml:"vault"`
}

// LoadEnvFiles loads KEY=VALUE files into the environment, missing files are skipped.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = DefaultEnvFiles
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := utilsOs.LoadEnvFile(f); err != nil {
			return err
		}
		log.Log.Infof("Environment file %s loaded", f)
	}
	return nil
}

// Load reads a YAML file, ${VAR} references are expanded from the environment first.
func Load(filename string) (*Configuration, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "CONFIGURATION_READ_ERROR:%s", filename)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "file=%s", filename)
	}
	return c, nil
}

func Parse(data []byte) (*Configuration, error) {
	c := &Configuration{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), c); err != nil {
		return nil, errors.Wrap(err, "CONFIGURATION_PARSE_ERROR")
	}
	c.applyDefaults()
	if c.Storage.DSN == "" {
		return nil, errors.New("CONFIGURATION_STORAGE_DSN_IS_EMPTY")
	}
	return c, nil
}

func (c *Configuration) applyDefaults() {
	if c.Storage.NameId == "" {
		c.Storage.NameId = "clusto"
	}
	c.Storage.DSN = utilsOs.GetEnvDefaultValue(EnvDSN, c.Storage.DSN)
	c.Storage.Echo = utilsOs.GetEnvDefaultValueAsBool(EnvEcho, c.Storage.Echo)
	c.Storage.MaxOpenConnections = utilsOs.GetEnvDefaultValueAsInt(EnvMaxOpenConnections, c.Storage.MaxOpenConnections)
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// ApplyLog sets the global log level and format.
func (c *Configuration) ApplyLog() error {
	if err := log.SetLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "json":
		log.SetFormatJSON()
	case "text":
		log.SetFormatText()
	default:
		return errors.Errorf("CONFIGURATION_INVALID_LOG_FORMAT:%s", c.Log.Format)
	}
	return nil
}

// ResolveSecrets replaces vault placeholders in the storage DSN.
func (c *Configuration) ResolveSecrets(ctx context.Context) error {
	if c.Vault == nil {
		return nil
	}
	hv := vault.NewHashiCorpVault(c.Vault.Address, c.Vault.Token, c.Vault.Prefix, c.Vault.Path)
	if err := hv.Start(); err != nil {
		return err
	}
	dsn, err := hv.ResolveAsString(ctx, c.Storage.DSN)
	if err != nil {
		return errors.WithMessage(err, "CONFIGURATION_STORAGE_DSN_VAULT_RESOLUTION_ERROR")
	}
	c.Storage.DSN = dsn
	return nil
}
