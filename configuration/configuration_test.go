package configuration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
log:
  level: debug
  format: text
storage:
  dsn: ${TEST_CLUSTO_DSN}
  echo: true
  max_open_connections: 4
  conn_max_lifetime: 5m
`

func TestParse(t *testing.T) {
	t.Setenv("TEST_CLUSTO_DSN", "sqlite:///clusto.db")
	c, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "sqlite:///clusto.db", c.Storage.DSN)
	assert.Equal(t, "clusto", c.Storage.NameId)
	assert.True(t, c.Storage.Echo)
	assert.Equal(t, 4, c.Storage.MaxOpenConnections)
	assert.Equal(t, 5*time.Minute, c.Storage.ConnMaxLifetime)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Nil(t, c.Vault)
	require.NoError(t, c.ApplyLog())
	require.NoError(t, (&Configuration{Log: LogConfiguration{Level: "info"}}).ApplyLog())
}

func TestParse_EnvOverridesDSN(t *testing.T) {
	t.Setenv("TEST_CLUSTO_DSN", "sqlite:///clusto.db")
	t.Setenv(EnvDSN, "postgres://u:p@h/clusto")
	c, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@h/clusto", c.Storage.DSN)
}

func TestParse_EnvOverridesStorage(t *testing.T) {
	t.Setenv("TEST_CLUSTO_DSN", "sqlite:///clusto.db")
	t.Setenv(EnvEcho, "false")
	t.Setenv(EnvMaxOpenConnections, "9")
	c, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.False(t, c.Storage.Echo)
	assert.Equal(t, 9, c.Storage.MaxOpenConnections)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("storage: ["))
	assert.Error(t, err)

	_, err = Parse([]byte("storage:\n  echo: true\n"))
	assert.Error(t, err)

	c, err := Parse([]byte("storage:\n  dsn: sqlite://\nlog:\n  format: xml\n"))
	require.NoError(t, err)
	assert.Error(t, c.ApplyLog())
}

func TestLoadAndEnvFiles(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "run.env")
	require.NoError(t, os.WriteFile(envFile, []byte("# storage\nTEST_CLUSTO_DSN=\"sqlite://\"\n"), 0o600))
	t.Setenv("TEST_CLUSTO_DSN", "")
	require.NoError(t, LoadEnvFiles(filepath.Join(dir, "missing.env"), envFile))

	cfgFile := filepath.Join(dir, "clusto.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(sample), 0o600))
	c, err := Load(cfgFile)
	require.NoError(t, err)
	assert.Equal(t, "sqlite://", c.Storage.DSN)

	_, err = Load(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestResolveSecrets_NoVault(t *testing.T) {
	c := &Configuration{Storage: StorageConfiguration{DSN: "sqlite://"}}
	require.NoError(t, c.ResolveSecrets(context.Background()))
	assert.Equal(t, "sqlite://", c.Storage.DSN)
}
