package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	v, err := Load("")
	require.NoError(t, err)

	cfg, err := Resolve(v)
	require.NoError(t, err)
	assert.Equal(t, ".", cfg.OutputDir)
	assert.Equal(t, QualityNormal, cfg.DefaultQuality)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 2, cfg.MaxBatchesInFlight)
}

func TestLoad_EnvOverridesDefault(t *testing.T) {
	t.Setenv("DSDPIPE_LOG_LEVEL", "debug")

	v, err := Load("")
	require.NoError(t, err)
	cfg, err := Resolve(v)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_FileOverridesDefaultButNotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dsdpipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output_dir: /tmp/out\nlog_level: warn\n"), 0o644))

	t.Setenv("DSDPIPE_LOG_LEVEL", "error")

	v, err := Load(path)
	require.NoError(t, err)
	cfg, err := Resolve(v)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/out", cfg.OutputDir)
	assert.Equal(t, "error", cfg.LogLevel, "env must take precedence over the config file")
}

func TestLoad_MissingConfigFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestResolve_FlagOverrideViaSet(t *testing.T) {
	v, err := Load("")
	require.NoError(t, err)
	v.Set("default_quality", "high")

	cfg, err := Resolve(v)
	require.NoError(t, err)
	assert.Equal(t, QualityHigh, cfg.DefaultQuality)
}
