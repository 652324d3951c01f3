package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, "DATABASE_URL", "")
	setEnv(t, "PIPELINE_CONFIG", "")
	setEnv(t, "PORT", "")
	setEnv(t, "DEFAULT_CONTAMINATION", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultRawDir, cfg.RawDir)
	assert.Equal(t, DefaultContamination, cfg.DefaultContamination)
	assert.Equal(t, int64(DefaultSeed), cfg.AnomalySeed)
	assert.Equal(t, DefaultMinSamples, cfg.MinAnomalySamples)
}

func TestLoad_EnvOverrides(t *testing.T) {
	setEnv(t, "PIPELINE_CONFIG", "")
	setEnv(t, "PORT", "9090")
	setEnv(t, "RAW_DIR", "/tmp/raw")
	setEnv(t, "DEFAULT_CONTAMINATION", "0.1")
	setEnv(t, "ANOMALY_SEED", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "/tmp/raw", cfg.RawDir)
	assert.Equal(t, 0.1, cfg.DefaultContamination)
	assert.Equal(t, int64(7), cfg.AnomalySeed)
}

func TestLoad_InvalidContamination(t *testing.T) {
	setEnv(t, "PIPELINE_CONFIG", "")
	setEnv(t, "DEFAULT_CONTAMINATION", "0.9")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "DEFAULT_CONTAMINATION")
}

func TestLoad_YAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"raw_dir: /srv/raw\ndefault_contamination: 0.2\nmin_anomaly_samples: 10\n",
	), 0o600))

	setEnv(t, "PIPELINE_CONFIG", path)
	setEnv(t, "RAW_DIR", "/tmp/ignored")
	setEnv(t, "DEFAULT_CONTAMINATION", "0.05")

	cfg, err := Load()
	require.NoError(t, err)

	// File wins over environment for the fields it sets.
	assert.Equal(t, "/srv/raw", cfg.RawDir)
	assert.Equal(t, 0.2, cfg.DefaultContamination)
	assert.Equal(t, 10, cfg.MinAnomalySamples)
}

func TestLoad_YAMLOverlayUnknownField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("no_such_field: 1\n"), 0o600))

	setEnv(t, "PIPELINE_CONFIG", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_YAMLOverlayMissingFile(t *testing.T) {
	setEnv(t, "PIPELINE_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := Load()
	assert.Error(t, err)
}
