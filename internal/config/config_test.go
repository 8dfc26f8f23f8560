package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1280, cfg.Browser.ViewportWidth)
	assert.Equal(t, 800, cfg.Browser.ViewportHeight)
	assert.Equal(t, "jpn+eng", cfg.Extractor.Languages)
	assert.InDelta(t, 0.30, cfg.Extractor.ConfidenceFloor, 1e-9)
	assert.Contains(t, cfg.Extractor.ClassSubstrings, "modal")
	assert.InDelta(t, 0.7, cfg.Classifier.ConfidenceFloor, 1e-9)
	assert.Equal(t, 3, cfg.Verify.MaxRetries)
	assert.Equal(t, 3*time.Second, cfg.Verify.RetryDelay)
	assert.Equal(t, 2*time.Second, cfg.Executor.SettleDelay)
	assert.Equal(t, "diagnostics", cfg.Diagnostics.Dir)
}

func TestValidateRejectsBadValues(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "zero viewport",
			mutate:  func(c *Config) { c.Browser.ViewportWidth = 0 },
			wantErr: "viewport",
		},
		{
			name:    "extractor floor out of range",
			mutate:  func(c *Config) { c.Extractor.ConfidenceFloor = 1.5 },
			wantErr: "confidence floor",
		},
		{
			name:    "classifier floor negative",
			mutate:  func(c *Config) { c.Classifier.ConfidenceFloor = -0.1 },
			wantErr: "confidence floor",
		},
		{
			name:    "left fraction above right",
			mutate:  func(c *Config) { c.Layout.LeftFraction = 0.9 },
			wantErr: "layout fractions",
		},
		{
			name:    "zero retries",
			mutate:  func(c *Config) { c.Verify.MaxRetries = 0 },
			wantErr: "max_retries",
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.Verify.PollInterval = 0 },
			wantErr: "poll_interval",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	content := `
browser:
  viewport_width: 1920
  viewport_height: 1080
  headless: false
extractor:
  languages: "eng"
verify:
  max_retries: 5
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1920, cfg.Browser.ViewportWidth)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "eng", cfg.Extractor.Languages)
	assert.Equal(t, 5, cfg.Verify.MaxRetries)
	// Untouched keys keep their defaults.
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.InDelta(t, 0.2, cfg.Layout.TopFraction, 1e-9)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cwd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(cwd) })
	require.NoError(t, os.Chdir(t.TempDir()))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Verify.MaxRetries)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	content := `
verify:
  max_retries: 0
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_retries")
}
