package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv(ConfigFileEnv, "")
	t.Setenv("OCRSPACE_ENGINE", "")
	t.Setenv("FALLBACK_CONFIDENCE", "")
	t.Setenv("DB_URL", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.OCRSpace.Engine)
	assert.Equal(t, "eng", cfg.OCRSpace.Language)
	assert.InDelta(t, 0.5, cfg.Consensus.FallbackConfidence, 1e-9)
	assert.InDelta(t, 0.7, cfg.Consensus.AcceptThreshold, 1e-9)
	assert.Equal(t, 90*time.Second, cfg.Consensus.EngineTimeout)
	assert.Empty(t, cfg.Database.DSN)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv(ConfigFileEnv, "")
	t.Setenv("OCRSPACE_ENGINE", "1")
	t.Setenv("ENGINE_TIMEOUT", "15s")
	t.Setenv("MENU_THRESHOLD", "0.65")
	t.Setenv("VISION_MARKDOWN", "true")
	t.Setenv("DB_MAX_CONNS", "not-a-number")
	t.Setenv("ARBITER_TIMEOUT", "20s")
	t.Setenv("VALIDATOR_TIMEOUT", "10s")
	t.Setenv("VISION_TIMEOUT", "45s")
	t.Setenv("HEIC_CONVERTER", "sips")
	t.Setenv("HEIC_CACHE_DIR", "/var/cache/menuocr")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.OCRSpace.Engine)
	assert.Equal(t, 15*time.Second, cfg.Consensus.EngineTimeout)
	assert.InDelta(t, 0.65, cfg.Consensus.MenuThreshold, 1e-9)
	assert.True(t, cfg.LLM.VisionMarkdown)
	assert.Equal(t, 20*time.Second, cfg.Consensus.ArbiterTimeout)
	assert.Equal(t, 10*time.Second, cfg.Consensus.ValidatorTimeout)
	assert.Equal(t, 45*time.Second, cfg.LLM.VisionTimeout)
	assert.Equal(t, "sips", cfg.Storage.HEICConverter)
	assert.Equal(t, "/var/cache/menuocr", cfg.Storage.HEICCacheDir)
	assert.EqualValues(t, 10, cfg.Database.MaxConns, "unparsable values keep the default")
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "menuocr.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[consensus]
FALLBACK_CONFIDENCE = 0.4
ENGINE_TIMEOUT = "30s"

[ocrspace]
ocrspace_language = "ger"
OCRSPACE_ENGINE = 1
`), 0o644))
	t.Setenv(ConfigFileEnv, path)
	t.Setenv("OCRSPACE_ENGINE", "2")
	t.Setenv("OCRSPACE_LANGUAGE", "")
	t.Setenv("FALLBACK_CONFIDENCE", "")
	t.Setenv("ENGINE_TIMEOUT", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.InDelta(t, 0.4, cfg.Consensus.FallbackConfidence, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.Consensus.EngineTimeout)
	assert.Equal(t, "ger", cfg.OCRSpace.Language)
	assert.Equal(t, 2, cfg.OCRSpace.Engine, "environment wins over the file")
}

func TestLoadConfig_BadFile(t *testing.T) {
	t.Setenv(ConfigFileEnv, filepath.Join(t.TempDir(), "missing.toml"))
	_, err := LoadConfig()
	assert.True(t, IsConfigError(err))

	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("[consensus\n"), 0o644))
	t.Setenv(ConfigFileEnv, path)
	_, err = LoadConfig()
	assert.True(t, IsConfigError(err))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"engine", func(c *Config) { c.OCRSpace.Engine = 3 }, "OCRSPACE_ENGINE"},
		{"fallback confidence", func(c *Config) { c.Consensus.FallbackConfidence = 1.5 }, "FALLBACK_CONFIDENCE"},
		{"accept threshold", func(c *Config) { c.Consensus.AcceptThreshold = -0.1 }, "ACCEPT_THRESHOLD"},
		{"driver", func(c *Config) { c.Database.DSN = "x"; c.Database.Driver = "mysql" }, "DB_DRIVER"},
		{"heic converter", func(c *Config) { c.Storage.HEICConverter = "ffmpeg" }, "HEIC_CONVERTER"},
		{"listeners", func(c *Config) { c.Server.GRPCAddr = ""; c.Server.HTTPAddr = "" }, "GRPC_ADDR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, IsConfigError(err))
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
