package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/joseph-ayodele/menuocr/constants"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	OCRSpace  OCRSpaceConfig
	LLM       LLMConfig
	Consensus ConsensusConfig
	Inbox     InboxConfig
	Storage   StorageConfig
}

// DatabaseConfig holds the audit store configuration. An empty DSN disables recording.
type DatabaseConfig struct {
	Driver           string // postgres | sqlite
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr        string
	HTTPAddr        string
	MaxRequestBytes int64
	RequestTimeout  time.Duration
}

// OCRSpaceConfig configures the structured OCR engine.
type OCRSpaceConfig struct {
	APIKey         string
	URL            string
	Language       string
	Engine         int
	RequestsPerSec float64
	Timeout        time.Duration
}

// LLMConfig configures the chat-completions provider shared by the vision
// engine, the arbiter and the validator.
type LLMConfig struct {
	APIKey          string
	BaseURL         string
	VisionModel     string
	ArbiterModel    string
	ValidatorModel  string
	Timeout         time.Duration
	VisionTimeout   time.Duration
	RequestsPerSec  float64
	VisionMarkdown  bool
	LenientOptional bool
}

// ConsensusConfig holds the tunable constants of arbitration and validation.
type ConsensusConfig struct {
	EngineTimeout      time.Duration
	ArbiterTimeout     time.Duration // 0 leaves the bound to LLM_TIMEOUT
	ValidatorTimeout   time.Duration // 0 leaves the bound to LLM_TIMEOUT
	FallbackConfidence float64
	MenuThreshold      float64
	AcceptThreshold    float64
}

// InboxConfig configures the watched directory of incoming menu photos.
type InboxConfig struct {
	Dir        string
	Debounce   time.Duration
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

// StorageConfig holds credentials for azblob:// image references and the
// HEIC conversion used for local photos.
type StorageConfig struct {
	AzureAccount  string
	AzureKey      string
	HEICConverter string // magick | heif-convert | sips; empty rejects HEIC input
	HEICCacheDir  string
}

// ConfigFileEnv names the environment variable pointing at an optional TOML file.
// The file uses the same keys as the environment, grouped in any tables:
//
//	[consensus]
//	FALLBACK_CONFIDENCE = 0.5
//	ENGINE_TIMEOUT = "90s"
const ConfigFileEnv = "MENUOCR_CONFIG"

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		Server: ServerConfig{
			GRPCAddr:        ":8080",
			HTTPAddr:        ":8081",
			MaxRequestBytes: 16 << 20,
			RequestTimeout:  2 * time.Minute,
		},
		OCRSpace: OCRSpaceConfig{
			URL:      constants.DefaultOCRSpaceURL,
			Language: "eng",
			Engine:   2,
			Timeout:  60 * time.Second,
		},
		LLM: LLMConfig{
			BaseURL:         constants.DefaultGroqBaseURL,
			VisionModel:     constants.DefaultVisionModel,
			ArbiterModel:    constants.DefaultReasoningModel,
			ValidatorModel:  constants.DefaultReasoningModel,
			Timeout:         60 * time.Second,
			LenientOptional: true,
		},
		Consensus: ConsensusConfig{
			EngineTimeout:      90 * time.Second,
			FallbackConfidence: 0.5,
			MenuThreshold:      0.5,
			AcceptThreshold:    0.7,
		},
		Inbox: InboxConfig{
			Debounce:   500 * time.Millisecond,
			Workers:    2,
			QueueSize:  64,
			JobTimeout: 3 * time.Minute,
		},
		Storage: StorageConfig{
			HEICConverter: "magick",
		},
	}
}

// LoadConfig loads configuration from environment variables, falling back to
// the TOML file named by MENUOCR_CONFIG, then to defaults.
func LoadConfig() (*Config, error) {
	src := source{}
	if path := os.Getenv(ConfigFileEnv); path != "" {
		file, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		src = file
	}
	cfg := DefaultConfig()
	src.apply(cfg)
	return cfg, nil
}

// source resolves a key from the environment first, then from the config file.
type source map[string]string

func readConfigFile(path string) (source, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, NewAppError(CodeConfig, "read config file "+path, err)
	}
	var doc map[string]any
	if err := toml.Unmarshal(b, &doc); err != nil {
		return nil, NewAppError(CodeConfig, "parse config file "+path, err)
	}
	out := source{}
	flatten(doc, out)
	return out, nil
}

func flatten(doc map[string]any, out source) {
	for k, v := range doc {
		switch t := v.(type) {
		case map[string]any:
			flatten(t, out)
		case string:
			out[strings.ToUpper(k)] = t
		case float64:
			out[strings.ToUpper(k)] = strconv.FormatFloat(t, 'f', -1, 64)
		default:
			out[strings.ToUpper(k)] = fmt.Sprint(t)
		}
	}
}

func (s source) apply(c *Config) {
	c.Database.Driver = s.getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.DSN = s.getEnv("DB_URL", c.Database.DSN)
	c.Database.MaxConns = s.getEnvAsInt32("DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = s.getEnvAsInt32("DB_MIN_CONNS", c.Database.MinConns)
	c.Database.MaxConnLifetime = s.getEnvAsDuration("DB_MAX_CONN_LIFETIME", c.Database.MaxConnLifetime)
	c.Database.MaxConnIdleTime = s.getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", c.Database.MaxConnIdleTime)
	c.Database.DialTimeout = s.getEnvAsDuration("DB_DIAL_TIMEOUT", c.Database.DialTimeout)
	c.Database.StatementTimeout = s.getEnvAsDuration("DB_STATEMENT_TIMEOUT", c.Database.StatementTimeout)

	c.Server.GRPCAddr = s.getEnv("GRPC_ADDR", c.Server.GRPCAddr)
	c.Server.HTTPAddr = s.getEnv("HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.MaxRequestBytes = int64(s.getEnvAsInt("MAX_REQUEST_BYTES", int(c.Server.MaxRequestBytes)))
	c.Server.RequestTimeout = s.getEnvAsDuration("REQUEST_TIMEOUT", c.Server.RequestTimeout)

	c.OCRSpace.APIKey = s.getEnv("OCRSPACE_API_KEY", c.OCRSpace.APIKey)
	c.OCRSpace.URL = s.getEnv("OCRSPACE_URL", c.OCRSpace.URL)
	c.OCRSpace.Language = s.getEnv("OCRSPACE_LANGUAGE", c.OCRSpace.Language)
	c.OCRSpace.Engine = s.getEnvAsInt("OCRSPACE_ENGINE", c.OCRSpace.Engine)
	c.OCRSpace.RequestsPerSec = s.getEnvAsFloat64("OCRSPACE_RPS", c.OCRSpace.RequestsPerSec)
	c.OCRSpace.Timeout = s.getEnvAsDuration("OCRSPACE_TIMEOUT", c.OCRSpace.Timeout)

	c.LLM.APIKey = s.getEnv("GROQ_API_KEY", c.LLM.APIKey)
	c.LLM.BaseURL = s.getEnv("GROQ_BASE_URL", c.LLM.BaseURL)
	c.LLM.VisionModel = s.getEnv("VISION_MODEL", c.LLM.VisionModel)
	c.LLM.ArbiterModel = s.getEnv("ARBITER_MODEL", c.LLM.ArbiterModel)
	c.LLM.ValidatorModel = s.getEnv("VALIDATOR_MODEL", c.LLM.ValidatorModel)
	c.LLM.Timeout = s.getEnvAsDuration("LLM_TIMEOUT", c.LLM.Timeout)
	c.LLM.VisionTimeout = s.getEnvAsDuration("VISION_TIMEOUT", c.LLM.VisionTimeout)
	c.LLM.RequestsPerSec = s.getEnvAsFloat64("LLM_RPS", c.LLM.RequestsPerSec)
	c.LLM.VisionMarkdown = s.getEnvAsBool("VISION_MARKDOWN", c.LLM.VisionMarkdown)
	c.LLM.LenientOptional = s.getEnvAsBool("LLM_LENIENT", c.LLM.LenientOptional)

	c.Consensus.EngineTimeout = s.getEnvAsDuration("ENGINE_TIMEOUT", c.Consensus.EngineTimeout)
	c.Consensus.ArbiterTimeout = s.getEnvAsDuration("ARBITER_TIMEOUT", c.Consensus.ArbiterTimeout)
	c.Consensus.ValidatorTimeout = s.getEnvAsDuration("VALIDATOR_TIMEOUT", c.Consensus.ValidatorTimeout)
	c.Consensus.FallbackConfidence = s.getEnvAsFloat64("FALLBACK_CONFIDENCE", c.Consensus.FallbackConfidence)
	c.Consensus.MenuThreshold = s.getEnvAsFloat64("MENU_THRESHOLD", c.Consensus.MenuThreshold)
	c.Consensus.AcceptThreshold = s.getEnvAsFloat64("ACCEPT_THRESHOLD", c.Consensus.AcceptThreshold)

	c.Inbox.Dir = s.getEnv("INBOX_DIR", c.Inbox.Dir)
	c.Inbox.Debounce = s.getEnvAsDuration("INBOX_DEBOUNCE", c.Inbox.Debounce)
	c.Inbox.Workers = s.getEnvAsInt("WORKERS", c.Inbox.Workers)
	c.Inbox.QueueSize = s.getEnvAsInt("QUEUE_SIZE", c.Inbox.QueueSize)
	c.Inbox.JobTimeout = s.getEnvAsDuration("JOB_TIMEOUT", c.Inbox.JobTimeout)

	c.Storage.AzureAccount = s.getEnv("AZURE_STORAGE_ACCOUNT", c.Storage.AzureAccount)
	c.Storage.AzureKey = s.getEnv("AZURE_STORAGE_KEY", c.Storage.AzureKey)
	c.Storage.HEICConverter = s.getEnv("HEIC_CONVERTER", c.Storage.HEICConverter)
	c.Storage.HEICCacheDir = s.getEnv("HEIC_CACHE_DIR", c.Storage.HEICCacheDir)
}

// Helper functions for environment variable parsing
func (s source) getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if value := s[key]; value != "" {
		return value
	}
	return defaultValue
}

func (s source) getEnvAsInt(key string, defaultValue int) int {
	if value := s.getEnv(key, ""); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func (s source) getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := s.getEnv(key, ""); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func (s source) getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := s.getEnv(key, ""); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func (s source) getEnvAsBool(key string, defaultValue bool) bool {
	if value := s.getEnv(key, ""); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func (s source) getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := s.getEnv(key, ""); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate checks the loaded configuration. Provider keys are not required here:
// a missing key fails the affected provider call only.
func (c *Config) Validate() error {
	if c.OCRSpace.Engine != 1 && c.OCRSpace.Engine != 2 {
		return NewAppError(CodeConfig, fmt.Sprintf("OCRSPACE_ENGINE must be 1 or 2, got %d", c.OCRSpace.Engine), ErrInvalidInput)
	}
	bounded := []struct {
		name string
		v    float64
	}{
		{"FALLBACK_CONFIDENCE", c.Consensus.FallbackConfidence},
		{"MENU_THRESHOLD", c.Consensus.MenuThreshold},
		{"ACCEPT_THRESHOLD", c.Consensus.AcceptThreshold},
	}
	for _, b := range bounded {
		if b.v < 0 || b.v > 1 {
			return NewAppError(CodeConfig, fmt.Sprintf("%s must be within [0,1], got %v", b.name, b.v), ErrInvalidInput)
		}
	}
	if c.Database.DSN != "" {
		switch strings.ToLower(c.Database.Driver) {
		case "postgres", "sqlite":
		default:
			return NewAppError(CodeConfig, "DB_DRIVER must be postgres or sqlite", ErrInvalidInput)
		}
	}
	switch c.Storage.HEICConverter {
	case "", "magick", "heif-convert", "sips":
	default:
		return NewAppError(CodeConfig, "HEIC_CONVERTER must be magick, heif-convert or sips", ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" && c.Server.HTTPAddr == "" {
		return NewAppError(CodeConfig, "GRPC_ADDR or HTTP_ADDR is required", ErrInvalidInput)
	}
	return nil
}
