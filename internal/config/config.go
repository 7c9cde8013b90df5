package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the contextd API configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Completion CompletionConfig `yaml:"completion"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Context    ContextConfig    `yaml:"context"`
	Analyzer   AnalyzerConfig   `yaml:"analyzer"`
	Auth       AuthConfig       `yaml:"auth"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// EmbeddingConfig holds embedding provider and cache settings.
type EmbeddingConfig struct {
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
	Model         string `yaml:"model"`
	Dimensions    int    `yaml:"dimensions"`
	CacheCapacity int    `yaml:"cache_capacity"`
	CacheTTLHours int    `yaml:"cache_ttl_hours"`
	BatchSize     int    `yaml:"batch_size"`
	BatchDelayMs  int    `yaml:"batch_delay_ms"`
}

// CompletionConfig holds LLM completion provider settings.
type CompletionConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	MaxRetries  int     `yaml:"max_retries"`
}

// PipelineConfig holds request pipeline settings.
type PipelineConfig struct {
	TimeoutSec          int     `yaml:"timeout_sec"`
	MaxMessageLength    int     `yaml:"max_message_length"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// ContextConfig holds context window and retrieval settings.
type ContextConfig struct {
	MaxTurns            int     `yaml:"max_turns"`
	MaxContextTokens    int     `yaml:"max_context_tokens"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	WindowSize          int     `yaml:"window_size"` // fused ranking truncation
}

// AnalyzerConfig holds text analyzer settings. Keyword lists are configuration,
// not code: the language profile selects stopwords and command verbs,
// domain_terms bias the search strategy toward keyword matching.
type AnalyzerConfig struct {
	Language    string   `yaml:"language"` // en, pt (default: en)
	DomainTerms []string `yaml:"domain_terms"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 768
	}
	if c.Embedding.CacheCapacity <= 0 {
		c.Embedding.CacheCapacity = 1000
	}
	if c.Embedding.CacheTTLHours <= 0 {
		c.Embedding.CacheTTLHours = 24
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 64
	}
	if c.Embedding.BatchDelayMs <= 0 {
		c.Embedding.BatchDelayMs = 100
	}
	if c.Completion.Temperature <= 0 {
		c.Completion.Temperature = 0.7
	}
	if c.Completion.MaxTokens <= 0 {
		c.Completion.MaxTokens = 1024
	}
	if c.Completion.MaxRetries <= 0 {
		c.Completion.MaxRetries = 3
	}
	if c.Pipeline.TimeoutSec <= 0 {
		c.Pipeline.TimeoutSec = 30
	}
	if c.Pipeline.MaxMessageLength <= 0 {
		c.Pipeline.MaxMessageLength = 4000
	}
	if c.Pipeline.ConfidenceThreshold <= 0 {
		c.Pipeline.ConfidenceThreshold = 0.5
	}
	if c.Context.MaxTurns <= 0 {
		c.Context.MaxTurns = 50
	}
	if c.Context.MaxContextTokens <= 0 {
		c.Context.MaxContextTokens = 8000
	}
	if c.Context.SimilarityThreshold <= 0 {
		c.Context.SimilarityThreshold = 0.7
	}
	if c.Context.WindowSize <= 0 {
		c.Context.WindowSize = 10
	}
	if c.Analyzer.Language == "" {
		c.Analyzer.Language = "en"
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "contextd:"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if c.Completion.Model == "" {
		return fmt.Errorf("completion.model is required")
	}
	switch c.Analyzer.Language {
	case "en", "pt":
		// ok
	default:
		return fmt.Errorf("analyzer.language must be \"en\" or \"pt\", got %q", c.Analyzer.Language)
	}
	if c.Pipeline.ConfidenceThreshold > 1 {
		return fmt.Errorf("pipeline.confidence_threshold must be in (0, 1], got %g", c.Pipeline.ConfidenceThreshold)
	}
	if c.Context.SimilarityThreshold > 1 {
		return fmt.Errorf("context.similarity_threshold must be in (0, 1], got %g", c.Context.SimilarityThreshold)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
