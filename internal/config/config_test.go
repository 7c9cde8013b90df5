package config

import "testing"

func validBase() Config {
	return Config{
		HTTP: HTTPConfig{Port: 8080},
		Database: DatabaseConfig{
			Addrs: []string{"localhost:6379"},
		},
		Embedding:  EmbeddingConfig{Model: "text-embedding-3-small"},
		Completion: CompletionConfig{Model: "gpt-4o-mini"},
		Analyzer:   AnalyzerConfig{Language: "en"},
	}
}

func TestValidate_InvalidAnalyzerLanguage(t *testing.T) {
	cfg := validBase()
	cfg.Analyzer.Language = "fr"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unsupported analyzer language")
	}

	expected := `analyzer.language must be "en" or "pt", got "fr"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_ValidAnalyzerLanguages(t *testing.T) {
	for _, lang := range []string{"en", "pt"} {
		t.Run("language="+lang, func(t *testing.T) {
			cfg := validBase()
			cfg.Analyzer.Language = lang

			if err := cfg.Validate(); err != nil {
				t.Fatalf("unexpected error for valid language %q: %v", lang, err)
			}
		})
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validBase()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingDatabaseAddrs(t *testing.T) {
	cfg := validBase()
	cfg.Database.Addrs = nil

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing database addrs")
	}
}

func TestValidate_MissingModels(t *testing.T) {
	t.Run("embedding", func(t *testing.T) {
		cfg := validBase()
		cfg.Embedding.Model = ""
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for missing embedding model")
		}
	})

	t.Run("completion", func(t *testing.T) {
		cfg := validBase()
		cfg.Completion.Model = ""
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for missing completion model")
		}
	})
}

func TestValidate_ConfidenceThresholdBounds(t *testing.T) {
	cfg := validBase()
	cfg.Pipeline.ConfidenceThreshold = 1.5

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for confidence threshold > 1")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("expected WriteTimeoutSec=60, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Embedding.Dimensions != 768 {
		t.Errorf("expected Dimensions=768, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.CacheCapacity != 1000 {
		t.Errorf("expected CacheCapacity=1000, got %d", cfg.Embedding.CacheCapacity)
	}
	if cfg.Embedding.CacheTTLHours != 24 {
		t.Errorf("expected CacheTTLHours=24, got %d", cfg.Embedding.CacheTTLHours)
	}
	if cfg.Completion.MaxRetries != 3 {
		t.Errorf("expected MaxRetries=3, got %d", cfg.Completion.MaxRetries)
	}
	if cfg.Pipeline.TimeoutSec != 30 {
		t.Errorf("expected TimeoutSec=30, got %d", cfg.Pipeline.TimeoutSec)
	}
	if cfg.Pipeline.MaxMessageLength != 4000 {
		t.Errorf("expected MaxMessageLength=4000, got %d", cfg.Pipeline.MaxMessageLength)
	}
	if cfg.Context.MaxTurns != 50 {
		t.Errorf("expected MaxTurns=50, got %d", cfg.Context.MaxTurns)
	}
	if cfg.Context.MaxContextTokens != 8000 {
		t.Errorf("expected MaxContextTokens=8000, got %d", cfg.Context.MaxContextTokens)
	}
	if cfg.Context.SimilarityThreshold != 0.7 {
		t.Errorf("expected SimilarityThreshold=0.7, got %g", cfg.Context.SimilarityThreshold)
	}
	if cfg.Analyzer.Language != "en" {
		t.Errorf("expected Language='en', got %q", cfg.Analyzer.Language)
	}
	if cfg.Storage.KeyPrefix != "contextd:" {
		t.Errorf("expected KeyPrefix='contextd:', got %q", cfg.Storage.KeyPrefix)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:     HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 120, ShutdownSec: 5},
		Database: DatabaseConfig{ReadinessTimeout: 15},
		Context:  ContextConfig{MaxTurns: 20, MaxContextTokens: 4000, SimilarityThreshold: 0.5, WindowSize: 5},
		Pipeline: PipelineConfig{TimeoutSec: 10, MaxMessageLength: 1000, ConfidenceThreshold: 0.8},
		Storage:  StorageConfig{KeyPrefix: "custom:"},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.Context.MaxTurns != 20 {
		t.Errorf("expected MaxTurns=20, got %d", cfg.Context.MaxTurns)
	}
	if cfg.Pipeline.ConfidenceThreshold != 0.8 {
		t.Errorf("expected ConfidenceThreshold=0.8, got %g", cfg.Pipeline.ConfidenceThreshold)
	}
	if cfg.Storage.KeyPrefix != "custom:" {
		t.Errorf("expected KeyPrefix='custom:', got %q", cfg.Storage.KeyPrefix)
	}
}
