package contextd

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	addrs    []string
	password string

	apiKey          string
	baseURL         string
	embeddingModel  string
	embeddingDim    int
	completionModel string
	temperature     float32
	maxTokens       int
	maxRetries      uint
	embedder        Embedder

	keyPrefix           string
	language            string
	domainTerms         []string
	windowSize          int
	similarityThreshold float64
	maxTurns            int
	maxContextTokens    int

	timeout             time.Duration
	maxMessageLength    int
	confidenceThreshold float64

	cacheCapacity int
	cacheTTL      time.Duration

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

func defaultClientConfig() *clientConfig {
	return &clientConfig{
		embeddingModel:      "text-embedding-3-small",
		embeddingDim:        768,
		completionModel:     "gpt-4o-mini",
		temperature:         0.7,
		maxTokens:           1024,
		maxRetries:          3,
		keyPrefix:           "contextd:",
		language:            "en",
		windowSize:          10,
		similarityThreshold: 0.7,
		maxTurns:            50,
		maxContextTokens:    8000,
		timeout:             30 * time.Second,
		maxMessageLength:    4000,
		confidenceThreshold: 0.5,
		cacheCapacity:       1000,
		cacheTTL:            24 * time.Hour,
	}
}

// WithRedis configures the client to connect to a Redis instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithOpenAI sets the API key used for both the embedding and the
// completion provider. Required unless a custom Embedder is supplied
// and only Context is used.
func WithOpenAI(apiKey string) Option {
	return optionFunc(func(c *clientConfig) {
		c.apiKey = apiKey
	})
}

// WithBaseURL points both providers at an OpenAI-compatible gateway.
func WithBaseURL(url string) Option {
	return optionFunc(func(c *clientConfig) {
		c.baseURL = url
	})
}

// WithEmbeddingModel sets the embedding model and its vector dimension.
// Defaults: text-embedding-3-small, 768.
func WithEmbeddingModel(model string, dimensions int) Option {
	return optionFunc(func(c *clientConfig) {
		c.embeddingModel = model
		c.embeddingDim = dimensions
	})
}

// WithCompletionModel sets the completion model. Default: gpt-4o-mini.
func WithCompletionModel(model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.completionModel = model
	})
}

// WithEmbedder replaces the OpenAI embedding provider with a custom one.
// Batch vectorization uses the custom embedder one text at a time unless
// it also implements BatchEmbedder.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithKeyPrefix sets the storage key prefix. Default: "contextd:".
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.keyPrefix = prefix
	})
}

// WithLanguage selects the analyzer language profile ("en" or "pt") and
// optional domain terms boosted during keyword extraction.
func WithLanguage(lang string, domainTerms ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.language = lang
		c.domainTerms = domainTerms
	})
}

// WithPipelineTimeout bounds one Respond call end to end. Default: 30s.
func WithPipelineTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.timeout = d
	})
}

// WithConfidenceThreshold sets the quality gate below which responses
// are marked for escalation. Default: 0.5.
func WithConfidenceThreshold(t float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.confidenceThreshold = t
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
