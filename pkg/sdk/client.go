package contextd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-cloud/contextd/internal/analyzer"
	"github.com/meridian-cloud/contextd/internal/db"
	dbRedis "github.com/meridian-cloud/contextd/internal/db/redis"
	"github.com/meridian-cloud/contextd/internal/domain"
	"github.com/meridian-cloud/contextd/internal/repository/embcache"
	knowledgerepo "github.com/meridian-cloud/contextd/internal/repository/knowledge"
	windowrepo "github.com/meridian-cloud/contextd/internal/repository/window"
	openaiProvider "github.com/meridian-cloud/contextd/internal/transport/openai"
	aggregatoruc "github.com/meridian-cloud/contextd/internal/usecase/aggregator"
	coordinatoruc "github.com/meridian-cloud/contextd/internal/usecase/coordinator"
	"github.com/meridian-cloud/contextd/internal/usecase/fusion"
	healthuc "github.com/meridian-cloud/contextd/internal/usecase/health"
	qualityuc "github.com/meridian-cloud/contextd/internal/usecase/quality"
)

const defaultReadinessTimeout = 10 * time.Second

// Internal interfaces, substitutable in tests.
type pipelineUseCase interface {
	Handle(ctx context.Context, req domain.Request) domain.Result
	GetMemoryContext(ctx context.Context, req domain.Request) (aggregatoruc.AggregatedContext, error)
}

// Client is the contextd SDK entry point.
type Client struct {
	store     db.Store
	pipeline  pipelineUseCase
	healthSvc healthUseCase
	obs       *observer
}

// New creates a contextd Client and connects to the database.
// The provided context is used for the initial readiness check and
// for ensuring the knowledge search index.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := defaultClientConfig()
	for _, o := range opts {
		o.apply(cfg)
	}

	if len(cfg.addrs) == 0 {
		return nil, errors.New("contextd: database address required (use WithRedis)")
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.addrs,
		Password: cfg.password,
	})
	if err != nil {
		return nil, fmt.Errorf("contextd: create redis store: %w", err)
	}

	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("contextd: database not ready: %w", err)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		store.Close()
		return nil, err
	}
	c, err := wireClient(ctx, store, cfg, obs)
	if err != nil {
		store.Close()
		return nil, err
	}
	return c, nil
}

func wireClient(ctx context.Context, store db.Store, cfg *clientConfig, obs *observer) (*Client, error) {
	// Internal services log through zap; the SDK observes at its own
	// boundary instead, so the internal logger stays silent.
	zlog := zap.NewNop()

	var emb domain.Embedder
	var batchEmb domain.BatchEmbedder
	var embChecker domain.HealthChecker

	switch {
	case cfg.embedder != nil:
		a := &embedderAdapter{inner: cfg.embedder}
		emb = a
		batchEmb = &batchAdapter{single: a, inner: cfg.embedder}
		if hc, ok := cfg.embedder.(domain.HealthChecker); ok {
			embChecker = hc
		}
	case cfg.apiKey != "":
		base := openaiProvider.NewEmbedder(&openaiProvider.EmbedderConfig{
			APIKey:     cfg.apiKey,
			BaseURL:    cfg.baseURL,
			Model:      cfg.embeddingModel,
			Dimensions: cfg.embeddingDim,
			Provider:   "openai",
			Logger:     zlog,
		})
		emb = base
		batchEmb = base
		embChecker = base
	default:
		ne := noopEmbedder{}
		emb = ne
		batchEmb = &batchAdapter{single: ne}
	}

	cached := embcache.New(emb, batchEmb, store, embcache.Config{
		Model:      cfg.embeddingModel,
		Dimensions: cfg.embeddingDim,
		Capacity:   cfg.cacheCapacity,
		TTL:        cfg.cacheTTL,
		KeyPrefix:  cfg.keyPrefix,
	}, nil, zlog)

	var completer domain.Completer = noopCompleter{}
	var compChecker domain.HealthChecker
	if cfg.apiKey != "" {
		c := openaiProvider.NewCompleter(&openaiProvider.CompleterConfig{
			APIKey:  cfg.apiKey,
			BaseURL: cfg.baseURL,
			Model:   cfg.completionModel,
			Logger:  zlog,
		})
		completer = c
		compChecker = c
	}

	engine := fusion.New(cfg.windowSize)
	windows := windowrepo.NewRepository(store, cfg.keyPrefix, zlog)
	knowledge := knowledgerepo.NewRepository(store, engine, cfg.keyPrefix, cfg.embeddingDim, zlog)
	if err := knowledge.EnsureIndex(ctx); err != nil {
		return nil, fmt.Errorf("contextd: ensure knowledge index: %w", err)
	}

	an, err := analyzer.NewKeyword(cfg.language, cfg.domainTerms)
	if err != nil {
		return nil, fmt.Errorf("contextd: create analyzer: %w", err)
	}

	aggregatorSvc := aggregatoruc.New(windows, knowledge, cached, engine, an, aggregatoruc.Config{
		SimilarityThreshold: cfg.similarityThreshold,
		MaxTurns:            cfg.maxTurns,
		MaxContextTokens:    cfg.maxContextTokens,
		WindowSize:          cfg.windowSize,
	}, zlog)

	qualitySvc := qualityuc.New(qualityuc.Config{
		ConfidenceThreshold: cfg.confidenceThreshold,
	}, nil, zlog)

	coordinatorSvc := coordinatoruc.New(
		aggregatorSvc,
		completer,
		qualitySvc,
		windows,
		coordinatoruc.NewRegistry(),
		coordinatoruc.Config{
			Timeout:          cfg.timeout,
			MaxMessageLength: cfg.maxMessageLength,
			MaxRetries:       cfg.maxRetries,
			Temperature:      cfg.temperature,
			MaxTokens:        cfg.maxTokens,
		},
		zlog,
	)

	return &Client{
		store:     store,
		pipeline:  coordinatorSvc,
		healthSvc: healthuc.New(store, embChecker, compChecker),
		obs:       obs,
	}, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// embedderAdapter wraps public Embedder to satisfy internal domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult{
		Vector:       r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// batchAdapter satisfies domain.BatchEmbedder. It uses the inner
// BatchEmbedder when implemented, otherwise falls back to one Embed
// call per text.
type batchAdapter struct {
	single domain.Embedder
	inner  Embedder
}

func (a *batchAdapter) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if be, ok := a.inner.(BatchEmbedder); ok {
		r, err := be.BatchEmbed(ctx, texts)
		if err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
		}
		return domain.BatchEmbeddingResult{
			Vectors:      r.Embeddings,
			Errors:       r.Errors,
			PromptTokens: r.PromptTokens,
			TotalTokens:  r.TotalTokens,
		}, nil
	}
	return domain.BatchFallback(ctx, a.single, texts), nil
}

// noopEmbedder returns an error on Embed call (used when no provider configured).
type noopEmbedder struct{}

func (noopEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{}, errors.New(
		"contextd: embedder not configured (use WithOpenAI or WithEmbedder)",
	)
}

// noopCompleter returns an error on Complete call (used when no provider configured).
type noopCompleter struct{}

func (noopCompleter) Complete(_ context.Context, _ string, _ []domain.Message, _ domain.CompletionOptions) (domain.Completion, error) {
	return domain.Completion{}, errors.New(
		"contextd: completion provider not configured (use WithOpenAI)",
	)
}
