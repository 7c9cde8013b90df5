package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/meridian-cloud/contextd/internal/analyzer"
	"github.com/meridian-cloud/contextd/internal/config"
	dbRedis "github.com/meridian-cloud/contextd/internal/db/redis"
	logpkg "github.com/meridian-cloud/contextd/internal/logger"
	"github.com/meridian-cloud/contextd/internal/metrics"
	"github.com/meridian-cloud/contextd/internal/repository/embcache"
	knowledgerepo "github.com/meridian-cloud/contextd/internal/repository/knowledge"
	windowrepo "github.com/meridian-cloud/contextd/internal/repository/window"
	chiTransport "github.com/meridian-cloud/contextd/internal/transport/chi"
	openaiProvider "github.com/meridian-cloud/contextd/internal/transport/openai"
	aggregatoruc "github.com/meridian-cloud/contextd/internal/usecase/aggregator"
	coordinatoruc "github.com/meridian-cloud/contextd/internal/usecase/coordinator"
	"github.com/meridian-cloud/contextd/internal/usecase/fusion"
	healthuc "github.com/meridian-cloud/contextd/internal/usecase/health"
	qualityuc "github.com/meridian-cloud/contextd/internal/usecase/quality"
	"github.com/meridian-cloud/contextd/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting contextd API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	// Providers
	baseEmbedder := openaiProvider.NewEmbedder(&openaiProvider.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   "openai",
		Logger:     logger,
	})
	embedder := embcache.New(baseEmbedder, baseEmbedder, store, embcache.Config{
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Capacity:   cfg.Embedding.CacheCapacity,
		TTL:        time.Duration(cfg.Embedding.CacheTTLHours) * time.Hour,
		KeyPrefix:  cfg.Storage.KeyPrefix,
		BatchSize:  cfg.Embedding.BatchSize,
		BatchDelay: time.Duration(cfg.Embedding.BatchDelayMs) * time.Millisecond,
	}, metrics.EmbeddingCacheTotal, logger)

	completer := openaiProvider.NewCompleter(&openaiProvider.CompleterConfig{
		APIKey:  cfg.Completion.APIKey,
		BaseURL: cfg.Completion.BaseURL,
		Model:   cfg.Completion.Model,
		Logger:  logger,
	})
	logger.Info("Providers created",
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.String("completion_model", cfg.Completion.Model),
	)

	// Fusion engine shared by the hybrid search and the context aggregation
	engine := fusion.New(cfg.Context.WindowSize)

	// Repositories
	windows := windowrepo.NewRepository(store, cfg.Storage.KeyPrefix, logger)
	knowledge := knowledgerepo.NewRepository(store, engine, cfg.Storage.KeyPrefix, cfg.Embedding.Dimensions, logger)
	if err := knowledge.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure knowledge index", zap.Error(err))
	}

	// Text analyzer: language profile and domain terms are configuration
	an, err := analyzer.NewKeyword(cfg.Analyzer.Language, cfg.Analyzer.DomainTerms)
	if err != nil {
		logger.Fatal("Failed to create analyzer", zap.Error(err))
	}

	// Use case services
	aggregatorSvc := aggregatoruc.New(windows, knowledge, embedder, engine, an, aggregatoruc.Config{
		SimilarityThreshold: cfg.Context.SimilarityThreshold,
		MaxTurns:            cfg.Context.MaxTurns,
		MaxContextTokens:    cfg.Context.MaxContextTokens,
		WindowSize:          cfg.Context.WindowSize,
	}, logger)

	qualitySvc := qualityuc.New(qualityuc.Config{
		ConfidenceThreshold: cfg.Pipeline.ConfidenceThreshold,
	}, metrics.QualityActionsTotal, logger)

	coordinatorSvc := coordinatoruc.New(
		aggregatorSvc,
		completer,
		qualitySvc,
		windows,
		coordinatoruc.NewRegistry(),
		coordinatoruc.Config{
			Timeout:          time.Duration(cfg.Pipeline.TimeoutSec) * time.Second,
			MaxMessageLength: cfg.Pipeline.MaxMessageLength,
			MaxRetries:       uint(cfg.Completion.MaxRetries),
			Temperature:      cfg.Completion.Temperature,
			MaxTokens:        cfg.Completion.MaxTokens,
		},
		logger,
	)

	healthSvc := healthuc.New(store, baseEmbedder, completer)

	// HTTP server
	server := chiTransport.NewServer(coordinatorSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
