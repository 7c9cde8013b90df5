package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/meridian-cloud/contextd/internal/db"
	"github.com/meridian-cloud/contextd/internal/domain"
)

// store is the consumer interface for the shared cache tier (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Config tunes the two-tier cache.
type Config struct {
	Model      string
	Dimensions int
	Capacity   int           // in-process tier, entries
	TTL        time.Duration // shared tier
	KeyPrefix  string        // storage key prefix, e.g. "contextd:"
	BatchSize  int           // max texts per provider batch call
	BatchDelay time.Duration // pause between consecutive batch calls
}

// CachedEmbedder decorates an embedding provider with a two-tier cache:
// an in-process FIFO map in front of a shared key-value store with TTL.
// A vector whose dimensionality differs from the configured model dimension
// is rejected and never cached.
type CachedEmbedder struct {
	inner      domain.Embedder
	batchInner domain.BatchEmbedder // nil when inner has no batch endpoint
	store      store
	mem        *memoryTier
	cfg        Config
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator.
// cacheTotal is a counter vec with labels "tier" ("memory"/"redis") and
// "result" ("hit"/"miss"), passed explicitly so the package keeps no globals.
func New(
	inner domain.Embedder,
	batchInner domain.BatchEmbedder,
	s store,
	cfg Config,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	return &CachedEmbedder{
		inner:      inner,
		batchInner: batchInner,
		store:      s,
		mem:        newMemoryTier(cfg.Capacity),
		cfg:        cfg,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Embed returns a cached embedding or calls the inner embedder.
// Cache hit: Cached=true and zero token usage, the vector is byte-identical
// to the one originally stored. Cache miss: full EmbeddingResult from inner.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.cacheKey(text)

	if vec, ok := c.mem.get(key); ok {
		c.incCache("memory", "hit")
		return domain.EmbeddingResult{Vector: vec, Cached: true}, nil
	}
	c.incCache("memory", "miss")

	if vec, ok := c.getFromStore(ctx, key); ok {
		c.incCache("redis", "hit")
		c.mem.put(key, vec)
		return domain.EmbeddingResult{Vector: vec, Cached: true}, nil
	}
	c.incCache("redis", "miss")

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}

	if err := c.validate(result.Vector); err != nil {
		return domain.EmbeddingResult{}, err
	}

	c.putToCache(ctx, key, result.Vector)
	return result, nil
}

// BatchEmbed vectorizes texts in chunks, serving cached entries without a
// provider call. A failed batch call degrades to per-item embedding so one
// bad item cannot sink the whole chunk.
func (c *CachedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	out := domain.BatchEmbeddingResult{
		Vectors: make([][]float32, len(texts)),
		Errors:  make([]error, len(texts)),
	}

	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))
	for i, text := range texts {
		key := c.cacheKey(text)
		if vec, ok := c.mem.get(key); ok {
			c.incCache("memory", "hit")
			out.Vectors[i] = vec
			continue
		}
		c.incCache("memory", "miss")
		if vec, ok := c.getFromStore(ctx, key); ok {
			c.incCache("redis", "hit")
			c.mem.put(key, vec)
			out.Vectors[i] = vec
			continue
		}
		c.incCache("redis", "miss")
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	chunkSize := c.cfg.BatchSize
	if chunkSize <= 0 {
		chunkSize = len(missTexts)
	}

	for start := 0; start < len(missTexts); start += chunkSize {
		if start > 0 && c.cfg.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return out, fmt.Errorf("batch embed canceled: %w", ctx.Err())
			case <-time.After(c.cfg.BatchDelay):
			}
		}

		end := min(start+chunkSize, len(missTexts))
		chunk := missTexts[start:end]

		res := c.embedChunk(ctx, chunk)

		for j := range chunk {
			i := missIdx[start+j]
			if res.Errors[j] != nil {
				out.Errors[i] = res.Errors[j]
				continue
			}
			if err := c.validate(res.Vectors[j]); err != nil {
				out.Errors[i] = err
				continue
			}
			out.Vectors[i] = res.Vectors[j]
			c.putToCache(ctx, c.cacheKey(chunk[j]), res.Vectors[j])
		}
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}

	return out, nil
}

func (c *CachedEmbedder) embedChunk(ctx context.Context, chunk []string) domain.BatchEmbeddingResult {
	if c.batchInner != nil {
		res, err := c.batchInner.BatchEmbed(ctx, chunk)
		if err == nil {
			return res
		}
		c.logger.Warn("Batch embed failed, falling back to per-item calls",
			zap.Int("chunk_size", len(chunk)), zap.Error(err))
	}
	return domain.BatchFallback(ctx, c.inner, chunk)
}

func (c *CachedEmbedder) validate(vec []float32) error {
	if c.cfg.Dimensions > 0 && len(vec) != c.cfg.Dimensions {
		return domain.NewInvalidEmbedding(c.cfg.Dimensions, len(vec))
	}
	return nil
}

func (c *CachedEmbedder) incCache(tier, result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(tier, result).Inc()
	}
}

// cacheKey hashes text together with the model name so a model switch
// invalidates prior entries.
func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.Sum256([]byte(text + "\x00" + c.cfg.Model))
	return c.cfg.KeyPrefix + "emb_cache:" + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) getFromStore(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	vec, err := bytesToVector(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	return vec, true
}

func (c *CachedEmbedder) putToCache(ctx context.Context, key string, vec []float32) {
	c.mem.put(key, vec)
	data := vectorToCacheBytes(vec)
	if err := c.store.SetWithTTL(ctx, key, data, c.cfg.TTL); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

// memoryTier is a fixed-capacity FIFO map. Eviction order is insertion
// order; embedding reuse patterns here are bursty enough that LRU buys
// nothing over FIFO.
type memoryTier struct {
	mu       sync.Mutex
	entries  map[string][]float32
	order    []string
	capacity int
}

func newMemoryTier(capacity int) *memoryTier {
	if capacity <= 0 {
		capacity = 1000
	}
	return &memoryTier{
		entries:  make(map[string][]float32, capacity),
		capacity: capacity,
	}
}

func (t *memoryTier) get(key string) ([]float32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	vec, ok := t.entries[key]
	return vec, ok
}

func (t *memoryTier) put(key string, vec []float32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[key]; ok {
		t.entries[key] = vec
		return
	}

	for len(t.entries) >= t.capacity && len(t.order) > 0 {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.entries, oldest)
	}

	t.entries[key] = vec
	t.order = append(t.order, key)
}

func vectorToCacheBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
