package embcache

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-cloud/contextd/internal/db"
	"github.com/meridian-cloud/contextd/internal/domain"
)

type mockEmbedder struct {
	result domain.EmbeddingResult
	err    error
	calls  int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	return m.result, m.err
}

type mockBatchEmbedder struct {
	result domain.BatchEmbeddingResult
	err    error
	calls  int
}

func (m *mockBatchEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	if m.result.Vectors != nil {
		return m.result, nil
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{0.1, 0.2, 0.3}
	}
	return domain.BatchEmbeddingResult{
		Vectors: vectors,
		Errors:  make([]error, len(texts)),
	}, nil
}

// mockKVStore implements the consumer interface for tests and records writes.
type mockKVStore struct {
	data  map[string][]byte
	getFn func(ctx context.Context, key string) ([]byte, error)
	setFn func(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

func newMockKVStore() *mockKVStore {
	return &mockKVStore{data: make(map[string][]byte)}
}

func (m *mockKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockKVStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value, ttl)
	}
	m.data[key] = value
	return nil
}

func testConfig() Config {
	return Config{
		Model:      "test-model",
		Dimensions: 3,
		Capacity:   10,
		TTL:        time.Hour,
		KeyPrefix:  "contextd:",
		BatchSize:  2,
	}
}

func newTestCachedEmbedder(t *testing.T, inner *mockEmbedder, batch *mockBatchEmbedder, cfg Config) (*CachedEmbedder, *mockKVStore) {
	t.Helper()
	ms := newMockKVStore()
	var bi domain.BatchEmbedder
	if batch != nil {
		bi = batch
	}
	ce := New(inner, bi, ms, cfg, nil, zap.NewNop())
	return ce, ms
}
