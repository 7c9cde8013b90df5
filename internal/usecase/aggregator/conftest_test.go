package aggregator

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/meridian-cloud/contextd/internal/analyzer"
	"github.com/meridian-cloud/contextd/internal/domain"
	"github.com/meridian-cloud/contextd/internal/domain/knowledge"
	"github.com/meridian-cloud/contextd/internal/domain/scoring"
	dw "github.com/meridian-cloud/contextd/internal/domain/window"
	"github.com/meridian-cloud/contextd/internal/usecase/fusion"
)

type mockWindowRepo struct {
	w            *dw.Window
	persistCalls int
	persistErr   error
}

func (m *mockWindowRepo) GetOrCreate(_ context.Context, businessID, conversationID string) *dw.Window {
	if m.w == nil {
		m.w = dw.New(businessID, conversationID)
	}
	return m.w
}

func (m *mockWindowRepo) Persist(_ context.Context, _ *dw.Window) error {
	m.persistCalls++
	return m.persistErr
}

type mockKnowledge struct {
	results   []scoring.Result
	err       error
	lastQuery knowledge.SearchQuery
	calls     int
}

func (m *mockKnowledge) HybridSearch(_ context.Context, q knowledge.SearchQuery) ([]scoring.Result, error) {
	m.calls++
	m.lastQuery = q
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

type mockEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Vector: m.vector, TotalTokens: 3}, nil
}

type testDeps struct {
	windows  *mockWindowRepo
	know     *mockKnowledge
	embedder *mockEmbedder
}

func newTestService(t *testing.T, domainTerms []string) (*Service, *testDeps) {
	t.Helper()

	an, err := analyzer.NewKeyword("en", domainTerms)
	if err != nil {
		t.Fatalf("NewKeyword failed: %v", err)
	}

	deps := &testDeps{
		windows:  &mockWindowRepo{},
		know:     &mockKnowledge{},
		embedder: &mockEmbedder{vector: []float32{1, 0, 0}},
	}

	svc := New(
		deps.windows,
		deps.know,
		deps.embedder,
		fusion.New(10),
		an,
		Config{
			SimilarityThreshold: 0.7,
			MaxTurns:            50,
			MaxContextTokens:    8000,
			WindowSize:          10,
		},
		zap.NewNop(),
	)
	return svc, deps
}
