package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-cloud/contextd/internal/domain"
	dw "github.com/meridian-cloud/contextd/internal/domain/window"
	"github.com/meridian-cloud/contextd/internal/usecase/aggregator"
)

type mockContexts struct {
	agg   aggregator.AggregatedContext
	err   error
	calls int32
}

func (m *mockContexts) GetContext(_ context.Context, query, _, _ string) (aggregator.AggregatedContext, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.err != nil {
		return aggregator.AggregatedContext{}, m.err
	}
	agg := m.agg
	agg.Query = query
	return agg, nil
}

type mockCompleter struct {
	text     string
	delay    time.Duration
	blockCtx bool    // block until the context is canceled
	errs     []error // consumed one per call, nil-padded after
	calls    int32
}

func (m *mockCompleter) Complete(ctx context.Context, _ string, _ []domain.Message, _ domain.CompletionOptions) (domain.Completion, error) {
	n := atomic.AddInt32(&m.calls, 1)

	if m.blockCtx {
		<-ctx.Done()
		return domain.Completion{}, ctx.Err()
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if int(n) <= len(m.errs) && m.errs[n-1] != nil {
		return domain.Completion{}, m.errs[n-1]
	}

	text := m.text
	if text == "" {
		text = "generated answer"
	}
	return domain.Completion{
		Text:       text,
		TokenUsage: domain.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

// passQuality returns the draft untouched.
type passQuality struct{}

func (passQuality) Process(draft domain.Response, _ domain.Request) domain.Response {
	return draft
}

type mockWindows struct {
	mu         sync.Mutex
	windows    map[string]*dw.Window
	persistErr error
	persists   int
}

func newMockWindows() *mockWindows {
	return &mockWindows{windows: make(map[string]*dw.Window)}
}

func (m *mockWindows) GetOrCreate(_ context.Context, businessID, conversationID string) *dw.Window {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := dw.Key(businessID, conversationID)
	if w, ok := m.windows[key]; ok {
		return w
	}
	w := dw.New(businessID, conversationID)
	m.windows[key] = w
	return w
}

func (m *mockWindows) Persist(_ context.Context, _ *dw.Window) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persists++
	return m.persistErr
}

type testDeps struct {
	contexts  *mockContexts
	completer *mockCompleter
	windows   *mockWindows
}

func validRequest() domain.Request {
	return domain.Request{
		ConversationID: "conv-1",
		AssistantID:    "asst-1",
		BusinessID:     "biz-1",
		Message:        "what is the refund policy",
	}
}

func newTestService(t *testing.T, cfg Config) (*Service, *testDeps) {
	t.Helper()

	if cfg.MaxMessageLength == 0 {
		cfg.MaxMessageLength = 4000
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}

	deps := &testDeps{
		contexts:  &mockContexts{agg: aggregator.AggregatedContext{Confidence: 0.8}},
		completer: &mockCompleter{},
		windows:   newMockWindows(),
	}

	svc := New(
		deps.contexts,
		deps.completer,
		passQuality{},
		deps.windows,
		NewRegistry(),
		cfg,
		zap.NewNop(),
	)
	return svc, deps
}
