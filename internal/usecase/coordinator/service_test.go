package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meridian-cloud/contextd/internal/domain"
)

func TestHandle_Success(t *testing.T) {
	svc, deps := newTestService(t, Config{})
	deps.completer.text = "the refund window is 30 days"

	result := svc.Handle(context.Background(), validRequest())

	if !result.Success {
		t.Fatalf("expected success, got error %+v", result.Error)
	}
	if result.Response == nil || result.Response.Text != "the refund window is 30 days" {
		t.Errorf("unexpected response: %+v", result.Response)
	}
	if result.Response.Confidence != 0.8 {
		t.Errorf("confidence = %f, expected 0.8 from context", result.Response.Confidence)
	}
	if result.Metadata.Fingerprint == "" {
		t.Error("expected fingerprint in metadata")
	}
	if result.Metadata.TokenUsage.TotalTokens != 15 {
		t.Errorf("total tokens = %d, expected 15", result.Metadata.TokenUsage.TotalTokens)
	}
	if result.Metadata.ContextScore != 0.8 {
		t.Errorf("context score = %f, expected 0.8", result.Metadata.ContextScore)
	}
}

func TestHandle_ValidationFailureSkipsPipeline(t *testing.T) {
	svc, deps := newTestService(t, Config{})

	tests := []struct {
		name string
		mut  func(*domain.Request)
	}{
		{"empty message", func(r *domain.Request) { r.Message = "" }},
		{"oversized message", func(r *domain.Request) { r.Message = strings.Repeat("x", 4001) }},
		{"missing conversation", func(r *domain.Request) { r.ConversationID = "" }},
		{"missing assistant", func(r *domain.Request) { r.AssistantID = "" }},
		{"missing business", func(r *domain.Request) { r.BusinessID = "" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mut(&req)

			result := svc.Handle(context.Background(), req)

			if result.Success {
				t.Fatal("expected failure")
			}
			if result.Error == nil || result.Error.Kind != domain.KindValidation {
				t.Errorf("expected validation kind, got %+v", result.Error)
			}
			if !result.FallbackUsed {
				t.Error("expected fallback flag on failure envelope")
			}
		})
	}

	if n := atomic.LoadInt32(&deps.contexts.calls); n != 0 {
		t.Errorf("context calls = %d, expected 0 for invalid requests", n)
	}
}

func TestHandle_ConcurrentIdenticalRequestsRunOnce(t *testing.T) {
	svc, deps := newTestService(t, Config{})
	deps.completer.delay = 50 * time.Millisecond

	const n = 4
	var wg sync.WaitGroup
	results := make([]domain.Result, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.Handle(context.Background(), validRequest())
		}(i)
	}
	wg.Wait()

	if calls := atomic.LoadInt32(&deps.completer.calls); calls != 1 {
		t.Fatalf("completer calls = %d, expected exactly 1", calls)
	}

	dedup := 0
	for _, r := range results {
		if !r.Success {
			t.Fatalf("expected all results successful, got %+v", r.Error)
		}
		if r.Response.Text != results[0].Response.Text {
			t.Error("joiners must receive the identical result")
		}
		if r.Metadata.Deduplicated {
			dedup++
		}
	}
	if dedup != n-1 {
		t.Errorf("deduplicated results = %d, expected %d", dedup, n-1)
	}
}

func TestHandle_DistinctMessagesRunSeparately(t *testing.T) {
	svc, deps := newTestService(t, Config{})

	a := validRequest()
	b := validRequest()
	b.Message = "a different question entirely"

	svc.Handle(context.Background(), a)
	svc.Handle(context.Background(), b)

	if calls := atomic.LoadInt32(&deps.completer.calls); calls != 2 {
		t.Errorf("completer calls = %d, expected 2", calls)
	}
}

func TestHandle_RegistryEmptyAfterCompletion(t *testing.T) {
	svc, _ := newTestService(t, Config{})

	svc.Handle(context.Background(), validRequest())

	if n := svc.registry.Len(); n != 0 {
		t.Errorf("registry length = %d, expected 0 after completion", n)
	}
}

func TestHandle_TimeoutProducesTimeoutResult(t *testing.T) {
	svc, deps := newTestService(t, Config{Timeout: 30 * time.Millisecond})
	deps.completer.blockCtx = true

	start := time.Now()
	result := svc.Handle(context.Background(), validRequest())
	elapsed := time.Since(start)

	if result.Success {
		t.Fatal("expected timeout failure")
	}
	if result.Error.Kind != domain.KindTimeout {
		t.Errorf("kind = %s, expected timeout", result.Error.Kind)
	}
	if elapsed > time.Second {
		t.Errorf("timeout took %s, expected around 30ms", elapsed)
	}
	if svc.registry.Len() != 0 {
		t.Error("registry must be released on the timeout path")
	}
}

func TestHandle_ProviderErrorRetriedThenSucceeds(t *testing.T) {
	svc, deps := newTestService(t, Config{MaxRetries: 3})
	deps.completer.errs = []error{
		fmt.Errorf("overloaded: %w", domain.ErrProvider),
		fmt.Errorf("overloaded: %w", domain.ErrProvider),
	}

	result := svc.Handle(context.Background(), validRequest())

	if !result.Success {
		t.Fatalf("expected success after retries, got %+v", result.Error)
	}
	if calls := atomic.LoadInt32(&deps.completer.calls); calls != 3 {
		t.Errorf("completer calls = %d, expected 3", calls)
	}
}

func TestHandle_ExhaustedRetriesYieldGenerationError(t *testing.T) {
	svc, deps := newTestService(t, Config{MaxRetries: 2})
	deps.completer.errs = []error{
		fmt.Errorf("overloaded: %w", domain.ErrProvider),
		fmt.Errorf("overloaded: %w", domain.ErrProvider),
	}

	result := svc.Handle(context.Background(), validRequest())

	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Error.Kind != domain.KindGeneration {
		t.Errorf("kind = %s, expected generation", result.Error.Kind)
	}
	if calls := atomic.LoadInt32(&deps.completer.calls); calls != 2 {
		t.Errorf("completer calls = %d, expected 2", calls)
	}
}

func TestHandle_NonRetryableErrorFailsFast(t *testing.T) {
	svc, deps := newTestService(t, Config{MaxRetries: 3})
	deps.completer.errs = []error{errors.New("malformed prompt")}

	result := svc.Handle(context.Background(), validRequest())

	if result.Success {
		t.Fatal("expected failure")
	}
	if calls := atomic.LoadInt32(&deps.completer.calls); calls != 1 {
		t.Errorf("completer calls = %d, expected 1 (no retry)", calls)
	}
}

func TestHandle_ContextErrorSurfacesKind(t *testing.T) {
	svc, deps := newTestService(t, Config{})
	deps.contexts.err = fmt.Errorf("embed query: %w", domain.ErrProvider)

	result := svc.Handle(context.Background(), validRequest())

	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Error.Kind != domain.KindProvider {
		t.Errorf("kind = %s, expected provider", result.Error.Kind)
	}
}

func TestHandle_PersistFailureKeepsSuccess(t *testing.T) {
	svc, deps := newTestService(t, Config{})
	deps.windows.persistErr = errors.New("store down")

	result := svc.Handle(context.Background(), validRequest())

	if !result.Success {
		t.Fatalf("persistence failure must not flip success, got %+v", result.Error)
	}
}

func TestHandle_AppendsTurnToWindow(t *testing.T) {
	svc, deps := newTestService(t, Config{})
	deps.completer.text = "here is your answer"

	req := validRequest()
	svc.Handle(context.Background(), req)

	w := deps.windows.GetOrCreate(context.Background(), req.BusinessID, req.ConversationID)
	if len(w.Turns) != 1 {
		t.Fatalf("expected 1 turn appended, got %d", len(w.Turns))
	}
	turn := w.Turns[0]
	if turn.UserText != req.Message {
		t.Errorf("user text = %q", turn.UserText)
	}
	if turn.SystemText != "here is your answer" {
		t.Errorf("system text = %q", turn.SystemText)
	}
	if turn.ID == "" {
		t.Error("expected turn ID assigned")
	}
}

func TestGetMemoryContext_Validation(t *testing.T) {
	svc, _ := newTestService(t, Config{})

	_, err := svc.GetMemoryContext(context.Background(), domain.Request{ConversationID: "c", BusinessID: "b"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for empty message, got %v", err)
	}
}

func TestGetMemoryContext_ReturnsAggregatedContext(t *testing.T) {
	svc, deps := newTestService(t, Config{})
	deps.contexts.agg.Confidence = 0.42

	agg, err := svc.GetMemoryContext(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("GetMemoryContext failed: %v", err)
	}
	if agg.Confidence != 0.42 {
		t.Errorf("confidence = %f, expected 0.42", agg.Confidence)
	}
	if calls := atomic.LoadInt32(&deps.completer.calls); calls != 0 {
		t.Errorf("completer calls = %d, expected 0 for retrieval-only surface", calls)
	}
}
