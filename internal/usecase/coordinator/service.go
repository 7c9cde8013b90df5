// Package coordinator is the request-level entry point of the response
// pipeline: validation, in-flight deduplication, timeout enforcement, and
// the ordered stages from context retrieval to best-effort persistence.
package coordinator

import (
	"context"
	"fmt"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-cloud/contextd/internal/domain"
	"github.com/meridian-cloud/contextd/internal/metrics"
	"github.com/meridian-cloud/contextd/internal/usecase/aggregator"
)

const defaultTimeout = 30 * time.Second

// Config tunes the pipeline.
type Config struct {
	Timeout          time.Duration
	MaxMessageLength int
	MaxRetries       uint
	Temperature      float32
	MaxTokens        int
	HistoryTurns     int // turns of chat history sent to the completer
}

// Service coordinates one response pipeline per unique in-flight request.
type Service struct {
	contexts  ContextProvider
	completer domain.Completer
	quality   QualityPipeline
	windows   WindowRepo
	registry  *Registry
	cfg       Config
	logger    *zap.Logger
}

// New creates a coordinator.
func New(
	contexts ContextProvider,
	completer domain.Completer,
	quality QualityPipeline,
	windows WindowRepo,
	registry *Registry,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = 5
	}
	return &Service{
		contexts:  contexts,
		completer: completer,
		quality:   quality,
		windows:   windows,
		registry:  registry,
		cfg:       cfg,
		logger:    logger,
	}
}

// Handle answers one customer message. Identical concurrent requests (same
// conversation, same message) run the pipeline once; joiners receive the
// leader's result marked as deduplicated. All failures come back inside the
// uniform Result envelope, never as an error.
func (s *Service) Handle(ctx context.Context, req domain.Request) domain.Result {
	start := time.Now()
	fp := domain.NewFingerprint(req.ConversationID, req.Message)
	meta := domain.ResultMetadata{Fingerprint: fp}

	if err := req.Validate(s.cfg.MaxMessageLength); err != nil {
		meta.Duration = time.Since(start)
		metrics.PipelineRequestsTotal.WithLabelValues("error").Inc()
		return domain.FailedResult(err, meta)
	}

	f, leader := s.registry.Begin(fp)
	if !leader {
		return s.join(ctx, f, meta, start)
	}

	result := s.lead(ctx, req, meta, start)
	s.registry.Finish(fp, f, result)
	return result
}

// join waits for the leader's result. The joiner's own context still
// bounds the wait.
func (s *Service) join(ctx context.Context, f *flight, meta domain.ResultMetadata, start time.Time) domain.Result {
	metrics.PipelineDedupJoinsTotal.Inc()

	select {
	case <-f.done:
		result := f.result
		result.Metadata.Deduplicated = true
		result.Metadata.Duration = time.Since(start)
		return result
	case <-ctx.Done():
		meta.Duration = time.Since(start)
		metrics.PipelineRequestsTotal.WithLabelValues("timeout").Inc()
		return domain.FailedResult(
			fmt.Errorf("wait for in-flight request: %v: %w", ctx.Err(), domain.ErrTimeout), meta)
	}
}

// lead runs the pipeline under the configured timeout. Cancellation reaches
// every downstream I/O call through the derived context; a deadline that
// fires before the pipeline finishes yields a timeout result while the
// abandoned goroutine winds down against the canceled context.
func (s *Service) lead(ctx context.Context, req domain.Request, meta domain.ResultMetadata, start time.Time) domain.Result {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	resCh := make(chan domain.Result, 1)
	go func() {
		resCh <- s.runPipeline(ctx, req, meta, start)
	}()

	select {
	case result := <-resCh:
		metrics.PipelineDuration.Observe(time.Since(start).Seconds())
		return result
	case <-ctx.Done():
		meta.Duration = time.Since(start)
		metrics.PipelineRequestsTotal.WithLabelValues("timeout").Inc()
		metrics.PipelineDuration.Observe(time.Since(start).Seconds())
		return domain.FailedResult(
			fmt.Errorf("pipeline exceeded %s: %w", s.cfg.Timeout, domain.ErrTimeout), meta)
	}
}

func (s *Service) runPipeline(ctx context.Context, req domain.Request, meta domain.ResultMetadata, start time.Time) domain.Result {
	fail := func(err error) domain.Result {
		meta.Duration = time.Since(start)
		metrics.PipelineRequestsTotal.WithLabelValues("error").Inc()
		return domain.FailedResult(err, meta)
	}

	agg, err := s.contexts.GetContext(ctx, req.Message, req.ConversationID, req.BusinessID)
	if err != nil {
		return fail(fmt.Errorf("load context: %w", err))
	}
	meta.ContextScore = agg.Confidence
	meta.TokenUsage.PromptTokens += agg.EmbeddingTokens
	meta.TokenUsage.TotalTokens += agg.EmbeddingTokens

	systemPrompt, messages := s.buildPrompt(ctx, req, agg)

	completion, err := s.generate(ctx, systemPrompt, messages)
	if err != nil {
		return fail(err)
	}
	meta.TokenUsage.PromptTokens += completion.TokenUsage.PromptTokens
	meta.TokenUsage.CompletionTokens += completion.TokenUsage.CompletionTokens
	meta.TokenUsage.TotalTokens += completion.TokenUsage.TotalTokens

	draft := domain.Response{Text: completion.Text, Confidence: agg.Confidence}
	final := s.quality.Process(draft, req)

	s.persistTurn(ctx, req, agg, final)

	meta.Duration = time.Since(start)
	metrics.PipelineRequestsTotal.WithLabelValues("success").Inc()
	return domain.Result{
		Success:  true,
		Response: &final,
		Metadata: meta,
	}
}

// generate calls the completer with bounded exponential backoff. Only
// provider errors retry; validation and data faults fail fast.
func (s *Service) generate(ctx context.Context, systemPrompt string, messages []domain.Message) (domain.Completion, error) {
	var completion domain.Completion

	err := retry.Do(
		func() error {
			var cerr error
			completion, cerr = s.completer.Complete(ctx, systemPrompt, messages, domain.CompletionOptions{
				Temperature: s.cfg.Temperature,
				MaxTokens:   s.cfg.MaxTokens,
			})
			return cerr
		},
		retry.Context(ctx),
		retry.Attempts(s.cfg.MaxRetries),
		retry.RetryIf(domain.Retryable),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("complete after %d attempts: %v: %w",
			s.cfg.MaxRetries, err, domain.ErrGeneration)
	}
	return completion, nil
}

// buildPrompt assembles the system prompt from the aggregated context and
// the chat history from the most recent window turns.
func (s *Service) buildPrompt(ctx context.Context, req domain.Request, agg aggregator.AggregatedContext) (string, []domain.Message) {
	prompt := "You are a customer support assistant. Answer using only the context below.\n"
	if agg.Summary != "" {
		prompt += "\nConversation summary: " + agg.Summary + "\n"
	}
	if len(agg.RelevantContext) > 0 {
		prompt += "\nRelevant context:\n"
		for i := range agg.RelevantContext {
			prompt += "- " + agg.RelevantContext[i].Content + "\n"
		}
	}

	w := s.windows.GetOrCreate(ctx, req.BusinessID, req.ConversationID)
	from := len(w.Turns) - s.cfg.HistoryTurns
	if from < 0 {
		from = 0
	}

	var messages []domain.Message
	for i := from; i < len(w.Turns); i++ {
		messages = append(messages, domain.Message{Role: domain.RoleUser, Content: w.Turns[i].UserText})
		if w.Turns[i].SystemText != "" {
			messages = append(messages, domain.Message{Role: domain.RoleAssistant, Content: w.Turns[i].SystemText})
		}
	}
	messages = append(messages, domain.Message{Role: domain.RoleUser, Content: req.Message})

	return prompt, messages
}

// persistTurn appends the finished exchange to the window and mirrors it
// best-effort. A persistence failure never flips a successful result.
func (s *Service) persistTurn(ctx context.Context, req domain.Request, agg aggregator.AggregatedContext, final domain.Response) {
	w := s.windows.GetOrCreate(ctx, req.BusinessID, req.ConversationID)

	var docIDs []string
	for i := range agg.RelevantContext {
		if d := agg.RelevantContext[i].Document; d != nil {
			docIDs = append(docIDs, d.NodeID)
		}
	}

	w.Append(domain.ConversationTurn{
		ID:                  uuid.NewString(),
		Timestamp:           time.Now(),
		UserText:            req.Message,
		SystemText:          final.Text,
		ExtractedTerms:      agg.Terms,
		QueryType:           agg.QueryType,
		Confidence:          final.Confidence,
		RelevantDocumentIDs: docIDs,
		Embedding:           agg.QueryVector,
	})

	domain.BestEffort(s.logger, "persist turn", func() error {
		return s.windows.Persist(ctx, w)
	})
}

// GetMemoryContext is the retrieval-only surface: same validation and
// timeout, no generation.
func (s *Service) GetMemoryContext(ctx context.Context, req domain.Request) (aggregator.AggregatedContext, error) {
	if req.Message == "" {
		return aggregator.AggregatedContext{}, fmt.Errorf("message is required: %w", domain.ErrValidation)
	}
	if req.ConversationID == "" {
		return aggregator.AggregatedContext{}, fmt.Errorf("conversation_id is required: %w", domain.ErrValidation)
	}
	if req.BusinessID == "" {
		return aggregator.AggregatedContext{}, fmt.Errorf("business_id is required: %w", domain.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	return s.contexts.GetContext(ctx, req.Message, req.ConversationID, req.BusinessID)
}
