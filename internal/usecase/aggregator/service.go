// Package aggregator assembles the generation context for a query: relevant
// conversation turns, knowledge documents, and entities, fused into one
// ranked list with a confidence estimate.
package aggregator

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-cloud/contextd/internal/analyzer"
	"github.com/meridian-cloud/contextd/internal/domain"
	"github.com/meridian-cloud/contextd/internal/domain/knowledge"
	"github.com/meridian-cloud/contextd/internal/domain/scoring"
	dw "github.com/meridian-cloud/contextd/internal/domain/window"
)

// Config tunes retrieval and window maintenance.
type Config struct {
	SimilarityThreshold float64
	MaxTurns            int
	MaxContextTokens    int
	WindowSize          int // fused ranking bound, also the knowledge TopK
}

// AggregatedContext is the retrieval product handed to the generator.
type AggregatedContext struct {
	Query           string
	QueryVector     []float32
	QueryType       domain.QueryType
	Terms           []string
	Strategy        Strategy
	RelevantContext []scoring.Result
	Summary         string
	Topics          []string
	Entities        []string
	Confidence      float64
	EmbeddingTokens int
}

// Service is the context aggregator.
type Service struct {
	windows   WindowRepo
	knowledge KnowledgeSearcher
	embedder  Embedder
	fuser     Fuser
	analyzer  analyzer.Analyzer
	cfg       Config
	logger    *zap.Logger
}

// New creates an aggregator service.
func New(
	windows WindowRepo,
	know KnowledgeSearcher,
	embedder Embedder,
	fuser Fuser,
	an analyzer.Analyzer,
	cfg Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		windows:   windows,
		knowledge: know,
		embedder:  embedder,
		fuser:     fuser,
		analyzer:  an,
		cfg:       cfg,
		logger:    logger,
	}
}

// GetContext retrieves and fuses everything relevant to the query for one
// (business, conversation) pair, then refreshes the window metadata.
func (s *Service) GetContext(ctx context.Context, query, conversationID, businessID string) (AggregatedContext, error) {
	w := s.windows.GetOrCreate(ctx, businessID, conversationID)

	terms := s.analyzer.Terms(query)
	queryType := s.analyzer.QueryType(query)
	refs := w.ReferencedEntities(query)
	strategy := s.recommend(query, queryType, w.HasTopic(query))

	agg := AggregatedContext{
		Query:     query,
		QueryType: queryType,
		Terms:     terms,
		Strategy:  strategy,
		Entities:  refs,
	}

	if strategy != StrategyKeyword {
		emb, err := s.embedder.Embed(ctx, query)
		if err != nil {
			return AggregatedContext{}, fmt.Errorf("embed query: %w", err)
		}
		agg.QueryVector = emb.Vector
		agg.EmbeddingTokens = emb.TotalTokens
	}

	convLeg := s.conversationLeg(w, agg.QueryVector)
	docLeg, err := s.knowledgeLeg(ctx, businessID, agg.QueryVector, terms, refs, strategy)
	if err != nil {
		return AggregatedContext{}, err
	}
	entLeg := s.entityLeg(w, refs)

	agg.RelevantContext = s.fuser.Fuse(scoring.ContextWeights(), convLeg, docLeg, entLeg)
	agg.Confidence = confidence(terms, agg.RelevantContext, convLeg, docLeg, entLeg)

	s.refreshWindow(ctx, w, query)
	agg.Summary = w.Summary
	agg.Topics = w.Topics

	return agg, nil
}

// conversationLeg scores retained turns by cosine similarity to the query,
// keeping those at or above the threshold.
func (s *Service) conversationLeg(w *dw.Window, queryVec []float32) []scoring.Result {
	if len(queryVec) == 0 {
		return nil
	}

	var results []scoring.Result
	for i := range w.Turns {
		turn := &w.Turns[i]
		if len(turn.Embedding) == 0 {
			continue
		}
		sim, err := domain.Cosine(queryVec, turn.Embedding)
		if err != nil {
			s.logger.Warn("Skipping turn with incompatible embedding",
				zap.String("turn_id", turn.ID), zap.Error(err))
			continue
		}
		if sim < s.cfg.SimilarityThreshold {
			continue
		}
		results = append(results, scoring.Result{
			Source:   scoring.SourceConversation,
			Content:  turn.UserText,
			RawScore: sim,
			Turn:     &scoring.TurnRef{Turn: turn, Similarity: sim},
		})
	}
	return results
}

// knowledgeLeg runs the business-scoped hybrid search with the legs the
// strategy calls for. Fused document scores become the raw scores of the
// context-level fusion.
func (s *Service) knowledgeLeg(
	ctx context.Context,
	businessID string,
	queryVec []float32,
	terms, refs []string,
	strategy Strategy,
) ([]scoring.Result, error) {
	q := knowledge.SearchQuery{
		BusinessID: businessID,
		Entities:   refs,
		TopK:       s.cfg.WindowSize,
	}
	if strategy != StrategyKeyword {
		q.Vector = queryVec
	}
	if strategy != StrategyVector {
		q.Terms = terms
	}
	if len(q.Vector) == 0 && len(q.Terms) == 0 && len(q.Entities) == 0 {
		return nil, nil
	}

	docs, err := s.knowledge.HybridSearch(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("knowledge search: %w", err)
	}
	for i := range docs {
		docs[i].RawScore = docs[i].WeightedScore
	}
	return docs, nil
}

// entityLeg surfaces entities the query refers to by name. Reference is
// verbatim containment, so the raw score is flat.
func (s *Service) entityLeg(w *dw.Window, refs []string) []scoring.Result {
	var results []scoring.Result
	for _, name := range refs {
		e := w.Entities[name]
		results = append(results, scoring.Result{
			Source:   scoring.SourceEntity,
			Content:  name,
			RawScore: 1,
			Entity:   &scoring.EntityRef{Name: name, Type: e.Type, Mentions: e.Mentions},
		})
	}
	return results
}

// refreshWindow folds the query's topics and entities into the window,
// regenerates the summary, prunes over budget, and mirrors the result
// best-effort.
func (s *Service) refreshWindow(ctx context.Context, w *dw.Window, query string) {
	w.AddTopics(s.analyzer.Topics(query))

	now := time.Now()
	for _, e := range s.analyzer.Entities(query) {
		w.RecordEntity(e.Name, e.Type, now)
	}

	if w.NeedsPrune(s.cfg.MaxTurns, s.cfg.MaxContextTokens) {
		w.Prune(s.cfg.MaxTurns)
	}
	w.RebuildMetadata(s.analyzer.Summarize(w.Turns), w.Topics, w.Entities)

	domain.BestEffort(s.logger, "persist window", func() error {
		return s.windows.Persist(ctx, w)
	})
}

// confidence estimates how well the fused context covers the query. Flat
// bonuses per populated source plus verbatim term coverage, clamped to [0,1]
// and rounded to two decimals. No context at all means zero, regardless of
// the other signals.
func confidence(terms []string, fused, convLeg, docLeg, entLeg []scoring.Result) float64 {
	if len(fused) == 0 {
		return 0
	}

	c := 0.3
	if len(convLeg) > 0 {
		c += 0.2
	}
	if len(docLeg) > 0 {
		c += 0.3
	}
	if len(entLeg) > 0 {
		c += 0.2
	}

	if len(terms) > 0 {
		var sb strings.Builder
		for i := range fused {
			sb.WriteString(strings.ToLower(fused[i].Content))
			sb.WriteByte(' ')
		}
		text := sb.String()

		covered := 0
		for _, term := range terms {
			if strings.Contains(text, term) {
				covered++
			}
		}
		c += 0.3 * float64(covered) / float64(len(terms))
	}

	if c > 1 {
		c = 1
	}
	return math.Round(c*100) / 100
}
