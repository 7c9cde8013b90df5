// Package knowledge persists versioned business-knowledge nodes and serves
// hybrid (vector + keyword + graph) retrieval over them.
package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/meridian-cloud/contextd/internal/db"
	"github.com/meridian-cloud/contextd/internal/domain"
	"github.com/meridian-cloud/contextd/internal/domain/knowledge"
	"github.com/meridian-cloud/contextd/internal/domain/scoring"
	"github.com/meridian-cloud/contextd/internal/usecase/fusion"
)

// IndexName is the FT index over knowledge nodes.
const IndexName = "idx:knowledge"

// jsonStore is the consumer interface for node persistence (ISP).
type jsonStore interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
}

// searcher is the consumer interface for the hybrid search legs.
type searcher interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchBM25(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
}

// indexManager is the consumer interface for index bootstrap.
type indexManager interface {
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// store is everything the repository needs from the database.
type store interface {
	jsonStore
	searcher
	indexManager
}

// Repository stores knowledge nodes as JSON documents and fuses the three
// search legs into a single document ranking.
type Repository struct {
	store      store
	engine     *fusion.Engine
	keyPrefix  string
	vectorDims int
	logger     *zap.Logger
}

// NewRepository creates a knowledge repository.
func NewRepository(s store, engine *fusion.Engine, keyPrefix string, vectorDims int, logger *zap.Logger) *Repository {
	return &Repository{
		store:      s,
		engine:     engine,
		keyPrefix:  keyPrefix,
		vectorDims: vectorDims,
		logger:     logger,
	}
}

// EnsureIndex creates the FT index if missing. Safe to call on every start.
func (r *Repository) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, IndexName)
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:        IndexName,
		Prefix:      r.nodePrefix(),
		TextFields:  []string{"content", "entity_name"},
		TagFields:   []string{"business_id", "entity_type"},
		VectorField: "embedding",
		VectorDim:   r.vectorDims,
	}
	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// Get returns the current version of a node.
func (r *Repository) Get(ctx context.Context, businessID, nodeID string) (*knowledge.Node, error) {
	data, err := r.store.JSONGet(ctx, r.nodeKey(businessID, nodeID))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, fmt.Errorf("node %s: %w", nodeID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get node %s: %w", nodeID, err)
	}

	var node knowledge.Node
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parse node %s: %w", nodeID, err)
	}
	return &node, nil
}

// Put stores a node, archiving the previous version first. Versions only
// move forward: an existing node forces the incoming version to current+1
// regardless of what the caller set.
func (r *Repository) Put(ctx context.Context, node *knowledge.Node) error {
	if err := node.Validate(); err != nil {
		return err
	}

	current, err := r.Get(ctx, node.BusinessID, node.ID)
	switch {
	case err == nil:
		if err := r.archive(ctx, current); err != nil {
			return err
		}
		node.Version = current.Version + 1
	case errors.Is(err, domain.ErrNotFound):
		if node.Version <= 0 {
			node.Version = 1
		}
	default:
		return err
	}

	data, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("marshal node %s: %w", node.ID, err)
	}
	if err := r.store.JSONSet(ctx, r.nodeKey(node.BusinessID, node.ID), "$", data); err != nil {
		return fmt.Errorf("store node %s: %w", node.ID, err)
	}
	return nil
}

// GetVersion returns an archived version of a node.
func (r *Repository) GetVersion(ctx context.Context, businessID, nodeID string, version int) (*knowledge.Node, error) {
	data, err := r.store.JSONGet(ctx, r.archiveKey(businessID, nodeID, version))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, fmt.Errorf("node %s v%d: %w", nodeID, version, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get node %s v%d: %w", nodeID, version, err)
	}

	var node knowledge.Node
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parse node %s v%d: %w", nodeID, version, err)
	}
	return &node, nil
}

// HybridSearch runs up to three legs against the node index and fuses them
// into one document ranking. Keyword and graph tags are transient; every
// fused result comes back tagged as a document source.
func (r *Repository) HybridSearch(ctx context.Context, q knowledge.SearchQuery) ([]scoring.Result, error) {
	if q.BusinessID == "" {
		return nil, fmt.Errorf("business id is required: %w", domain.ErrValidation)
	}
	topK := q.TopK
	if topK <= 0 {
		topK = 10
	}
	tags := map[string]string{"business_id": q.BusinessID}
	returnFields := []string{"content", "entity_type"}

	var vectorLeg, keywordLeg, graphLeg []scoring.Result

	if len(q.Vector) > 0 {
		// A RETURN clause limits the reply to the named attributes, so the
		// KNN distance must be requested explicitly alongside the payload.
		res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
			IndexName:    IndexName,
			Vector:       q.Vector,
			K:            topK,
			Tags:         tags,
			ReturnFields: append([]string{"__vector_score"}, returnFields...),
		})
		if err != nil {
			return nil, fmt.Errorf("vector leg: %w", err)
		}
		vectorLeg = r.toResults(res, scoring.SourceDocument, false)
	}

	if len(q.Terms) > 0 {
		res, err := r.store.SearchBM25(ctx, &db.TextQuery{
			IndexName:    IndexName,
			Query:        strings.Join(q.Terms, " "),
			TopK:         topK,
			Tags:         tags,
			ReturnFields: returnFields,
		})
		if err != nil {
			return nil, fmt.Errorf("keyword leg: %w", err)
		}
		keywordLeg = r.toResults(res, scoring.SourceKeyword, true)
	}

	if len(q.Entities) > 0 {
		res, err := r.store.SearchBM25(ctx, &db.TextQuery{
			IndexName:    IndexName,
			Query:        strings.Join(q.Entities, " "),
			TopK:         topK,
			Tags:         tags,
			ReturnFields: returnFields,
		})
		if err != nil {
			return nil, fmt.Errorf("graph leg: %w", err)
		}
		graphLeg = r.toResults(res, scoring.SourceGraph, true)
	}

	fused := r.engine.Fuse(scoring.SearchWeights(), vectorLeg, keywordLeg, graphLeg)

	for i := range fused {
		fused[i].Source = scoring.SourceDocument
	}
	return fused, nil
}

// toResults converts raw hits to scored results. BM25 scores are unbounded,
// so normalize divides each leg by its own maximum to land in [0,1] like the
// similarity leg.
func (r *Repository) toResults(res *db.SearchResult, source scoring.SourceType, normalize bool) []scoring.Result {
	if res == nil || len(res.Entries) == 0 {
		return nil
	}

	maxScore := 0.0
	if normalize {
		for _, e := range res.Entries {
			if e.Score > maxScore {
				maxScore = e.Score
			}
		}
	}

	out := make([]scoring.Result, 0, len(res.Entries))
	for _, e := range res.Entries {
		score := e.Score
		if normalize && maxScore > 0 {
			score = e.Score / maxScore
		}
		out = append(out, scoring.Result{
			Source:   source,
			Content:  e.Fields["content"],
			RawScore: score,
			Document: &scoring.DocumentRef{
				NodeID:     r.nodeIDFromKey(e.Key),
				EntityType: e.Fields["entity_type"],
			},
		})
	}
	return out
}

func (r *Repository) archive(ctx context.Context, node *knowledge.Node) error {
	data, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("marshal archived node %s: %w", node.ID, err)
	}
	key := r.archiveKey(node.BusinessID, node.ID, node.Version)
	if err := r.store.JSONSet(ctx, key, "$", data); err != nil {
		return fmt.Errorf("archive node %s v%d: %w", node.ID, node.Version, err)
	}
	return nil
}

func (r *Repository) nodePrefix() string {
	return r.keyPrefix + "node:"
}

func (r *Repository) nodeKey(businessID, nodeID string) string {
	return r.nodePrefix() + businessID + ":" + nodeID
}

// archiveKey lives outside the index prefix so archived versions never show
// up in search results.
func (r *Repository) archiveKey(businessID, nodeID string, version int) string {
	return fmt.Sprintf("%snodearch:%s:%s:v%d", r.keyPrefix, businessID, nodeID, version)
}

// nodeIDFromKey recovers the node ID from a document key
// ("<prefix>node:<business>:<id>").
func (r *Repository) nodeIDFromKey(key string) string {
	rest := strings.TrimPrefix(key, r.nodePrefix())
	if i := strings.Index(rest, ":"); i >= 0 {
		return rest[i+1:]
	}
	return rest
}
