// Package knowledge models versioned business-knowledge nodes.
package knowledge

import (
	"fmt"
	"time"

	"github.com/meridian-cloud/contextd/internal/domain"
)

// Node is one business-owned knowledge entry. Updates bump Version; the
// previous version is archived, never deleted in place.
type Node struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"business_id"`
	EntityType string    `json:"entity_type"`
	EntityName string    `json:"entity_name"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"embedding,omitempty"`
	Version    int       `json:"version"`
	Confidence float64   `json:"confidence"`
	Tags       []string  `json:"tags,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Validate checks required fields before persistence.
func (n *Node) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("node id is required: %w", domain.ErrValidation)
	}
	if n.BusinessID == "" {
		return fmt.Errorf("node business_id is required: %w", domain.ErrValidation)
	}
	if n.Content == "" {
		return fmt.Errorf("node content is required: %w", domain.ErrValidation)
	}
	return nil
}

// NextVersion returns a copy carrying the updated content at Version+1.
// The receiver is left untouched so it can be archived as-is.
func (n *Node) NextVersion(content string, embedding []float32, at time.Time) Node {
	next := *n
	next.Content = content
	next.Embedding = embedding
	next.Version = n.Version + 1
	next.UpdatedAt = at
	return next
}

// HasTag reports whether the node carries the given tag.
func (n *Node) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
