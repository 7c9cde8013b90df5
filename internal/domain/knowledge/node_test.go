package knowledge

import (
	"errors"
	"testing"
	"time"

	"github.com/meridian-cloud/contextd/internal/domain"
)

func TestNodeValidate(t *testing.T) {
	valid := Node{ID: "kn-1", BusinessID: "biz-1", Content: "refunds take 5 days"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Node)
	}{
		{"missing id", func(n *Node) { n.ID = "" }},
		{"missing business", func(n *Node) { n.BusinessID = "" }},
		{"missing content", func(n *Node) { n.Content = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := valid
			tt.mutate(&n)
			err := n.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestNextVersion(t *testing.T) {
	orig := Node{
		ID:         "kn-1",
		BusinessID: "biz-1",
		Content:    "old content",
		Version:    3,
		Tags:       []string{"refunds"},
	}
	at := time.Now()

	next := orig.NextVersion("new content", []float32{0.1, 0.2}, at)

	if next.Version != 4 {
		t.Errorf("expected version 4, got %d", next.Version)
	}
	if next.Content != "new content" {
		t.Errorf("expected updated content, got %q", next.Content)
	}
	if !next.UpdatedAt.Equal(at) {
		t.Errorf("expected UpdatedAt %v, got %v", at, next.UpdatedAt)
	}
	// Previous version stays intact for archival.
	if orig.Version != 3 || orig.Content != "old content" {
		t.Errorf("original node must not change: %+v", orig)
	}
}

func TestHasTag(t *testing.T) {
	n := Node{Tags: []string{"refunds", "policy"}}
	if !n.HasTag("policy") {
		t.Error("expected tag 'policy' to be found")
	}
	if n.HasTag("shipping") {
		t.Error("did not expect tag 'shipping'")
	}
}
