// Package window holds the bounded, prunable per-conversation memory
// structure feeding the generator.
package window

import (
	"sort"
	"strings"
	"time"

	"github.com/meridian-cloud/contextd/internal/domain"
)

// Entity is a named entity tracked across a conversation.
type Entity struct {
	Type     string    `json:"type"`
	Mentions int       `json:"mentions"`
	LastSeen time.Time `json:"last_seen"`
}

// Window is the per-conversation context: ordered turns plus derived
// metadata. One window exists per (business, conversation) pair.
type Window struct {
	ConversationID     string                    `json:"conversation_id"`
	BusinessID         string                    `json:"business_id"`
	Turns              []domain.ConversationTurn `json:"turns"`
	Summary            string                    `json:"summary"`
	Topics             []string                  `json:"topics"`
	Entities           map[string]Entity         `json:"entities"`
	TotalTokenEstimate int                       `json:"total_token_estimate"`
}

// New creates an empty window for a (business, conversation) pair.
func New(businessID, conversationID string) *Window {
	return &Window{
		ConversationID: conversationID,
		BusinessID:     businessID,
		Entities:       make(map[string]Entity),
	}
}

// Key returns the cache key for a (business, conversation) pair.
func Key(businessID, conversationID string) string {
	return businessID + ":" + conversationID
}

// Append adds a turn and updates the token estimate. Turns are immutable and
// append-only; callers must not mutate a turn after appending.
func (w *Window) Append(turn domain.ConversationTurn) {
	w.Turns = append(w.Turns, turn)
	w.TotalTokenEstimate += turn.TokenEstimate()
}

// NeedsPrune reports whether the window exceeds either budget.
func (w *Window) NeedsPrune(maxTurns, maxContextTokens int) bool {
	return len(w.Turns) > maxTurns || w.TotalTokenEstimate > maxContextTokens
}

// Prune bounds the window to maxTurns while preserving high-value turns.
// Important turns (confidence > 0.8 or command type) and the most recent
// floor(maxTurns*0.7) turns are unioned, de-duplicated by ID, ordered by
// timestamp, then cut to the most recent maxTurns. An important turn can
// still fall outside the final cut when the union exceeds maxTurns.
func (w *Window) Prune(maxTurns int) {
	if maxTurns <= 0 || len(w.Turns) == 0 {
		return
	}

	recentCount := maxTurns * 7 / 10
	recentStart := len(w.Turns) - recentCount
	if recentStart < 0 {
		recentStart = 0
	}

	kept := make([]domain.ConversationTurn, 0, maxTurns)
	seen := make(map[string]bool)

	for i := range w.Turns {
		if w.Turns[i].Important() && !seen[w.Turns[i].ID] {
			seen[w.Turns[i].ID] = true
			kept = append(kept, w.Turns[i])
		}
	}
	for i := recentStart; i < len(w.Turns); i++ {
		if !seen[w.Turns[i].ID] {
			seen[w.Turns[i].ID] = true
			kept = append(kept, w.Turns[i])
		}
	}

	// Top up with the most recent unselected turns: the window stays as full
	// as the budget allows instead of shrinking to the 70% recency slice.
	for i := len(w.Turns) - 1; i >= 0 && len(kept) < maxTurns; i-- {
		if !seen[w.Turns[i].ID] {
			seen[w.Turns[i].ID] = true
			kept = append(kept, w.Turns[i])
		}
	}

	sort.Slice(kept, func(i, j int) bool {
		return kept[i].Timestamp.Before(kept[j].Timestamp)
	})

	if len(kept) > maxTurns {
		kept = kept[len(kept)-maxTurns:]
	}

	w.Turns = kept
	w.recalculateTokens()
}

// RebuildMetadata regenerates summary, topics, and entities from the retained
// turns only. Topic and entity extraction is delegated to the analyzer;
// this method wires the results back into the window.
func (w *Window) RebuildMetadata(summary string, topics []string, entities map[string]Entity) {
	w.Summary = summary
	w.Topics = topics
	if entities == nil {
		entities = make(map[string]Entity)
	}
	w.Entities = entities
}

// RecordEntity upserts an entity mention.
func (w *Window) RecordEntity(name, entityType string, at time.Time) {
	if w.Entities == nil {
		w.Entities = make(map[string]Entity)
	}
	e := w.Entities[name]
	e.Type = entityType
	e.Mentions++
	e.LastSeen = at
	w.Entities[name] = e
}

// AddTopics merges topics into the window's topic set, case-insensitively.
func (w *Window) AddTopics(topics []string) {
	existing := make(map[string]bool, len(w.Topics))
	for _, t := range w.Topics {
		existing[strings.ToLower(t)] = true
	}
	for _, t := range topics {
		if lt := strings.ToLower(t); !existing[lt] {
			existing[lt] = true
			w.Topics = append(w.Topics, t)
		}
	}
}

// HasTopic reports whether text mentions any known topic (case-insensitive
// substring containment).
func (w *Window) HasTopic(text string) bool {
	lower := strings.ToLower(text)
	for _, t := range w.Topics {
		if strings.Contains(lower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

// ReferencedEntities returns the names of known entities mentioned in text
// (case-insensitive substring containment).
func (w *Window) ReferencedEntities(text string) []string {
	lower := strings.ToLower(text)
	var refs []string
	for name := range w.Entities {
		if strings.Contains(lower, strings.ToLower(name)) {
			refs = append(refs, name)
		}
	}
	sort.Strings(refs)
	return refs
}

func (w *Window) recalculateTokens() {
	total := 0
	for i := range w.Turns {
		total += w.Turns[i].TokenEstimate()
	}
	w.TotalTokenEstimate = total
}
