// Package window keeps per-conversation context windows in process and
// mirrors them into a JSON document store so memory survives restarts.
package window

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/meridian-cloud/contextd/internal/db"
	"github.com/meridian-cloud/contextd/internal/domain"
	dw "github.com/meridian-cloud/contextd/internal/domain/window"
)

// jsonStore is the consumer interface for window persistence (ISP).
type jsonStore interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
}

// Repository is the authoritative in-process window store. The JSON tier is
// a durability mirror: reads prefer memory, falling back to the store only
// for conversations this process has not seen yet.
type Repository struct {
	mu        sync.Mutex
	windows   map[string]*dw.Window
	store     jsonStore
	keyPrefix string
	logger    *zap.Logger
}

// NewRepository creates a window repository backed by the given JSON store.
func NewRepository(store jsonStore, keyPrefix string, logger *zap.Logger) *Repository {
	return &Repository{
		windows:   make(map[string]*dw.Window),
		store:     store,
		keyPrefix: keyPrefix,
		logger:    logger,
	}
}

// GetOrCreate returns the window for a (business, conversation) pair,
// rehydrating from the store on a cold start. Store failures degrade to a
// fresh window; conversation memory is recoverable context, not state the
// pipeline may fail on.
func (r *Repository) GetOrCreate(ctx context.Context, businessID, conversationID string) *dw.Window {
	key := dw.Key(businessID, conversationID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.windows[key]; ok {
		return w
	}

	if w := r.load(ctx, key); w != nil {
		r.windows[key] = w
		return w
	}

	w := dw.New(businessID, conversationID)
	r.windows[key] = w
	return w
}

// Persist mirrors a window into the JSON store. Failures are classified as
// persistence errors so callers can treat them as best-effort.
func (r *Repository) Persist(ctx context.Context, w *dw.Window) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshal window: %w", domain.ErrPersistence)
	}

	key := r.storageKey(dw.Key(w.BusinessID, w.ConversationID))
	if err := r.store.JSONSet(ctx, key, "$", data); err != nil {
		return fmt.Errorf("persist window %s: %v: %w", key, err, domain.ErrPersistence)
	}
	return nil
}

func (r *Repository) load(ctx context.Context, key string) *dw.Window {
	data, err := r.store.JSONGet(ctx, r.storageKey(key))
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			r.logger.Warn("Failed to load window, starting fresh",
				zap.String("key", key), zap.Error(err))
		}
		return nil
	}

	var w dw.Window
	if err := json.Unmarshal(data, &w); err != nil {
		r.logger.Warn("Failed to parse stored window, starting fresh",
			zap.String("key", key), zap.Error(err))
		return nil
	}
	if w.Entities == nil {
		w.Entities = make(map[string]dw.Entity)
	}
	return &w
}

func (r *Repository) storageKey(key string) string {
	return r.keyPrefix + "window:" + key
}
