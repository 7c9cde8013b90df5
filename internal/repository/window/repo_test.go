package window

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-cloud/contextd/internal/db"
	"github.com/meridian-cloud/contextd/internal/domain"
	dw "github.com/meridian-cloud/contextd/internal/domain/window"
)

type mockJSONStore struct {
	data     map[string][]byte
	setErr   error
	getErr   error
	setCalls int
}

func newMockJSONStore() *mockJSONStore {
	return &mockJSONStore{data: make(map[string][]byte)}
}

func (m *mockJSONStore) JSONSet(_ context.Context, key, _ string, data []byte) error {
	m.setCalls++
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = data
	return nil
}

func (m *mockJSONStore) JSONGet(_ context.Context, key string, _ ...string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, db.ErrKeyNotFound
}

func TestGetOrCreate_NewWindow(t *testing.T) {
	repo := NewRepository(newMockJSONStore(), "contextd:", zap.NewNop())

	w := repo.GetOrCreate(context.Background(), "biz-1", "conv-1")
	if w == nil {
		t.Fatal("expected window")
	}
	if w.BusinessID != "biz-1" || w.ConversationID != "conv-1" {
		t.Errorf("unexpected identity: %s/%s", w.BusinessID, w.ConversationID)
	}
	if len(w.Turns) != 0 {
		t.Errorf("expected empty window, got %d turns", len(w.Turns))
	}
}

func TestGetOrCreate_ReturnsSameInstance(t *testing.T) {
	repo := NewRepository(newMockJSONStore(), "contextd:", zap.NewNop())

	a := repo.GetOrCreate(context.Background(), "biz-1", "conv-1")
	a.Append(domain.ConversationTurn{ID: "t1", Timestamp: time.Now(), UserText: "hello"})

	b := repo.GetOrCreate(context.Background(), "biz-1", "conv-1")
	if a != b {
		t.Fatal("expected the same window instance")
	}
	if len(b.Turns) != 1 {
		t.Errorf("expected 1 turn, got %d", len(b.Turns))
	}
}

func TestGetOrCreate_IsolatesTenants(t *testing.T) {
	repo := NewRepository(newMockJSONStore(), "contextd:", zap.NewNop())

	a := repo.GetOrCreate(context.Background(), "biz-1", "conv-1")
	b := repo.GetOrCreate(context.Background(), "biz-2", "conv-1")
	if a == b {
		t.Fatal("expected distinct windows for distinct businesses")
	}
}

func TestPersist_WritesJSONDocument(t *testing.T) {
	ms := newMockJSONStore()
	repo := NewRepository(ms, "contextd:", zap.NewNop())

	w := repo.GetOrCreate(context.Background(), "biz-1", "conv-1")
	w.Append(domain.ConversationTurn{ID: "t1", Timestamp: time.Now(), UserText: "hello there"})

	if err := repo.Persist(context.Background(), w); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	data, ok := ms.data["contextd:window:biz-1:conv-1"]
	if !ok {
		t.Fatal("expected document under prefixed key")
	}

	var stored dw.Window
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatalf("stored document is not valid JSON: %v", err)
	}
	if len(stored.Turns) != 1 || stored.Turns[0].ID != "t1" {
		t.Errorf("unexpected stored turns: %+v", stored.Turns)
	}
}

func TestPersist_StoreErrorClassifiedAsPersistence(t *testing.T) {
	ms := newMockJSONStore()
	ms.setErr = errors.New("connection refused")
	repo := NewRepository(ms, "contextd:", zap.NewNop())

	w := repo.GetOrCreate(context.Background(), "biz-1", "conv-1")
	err := repo.Persist(context.Background(), w)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, domain.ErrPersistence) {
		t.Errorf("expected ErrPersistence, got %v", err)
	}
	if domain.Classify(err) != domain.KindPersistence {
		t.Errorf("expected persistence kind, got %s", domain.Classify(err))
	}
}

func TestGetOrCreate_RehydratesFromStore(t *testing.T) {
	ms := newMockJSONStore()

	stored := dw.New("biz-1", "conv-1")
	stored.Append(domain.ConversationTurn{ID: "t1", Timestamp: time.Now(), UserText: "restored"})
	data, _ := json.Marshal(stored)
	ms.data["contextd:window:biz-1:conv-1"] = data

	repo := NewRepository(ms, "contextd:", zap.NewNop())
	w := repo.GetOrCreate(context.Background(), "biz-1", "conv-1")

	if len(w.Turns) != 1 || w.Turns[0].UserText != "restored" {
		t.Errorf("expected rehydrated window, got %+v", w.Turns)
	}
	if w.Entities == nil {
		t.Error("expected entities map initialized after rehydration")
	}
}

func TestGetOrCreate_StoreErrorDegradesToFresh(t *testing.T) {
	ms := newMockJSONStore()
	ms.getErr = errors.New("connection refused")
	repo := NewRepository(ms, "contextd:", zap.NewNop())

	w := repo.GetOrCreate(context.Background(), "biz-1", "conv-1")
	if w == nil {
		t.Fatal("expected a fresh window despite store failure")
	}
	if len(w.Turns) != 0 {
		t.Errorf("expected empty window, got %d turns", len(w.Turns))
	}
}
