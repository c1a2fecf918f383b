package store

import (
	"context"
	"sync"
	"testing"

	apperrors "github.com/aiorreal/quota-service/internal/errors"
)

type testDoc struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Status string `json:"status,omitempty"`
	End    string `json:"periodEnd,omitempty"`
	Count  int    `json:"count"`
}

func TestMemoryStore_GetSet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	found, err := s.Get(ctx, "c", "missing", &testDoc{})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Error("expected miss for absent doc")
	}

	if err := s.Set(ctx, "c", "d1", testDoc{ID: "d1", UserID: "u1", Count: 3}, false); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got testDoc
	found, err = s.Get(ctx, "c", "d1", &got)
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if got.UserID != "u1" || got.Count != 3 {
		t.Errorf("unexpected doc: %+v", got)
	}
}

func TestMemoryStore_SetMergePreservesFields(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Set(ctx, "c", "d1", map[string]any{"a": "1", "b": "2"}, false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "c", "d1", map[string]any{"b": "9"}, true); err != nil {
		t.Fatalf("merge Set: %v", err)
	}

	var got map[string]any
	if _, err := s.Get(ctx, "c", "d1", &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got["a"] != "1" || got["b"] != "9" {
		t.Errorf("merge result: %v", got)
	}
}

func TestMemoryStore_SetReplaceDropsFields(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Set(ctx, "c", "d1", map[string]any{"a": "1", "b": "2"}, false)
	_ = s.Set(ctx, "c", "d1", map[string]any{"b": "9"}, false)

	var got map[string]any
	if _, err := s.Get(ctx, "c", "d1", &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, ok := got["a"]; ok {
		t.Error("replace must drop absent fields")
	}
}

func TestMemoryStore_QueryFilterOrderLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	docs := []testDoc{
		{ID: "w1", UserID: "u1", Status: "active", End: "2025-02-01T00:00:00Z"},
		{ID: "w2", UserID: "u1", Status: "active", End: "2025-03-01T00:00:00Z"},
		{ID: "w3", UserID: "u1", Status: "closed", End: "2025-04-01T00:00:00Z"},
		{ID: "w4", UserID: "u2", Status: "active", End: "2025-05-01T00:00:00Z"},
	}
	for _, d := range docs {
		if err := s.Set(ctx, "wallets", d.ID, d, false); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	var got []testDoc
	err := s.Query(ctx, "wallets",
		[]Filter{Eq("userId", "u1"), Eq("status", "active")},
		&Order{Field: "periodEnd", Desc: true}, 0, &got)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].ID != "w2" || got[1].ID != "w1" {
		t.Errorf("wrong order: %s, %s", got[0].ID, got[1].ID)
	}

	got = nil
	err = s.Query(ctx, "wallets",
		[]Filter{Eq("userId", "u1")},
		&Order{Field: "periodEnd", Desc: true}, 1, &got)
	if err != nil {
		t.Fatalf("Query with limit: %v", err)
	}
	if len(got) != 1 || got[0].ID != "w3" {
		t.Errorf("limit result: %+v", got)
	}
}

func TestMemoryStore_QueryEmptyResult(t *testing.T) {
	s := NewMemoryStore()
	var got []testDoc
	if err := s.Query(context.Background(), "none", []Filter{Eq("userId", "u1")}, nil, 0, &got); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty, got %d", len(got))
	}
}

func TestMemoryStore_Batch(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Set(ctx, "c", "d1", map[string]any{"status": "active", "keep": "yes"}, false)
	_ = s.Set(ctx, "c", "d2", map[string]any{"status": "active"}, false)

	b := s.Batch()
	b.Set("c", "d1", map[string]any{"status": "closed"}, true)
	b.Set("c", "d2", map[string]any{"status": "closed"}, true)
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	var got map[string]any
	_, _ = s.Get(ctx, "c", "d1", &got)
	if got["status"] != "closed" || got["keep"] != "yes" {
		t.Errorf("batch merge result: %v", got)
	}
}

func TestMemoryStore_TransactionReadModifyWrite(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Set(ctx, "c", "d1", testDoc{ID: "d1", Count: 1}, false)

	err := s.RunTransaction(ctx, func(tx Tx) error {
		var d testDoc
		found, err := tx.Get("c", "d1", &d)
		if err != nil {
			return err
		}
		if !found {
			t.Fatal("expected doc in tx")
		}
		d.Count++
		tx.Set("c", "d1", d, false)
		return nil
	})
	if err != nil {
		t.Fatalf("RunTransaction: %v", err)
	}

	var got testDoc
	_, _ = s.Get(ctx, "c", "d1", &got)
	if got.Count != 2 {
		t.Errorf("expected count 2, got %d", got.Count)
	}
}

func TestMemoryStore_TransactionRetriesOnConflict(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Set(ctx, "c", "d1", testDoc{ID: "d1", Count: 0}, false)

	// Interleave a write between the transaction's read and its commit on
	// the first attempt only; the retry must observe the new value.
	interfered := false
	err := s.RunTransaction(ctx, func(tx Tx) error {
		var d testDoc
		if _, err := tx.Get("c", "d1", &d); err != nil {
			return err
		}
		if !interfered {
			interfered = true
			_ = s.Set(ctx, "c", "d1", testDoc{ID: "d1", Count: 10}, false)
		}
		d.Count++
		tx.Set("c", "d1", d, false)
		return nil
	})
	if err != nil {
		t.Fatalf("RunTransaction: %v", err)
	}

	var got testDoc
	_, _ = s.Get(ctx, "c", "d1", &got)
	if got.Count != 11 {
		t.Errorf("expected retried increment on fresh read (11), got %d", got.Count)
	}
}

func TestMemoryStore_TransactionObservesAbsence(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	// A transaction that read "absent" must conflict if the doc appears
	// before commit.
	interfered := false
	err := s.RunTransaction(ctx, func(tx Tx) error {
		var d testDoc
		found, err := tx.Get("c", "d1", &d)
		if err != nil {
			return err
		}
		if found {
			// Replay after interference: keep the existing doc.
			return nil
		}
		if !interfered {
			interfered = true
			_ = s.Set(ctx, "c", "d1", testDoc{ID: "d1", Count: 99}, false)
		}
		tx.Set("c", "d1", testDoc{ID: "d1", Count: 1}, false)
		return nil
	})
	if err != nil {
		t.Fatalf("RunTransaction: %v", err)
	}

	var got testDoc
	_, _ = s.Get(ctx, "c", "d1", &got)
	if got.Count != 99 {
		t.Errorf("expected first write to win (99), got %d", got.Count)
	}
}

func TestMemoryStore_ConcurrentTransactionsSerialize(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Set(ctx, "c", "counter", testDoc{ID: "counter", Count: 0}, false)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.RunTransaction(ctx, func(tx Tx) error {
				var d testDoc
				if _, err := tx.Get("c", "counter", &d); err != nil {
					return err
				}
				d.Count++
				tx.Set("c", "counter", d, false)
				return nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else if !apperrors.IsConflict(err) {
			t.Errorf("unexpected error: %v", err)
		}
	}

	var got testDoc
	_, _ = s.Get(ctx, "c", "counter", &got)
	if got.Count != succeeded {
		t.Errorf("lost update: %d successes but count %d", succeeded, got.Count)
	}
	if succeeded == 0 {
		t.Error("expected at least one transaction to succeed")
	}
}
