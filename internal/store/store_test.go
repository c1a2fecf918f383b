package store

import (
	"context"
	"testing"

	pgx "github.com/jackc/pgx/v5"
)

type cfgDB struct{ configured bool }

func (d *cfgDB) Exec(ctx context.Context, sql string, args ...any) error { return nil }
func (d *cfgDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (d *cfgDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (d *cfgDB) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error    { return nil }
func (d *cfgDB) Health(ctx context.Context) error                              { return nil }
func (d *cfgDB) IsConfigured() bool                                            { return d.configured }

func TestNew_ReturnsPostgresWhenConfigured(t *testing.T) {
	db := &cfgDB{configured: true}
	s := New(db)
	if _, ok := s.(*PostgresStore); !ok {
		t.Fatalf("expected PostgresStore when db is configured, got %T", s)
	}
}

func TestNew_ReturnsMemoryWhenNotConfigured(t *testing.T) {
	db := &cfgDB{configured: false}
	s := New(db)
	if _, ok := s.(*MemoryStore); !ok {
		t.Fatalf("expected MemoryStore when db is not configured, got %T", s)
	}
}

func TestMergeDocs(t *testing.T) {
	existing := map[string]any{"a": "1", "b": "2"}
	incoming := map[string]any{"b": "9", "c": "3"}
	out := mergeDocs(existing, incoming)
	if out["a"] != "1" || out["b"] != "9" || out["c"] != "3" {
		t.Errorf("merge result: %v", out)
	}
	if existing["b"] != "2" {
		t.Error("merge must not mutate its inputs")
	}
}

func TestMatches(t *testing.T) {
	doc := map[string]any{"userId": "u1", "active": true, "amount": float64(3)}
	if !matches(doc, Eq("userId", "u1")) {
		t.Error("string match failed")
	}
	if matches(doc, Eq("userId", "u2")) {
		t.Error("string mismatch matched")
	}
	if !matches(doc, Eq("active", true)) {
		t.Error("bool match failed")
	}
	if !matches(doc, Eq("amount", 3)) {
		t.Error("int-vs-float match failed")
	}
	if matches(doc, Eq("missing", "x")) {
		t.Error("absent field matched")
	}
}
