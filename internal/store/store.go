package store

import (
	"context"
	"encoding/json"
	"fmt"

	pgx "github.com/jackc/pgx/v5"
)

// Filter is a single equality predicate on a top-level document field.
type Filter struct {
	Field string
	Op    string // only "==" is supported
	Value any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: "==", Value: value}
}

// Order sorts query results by a top-level document field.
type Order struct {
	Field string
	Desc  bool
}

// Tx is the transactional view handed to RunTransaction closures. Reads
// join the transaction's read set; writes are buffered and applied
// atomically at commit.
type Tx interface {
	Get(collection, id string, dest any) (bool, error)
	Set(collection, id string, doc any, merge bool)
}

// Batch buffers writes that are applied together. Each document update is
// atomic but the group as a whole is not.
type Batch interface {
	Set(collection, id string, doc any, merge bool)
	Commit(ctx context.Context) error
}

// Store is the document-store abstraction the quota engine runs on.
// Implementations for production (Postgres) and in-memory testing are
// interchangeable.
type Store interface {
	Get(ctx context.Context, collection, id string, dest any) (bool, error)
	Set(ctx context.Context, collection, id string, doc any, merge bool) error
	Query(ctx context.Context, collection string, filters []Filter, order *Order, limit int, dest any) error
	Batch() Batch
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error
	Health(ctx context.Context) error
}

// Database interface for dependency injection
type Database interface {
	Exec(ctx context.Context, sql string, args ...any) error
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
	Health(ctx context.Context) error
	IsConfigured() bool
}

// New creates a new store instance
func New(db Database) Store {
	if db.IsConfigured() {
		return NewPostgresStore(db)
	}
	// Fallback to in-memory store if no database
	return NewMemoryStore()
}

// encodeDoc flattens any document value into a JSON object map.
func encodeDoc(doc any) (map[string]any, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode doc: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("doc is not a JSON object: %w", err)
	}
	return m, nil
}

// decodeDoc unmarshals a document map into dest.
func decodeDoc(m map[string]any, dest any) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("decode doc: %w", err)
	}
	return json.Unmarshal(data, dest)
}

// decodeDocs unmarshals a slice of document maps into dest, a pointer to a
// slice.
func decodeDocs(ms []map[string]any, dest any) error {
	data, err := json.Marshal(ms)
	if err != nil {
		return fmt.Errorf("decode docs: %w", err)
	}
	return json.Unmarshal(data, dest)
}

// mergeDocs shallow-merges incoming into existing: top-level fields of
// incoming win, absent fields of existing are preserved.
func mergeDocs(existing, incoming map[string]any) map[string]any {
	out := make(map[string]any, len(existing)+len(incoming))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range incoming {
		out[k] = v
	}
	return out
}

// matches evaluates an equality filter against a decoded document field.
// JSON decoding yields string, bool, or float64 values.
func matches(doc map[string]any, f Filter) bool {
	dv, ok := doc[f.Field]
	if !ok {
		return false
	}
	switch fv := f.Value.(type) {
	case string:
		s, ok := dv.(string)
		return ok && s == fv
	case bool:
		b, ok := dv.(bool)
		return ok && b == fv
	case int:
		n, ok := dv.(float64)
		return ok && n == float64(fv)
	case float64:
		n, ok := dv.(float64)
		return ok && n == fv
	default:
		return false
	}
}

// orderKey extracts the sortable value of a field; absent fields sort first.
// ISO-8601 UTC timestamps compare correctly as strings.
func orderKey(doc map[string]any, field string) string {
	v, ok := doc[field]
	if !ok {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
