package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pgx "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/aiorreal/quota-service/internal/errors"
)

// PostgresStore implements Store on a single JSONB documents table.
// Transactions use row locks (SELECT ... FOR UPDATE) on the read set;
// conflicting inserts and serialization failures surface as ErrConflict and
// are retried.
type PostgresStore struct {
	db Database
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(db Database) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the documents table and the active-wallet index.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS quota_documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			doc JSONB NOT NULL,
			version BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (collection, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quota_documents_user_status
			ON quota_documents ((doc->>'userId'), (doc->>'status'), (doc->>'periodEnd'))`,
	}
	for _, stmt := range stmts {
		if err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Get retrieves a single document by id
func (s *PostgresStore) Get(ctx context.Context, collection, id string, dest any) (bool, error) {
	row := s.db.QueryRow(ctx,
		`SELECT doc FROM quota_documents WHERE collection=$1 AND id=$2`,
		collection, id,
	)

	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, apperrors.StoreError{Op: "get", Collection: collection, Err: err}
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, apperrors.StoreError{Op: "get", Collection: collection, Err: err}
	}
	return true, nil
}

const upsertMergeSQL = `
	INSERT INTO quota_documents (collection, id, doc)
	VALUES ($1, $2, $3)
	ON CONFLICT (collection, id) DO UPDATE SET
		doc = quota_documents.doc || EXCLUDED.doc,
		version = quota_documents.version + 1,
		updated_at = now()
`

const upsertReplaceSQL = `
	INSERT INTO quota_documents (collection, id, doc)
	VALUES ($1, $2, $3)
	ON CONFLICT (collection, id) DO UPDATE SET
		doc = EXCLUDED.doc,
		version = quota_documents.version + 1,
		updated_at = now()
`

// Set writes a document; merge uses the JSONB shallow-merge operator so
// absent fields are preserved
func (s *PostgresStore) Set(ctx context.Context, collection, id string, doc any, merge bool) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return apperrors.StoreError{Op: "set", Collection: collection, Err: err}
	}

	sql := upsertReplaceSQL
	if merge {
		sql = upsertMergeSQL
	}
	if err := s.db.Exec(ctx, sql, collection, id, data); err != nil {
		return apperrors.StoreError{Op: "set", Collection: collection, Err: err}
	}
	return nil
}

// Query retrieves documents matching all filters into dest
func (s *PostgresStore) Query(ctx context.Context, collection string, filters []Filter, order *Order, limit int, dest any) error {
	sql := `SELECT doc FROM quota_documents WHERE collection=$1`
	args := []any{collection}

	for _, f := range filters {
		args = append(args, filterArg(f.Value))
		sql += fmt.Sprintf(" AND doc->>'%s' = $%d", f.Field, len(args))
	}

	if order != nil {
		dir := "ASC"
		if order.Desc {
			dir = "DESC"
		}
		sql += fmt.Sprintf(" ORDER BY doc->>'%s' %s", order.Field, dir)
	}

	if limit > 0 {
		args = append(args, limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return apperrors.StoreError{Op: "query", Collection: collection, Err: err}
	}
	defer rows.Close()

	docs := []json.RawMessage{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return apperrors.StoreError{Op: "query", Collection: collection, Err: err}
		}
		docs = append(docs, json.RawMessage(raw))
	}
	if err := rows.Err(); err != nil {
		return apperrors.StoreError{Op: "query", Collection: collection, Err: err}
	}

	data, err := json.Marshal(docs)
	if err != nil {
		return apperrors.StoreError{Op: "query", Collection: collection, Err: err}
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return apperrors.StoreError{Op: "query", Collection: collection, Err: err}
	}
	return nil
}

// filterArg renders a filter value the way JSONB text extraction does.
func filterArg(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(x)
	}
}

type pgWrite struct {
	collection string
	id         string
	data       []byte
	merge      bool
}

type pgBatch struct {
	store  *PostgresStore
	writes []pgWrite
	err    error
}

// Batch returns a buffered writer applied sequentially on Commit
func (s *PostgresStore) Batch() Batch {
	return &pgBatch{store: s}
}

func (b *pgBatch) Set(collection, id string, doc any, merge bool) {
	data, err := json.Marshal(doc)
	if err != nil && b.err == nil {
		b.err = apperrors.StoreError{Op: "batch set", Collection: collection, Err: err}
		return
	}
	b.writes = append(b.writes, pgWrite{collection: collection, id: id, data: data, merge: merge})
}

func (b *pgBatch) Commit(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}
	for _, w := range b.writes {
		sql := upsertReplaceSQL
		if w.merge {
			sql = upsertMergeSQL
		}
		if err := b.store.db.Exec(ctx, sql, w.collection, w.id, w.data); err != nil {
			return apperrors.StoreError{Op: "batch commit", Collection: w.collection, Err: err}
		}
	}
	b.writes = nil
	return nil
}

type pgTx struct {
	ctx    context.Context
	tx     pgx.Tx
	writes []pgWrite
	err    error
}

func (t *pgTx) Get(collection, id string, dest any) (bool, error) {
	row := t.tx.QueryRow(t.ctx,
		`SELECT doc FROM quota_documents WHERE collection=$1 AND id=$2 FOR UPDATE`,
		collection, id,
	)

	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, apperrors.StoreError{Op: "tx get", Collection: collection, Err: err}
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, apperrors.StoreError{Op: "tx get", Collection: collection, Err: err}
	}
	return true, nil
}

func (t *pgTx) Set(collection, id string, doc any, merge bool) {
	data, err := json.Marshal(doc)
	if err != nil && t.err == nil {
		t.err = apperrors.StoreError{Op: "tx set", Collection: collection, Err: err}
		return
	}
	t.writes = append(t.writes, pgWrite{collection: collection, id: id, data: data, merge: merge})
}

// RunTransaction runs fn inside a database transaction. Reads lock their
// rows, writes are buffered and flushed before commit. Serialization
// failures, deadlocks and duplicate-create races map to ErrConflict and are
// retried a bounded number of times.
func (s *PostgresStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
			t := &pgTx{ctx: ctx, tx: tx}
			if err := fn(t); err != nil {
				return err
			}
			if t.err != nil {
				return t.err
			}
			return t.flush(ctx)
		})
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %v", apperrors.ErrConflict, lastErr)
}

func (t *pgTx) flush(ctx context.Context) error {
	for _, w := range t.writes {
		sql := upsertReplaceSQL
		if w.merge {
			sql = upsertMergeSQL
		}
		if _, err := t.tx.Exec(ctx, sql, w.collection, w.id, w.data); err != nil {
			return apperrors.StoreError{Op: "tx flush", Collection: w.collection, Err: err}
		}
	}
	return nil
}

// isRetryable reports whether a transaction failed on a concurrency race.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return true
		}
	}
	return false
}

// Health checks database connectivity
func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.Health(ctx)
}
