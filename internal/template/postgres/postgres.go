// Package postgres persists templates and company profiles in PostgreSQL.
//
// Template bodies are stored as JSONB next to an explicit version column; the
// version is the optimistic-concurrency token for pattern writebacks. A
// writeback that lost the race reports [template.ErrVersionConflict] and
// modifies nothing.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/openclerk/switchboard/internal/template"
)

// Schema is the SQL DDL for the template tables. Execute it via
// [Store.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS templates (
    id         TEXT PRIMARY KEY,
    version    BIGINT NOT NULL DEFAULT 1,
    body       JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS companies (
    id         TEXT PRIMARY KEY,
    body       JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is a [template.Store] and [template.CompanyStore] backed by
// PostgreSQL.
type Store struct {
	db DB
}

// Compile-time interface checks.
var (
	_ template.Store        = (*Store)(nil)
	_ template.CompanyStore = (*Store)(nil)
)

// NewStore creates a Store that uses the given database connection or pool.
// The caller is responsible for calling [Store.Migrate] to ensure the schema
// exists before issuing queries.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Migrate executes the [Schema] DDL against the database.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// LoadTemplate implements [template.Store].
func (s *Store) LoadTemplate(ctx context.Context, id string) (*template.Template, error) {
	const query = `SELECT version, body FROM templates WHERE id = $1`

	var version int64
	var body []byte
	err := s.db.QueryRow(ctx, query, id).Scan(&version, &body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("postgres: load template %q: %w", id, template.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: load template %q: %w", id, err)
	}

	t := &template.Template{}
	if err := json.Unmarshal(body, t); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal template %q: %w", id, err)
	}
	// The version column is authoritative; the body copy may lag behind.
	t.ID = id
	t.Version = version
	return t, nil
}

// SaveTemplate validates and upserts t. A new template starts at version 1;
// replacing an existing one advances the stored version by one regardless of
// the version carried in t.
func (s *Store) SaveTemplate(ctx context.Context, t *template.Template) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("postgres: save template %q: %w", t.ID, err)
	}
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("postgres: marshal template %q: %w", t.ID, err)
	}

	const query = `
		INSERT INTO templates (id, version, body) VALUES ($1, 1, $2)
		ON CONFLICT (id) DO UPDATE SET
			version = templates.version + 1,
			body = EXCLUDED.body,
			updated_at = now()
		RETURNING version`

	var version int64
	if err := s.db.QueryRow(ctx, query, t.ID, body).Scan(&version); err != nil {
		return fmt.Errorf("postgres: save template %q: %w", t.ID, err)
	}
	t.Version = version
	return nil
}

// ApplyPatterns implements [template.Store]. The merge runs in memory on the
// loaded body and the write is guarded by the version column: a concurrent
// writer that advanced the version first wins and this call reports
// [template.ErrVersionConflict] without modifying anything.
func (s *Store) ApplyPatterns(ctx context.Context, id string, patterns []template.Pattern, expectedVersion int64) (*template.ApplyResult, error) {
	t, err := s.LoadTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Version != expectedVersion {
		return nil, fmt.Errorf("postgres: apply patterns to %q: have version %d, expected %d: %w",
			id, t.Version, expectedVersion, template.ErrVersionConflict)
	}

	res := template.Merge(t, patterns)
	if len(res.Applied) == 0 {
		return res, nil
	}

	t.Version = expectedVersion + 1
	body, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("postgres: marshal template %q: %w", id, err)
	}

	const query = `
		UPDATE templates
		SET version = $2, body = $3, updated_at = now()
		WHERE id = $1 AND version = $4`

	tag, err := s.db.Exec(ctx, query, id, t.Version, body, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("postgres: apply patterns to %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("postgres: apply patterns to %q: expected version %d: %w",
			id, expectedVersion, template.ErrVersionConflict)
	}
	return res, nil
}

// LoadCompany implements [template.CompanyStore].
func (s *Store) LoadCompany(ctx context.Context, id string) (*template.Company, error) {
	const query = `SELECT body FROM companies WHERE id = $1`

	var body []byte
	err := s.db.QueryRow(ctx, query, id).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("postgres: load company %q: %w", id, template.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: load company %q: %w", id, err)
	}

	c := &template.Company{}
	if err := json.Unmarshal(body, c); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal company %q: %w", id, err)
	}
	c.ID = id
	return c, nil
}

// SaveCompany validates and upserts c.
func (s *Store) SaveCompany(ctx context.Context, c *template.Company) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("postgres: save company %q: %w", c.ID, err)
	}
	body, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("postgres: marshal company %q: %w", c.ID, err)
	}

	const query = `
		INSERT INTO companies (id, body) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET
			body = EXCLUDED.body,
			updated_at = now()`

	if _, err := s.db.Exec(ctx, query, c.ID, body); err != nil {
		return fmt.Errorf("postgres: save company %q: %w", c.ID, err)
	}
	return nil
}

// ListTemplateIDs returns the IDs of all stored templates, ordered.
func (s *Store) ListTemplateIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM templates ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list templates: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: list templates scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list templates: %w", err)
	}
	return ids, nil
}
