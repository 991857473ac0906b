// Package semantic implements the matcher's semantic subscore with trigger
// embeddings stored in PostgreSQL under a pgvector index.
//
// Scenario triggers are embedded once when a template is (re)indexed; at match
// time the caller utterance is embedded and compared by cosine distance
// against the scenario's triggers. Failures degrade to a zero subscore at the
// matcher, so a missing index or an unreachable embeddings backend never
// blocks routing.
package semantic

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/openclerk/switchboard/internal/match"
	"github.com/openclerk/switchboard/internal/template"
	"github.com/openclerk/switchboard/pkg/provider/embeddings"
)

var _ match.SemanticScorer = (*Scorer)(nil)

// Schema is the DDL for the trigger-embedding table. The vector dimension
// must match the embeddings provider in use; 1536 fits the OpenAI
// text-embedding-3-small default.
const Schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS trigger_embeddings (
    template_id TEXT         NOT NULL,
    scenario_id TEXT         NOT NULL,
    trigger     TEXT         NOT NULL,
    embedding   vector(1536) NOT NULL,
    PRIMARY KEY (template_id, scenario_id, trigger)
);

CREATE INDEX IF NOT EXISTS trigger_embeddings_hnsw
    ON trigger_embeddings USING hnsw (embedding vector_cosine_ops);
`

// embedCacheSize bounds the per-scorer utterance embedding cache. One turn
// scores many scenarios against the same utterance; the cache collapses those
// into a single provider call.
const embedCacheSize = 128

// Scorer scores utterance/scenario similarity over the trigger-embedding
// table. It implements the matcher's SemanticScorer contract and is safe for
// concurrent use.
type Scorer struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider

	mu    sync.Mutex
	cache map[string][]float32
	order []string
}

// New constructs a Scorer over the given pool and embeddings backend.
func New(pool *pgxpool.Pool, embedder embeddings.Provider) (*Scorer, error) {
	if pool == nil {
		return nil, errors.New("semantic: pool must not be nil")
	}
	if embedder == nil {
		return nil, errors.New("semantic: embedder must not be nil")
	}
	return &Scorer{
		pool:     pool,
		embedder: embedder,
		cache:    make(map[string][]float32, embedCacheSize),
	}, nil
}

// IndexTemplate embeds and upserts the triggers of every live scenario in the
// template, then removes rows for triggers that no longer exist. Call it when
// a template version changes.
func (s *Scorer) IndexTemplate(ctx context.Context, t *template.Template) error {
	for i := range t.Scenarios {
		sc := &t.Scenarios[i]
		if sc.Status != template.StatusLive {
			continue
		}
		if err := s.indexScenario(ctx, t.ID, sc); err != nil {
			return fmt.Errorf("semantic: index scenario %s: %w", sc.ID, err)
		}
	}
	return nil
}

// DeleteTemplate drops all embedding rows for a template.
func (s *Scorer) DeleteTemplate(ctx context.Context, templateID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM trigger_embeddings WHERE template_id = $1`, templateID)
	if err != nil {
		return fmt.Errorf("semantic: delete template: %w", err)
	}
	return nil
}

// IndexedTemplates lists the template IDs that currently have embedding rows.
// The startup reindex uses it to sweep rows left by removed templates.
func (s *Scorer) IndexedTemplates(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT template_id FROM trigger_embeddings`)
	if err != nil {
		return nil, fmt.Errorf("semantic: list indexed templates: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("semantic: scan template id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Score returns 1 − min cosine distance between the utterance and the
// scenario's indexed triggers, clamped to [0,1]. The lookup is scoped to the
// template: scenario IDs repeat across tenants. A scenario with no indexed
// triggers scores 0 without error.
func (s *Scorer) Score(ctx context.Context, utterance, templateID string, sc *template.Scenario) (float64, error) {
	if utterance == "" || templateID == "" || sc == nil {
		return 0, nil
	}

	vec, err := s.embedUtterance(ctx, utterance)
	if err != nil {
		return 0, fmt.Errorf("semantic: embed utterance: %w", err)
	}

	var distance float64
	err = s.pool.QueryRow(ctx, `
		SELECT embedding <=> $1 AS distance
		FROM   trigger_embeddings
		WHERE  template_id = $2 AND scenario_id = $3
		ORDER  BY distance
		LIMIT  1`,
		pgvector.NewVector(vec), templateID, sc.ID,
	).Scan(&distance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("semantic: query: %w", err)
	}

	sim := 1 - distance
	if sim < 0 {
		sim = 0
	}
	if sim > 1 {
		sim = 1
	}
	return sim, nil
}

// indexScenario upserts the scenario's trigger embeddings and deletes rows
// for removed triggers.
func (s *Scorer) indexScenario(ctx context.Context, templateID string, sc *template.Scenario) error {
	if len(sc.Triggers) == 0 {
		_, err := s.pool.Exec(ctx,
			`DELETE FROM trigger_embeddings WHERE template_id = $1 AND scenario_id = $2`,
			templateID, sc.ID)
		return err
	}

	vecs, err := s.embedder.EmbedBatch(ctx, sc.Triggers)
	if err != nil {
		return fmt.Errorf("embed triggers: %w", err)
	}

	batch := &pgx.Batch{}
	for i, trig := range sc.Triggers {
		batch.Queue(`
			INSERT INTO trigger_embeddings (template_id, scenario_id, trigger, embedding)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (template_id, scenario_id, trigger)
			DO UPDATE SET embedding = EXCLUDED.embedding`,
			templateID, sc.ID, trig, pgvector.NewVector(vecs[i]))
	}
	batch.Queue(`
		DELETE FROM trigger_embeddings
		WHERE template_id = $1 AND scenario_id = $2 AND NOT (trigger = ANY($3))`,
		templateID, sc.ID, sc.Triggers)

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert batch: %w", err)
		}
	}
	return nil
}

// embedUtterance returns the utterance embedding, served from a small
// in-process cache so one turn costs at most one provider call.
func (s *Scorer) embedUtterance(ctx context.Context, utterance string) ([]float32, error) {
	s.mu.Lock()
	if vec, ok := s.cache[utterance]; ok {
		s.mu.Unlock()
		return vec, nil
	}
	s.mu.Unlock()

	vec, err := s.embedder.Embed(ctx, utterance)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cache[utterance]; !ok {
		if len(s.order) >= embedCacheSize {
			oldest := s.order[0]
			s.order = s.order[1:]
			delete(s.cache, oldest)
		}
		s.cache[utterance] = vec
		s.order = append(s.order, utterance)
	}
	return vec, nil
}
