package cost

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the llm_calls table. Execute it via
// [PostgresAggregator.Migrate] or apply it manually during deployment.
// Monthly spend is derived from the call log rather than kept as a separate
// counter, so a crashed writer can never leave the aggregate out of sync.
const Schema = `
CREATE TABLE IF NOT EXISTS llm_calls (
    id          BIGSERIAL PRIMARY KEY,
    template_id TEXT NOT NULL,
    company_id  TEXT NOT NULL DEFAULT '',
    call_id     TEXT NOT NULL DEFAULT '',
    model       TEXT NOT NULL DEFAULT '',
    tokens      INT NOT NULL DEFAULT 0,
    cost_usd    DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_llm_calls_template_month
    ON llm_calls(template_id, date_trunc('month', created_at));
`

// DB is the database interface used by [PostgresAggregator]. Both
// *pgxpool.Pool and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Retry policy for transient write failures.
const (
	maxAttempts    = 3
	initialBackoff = 50 * time.Millisecond
	maxBackoff     = 250 * time.Millisecond
)

// PostgresAggregator is an [Aggregator] backed by PostgreSQL.
type PostgresAggregator struct {
	db DB
}

// Compile-time interface check.
var _ Aggregator = (*PostgresAggregator)(nil)

// NewPostgresAggregator creates an aggregator over the given connection or
// pool. The caller is responsible for calling Migrate before issuing queries.
func NewPostgresAggregator(db DB) *PostgresAggregator {
	return &PostgresAggregator{db: db}
}

// Migrate executes the [Schema] DDL against the database.
func (a *PostgresAggregator) Migrate(ctx context.Context) error {
	if _, err := a.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("cost: migrate: %w", err)
	}
	return nil
}

// CurrentSpend implements [Aggregator] by summing the call log for the month.
func (a *PostgresAggregator) CurrentSpend(ctx context.Context, templateID, month string) (float64, error) {
	start, err := time.Parse("2006-01", month)
	if err != nil {
		return 0, fmt.Errorf("cost: bad month %q: %w", month, err)
	}
	end := start.AddDate(0, 1, 0)

	var total float64
	err = a.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(cost_usd), 0)
		FROM   llm_calls
		WHERE  template_id = $1
		  AND  created_at >= $2
		  AND  created_at <  $3`,
		templateID, start, end,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("cost: current spend: %w", err)
	}
	return total, nil
}

// RecordCall implements [Aggregator] with bounded retry: three attempts with
// exponential backoff capped at 250ms.
func (a *PostgresAggregator) RecordCall(ctx context.Context, rec CallRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	backoff := initialBackoff
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		_, lastErr = a.db.Exec(ctx, `
			INSERT INTO llm_calls (template_id, company_id, call_id, model, tokens, cost_usd, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			rec.TemplateID, rec.CompanyID, rec.CallID, rec.Model, rec.Tokens, rec.CostUSD, rec.Timestamp)
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("cost: record call after %d attempts: %w", maxAttempts, lastErr)
}
