package template

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a template or company does not exist.
var ErrNotFound = errors.New("template: not found")

// ErrVersionConflict is returned by [Store.ApplyPatterns] when the expected
// version does not match the stored version (the optimistic write lost).
var ErrVersionConflict = errors.New("template: version conflict")

// ApplyResult reports the outcome of a pattern writeback.
type ApplyResult struct {
	// Applied lists patterns that were folded into the template.
	Applied []Pattern

	// Rejected lists patterns that were dropped as duplicates or invalid.
	Rejected []Pattern
}

// Store provides read and writeback access to templates.
// Implementations must be safe for concurrent use and must serialize
// ApplyPatterns calls per template.
type Store interface {
	// LoadTemplate retrieves a template by ID.
	// Returns ErrNotFound when no such template exists.
	LoadTemplate(ctx context.Context, id string) (*Template, error)

	// ApplyPatterns folds the given learning patterns into the template,
	// deduplicating case-insensitively against existing entries and never
	// removing or down-weighting anything. The write succeeds only when the
	// stored version equals expectedVersion; otherwise ErrVersionConflict is
	// returned and nothing is modified.
	ApplyPatterns(ctx context.Context, id string, patterns []Pattern, expectedVersion int64) (*ApplyResult, error)
}

// CompanyStore provides read access to company profiles.
type CompanyStore interface {
	// LoadCompany retrieves a company profile by ID.
	// Returns ErrNotFound when no such company exists.
	LoadCompany(ctx context.Context, id string) (*Company, error)
}
