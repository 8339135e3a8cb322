// Package store persists run history, schema maps, and review items.
// Two drivers are provided: SQLite for single-machine use and Postgres
// for shared deployments.
package store

import (
	"context"

	"github.com/sells-group/harmonize-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// ReviewFilter specifies criteria for listing review items.
type ReviewFilter struct {
	RunID  string             `json:"run_id,omitempty"`
	Status model.ReviewStatus `json:"status,omitempty"`
	Limit  int                `json:"limit,omitempty"`
}

// Store defines the persistence interface for the harmonization engine.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *model.RunLog) error
	CompleteRun(ctx context.Context, run *model.RunLog) error
	GetRun(ctx context.Context, runID string) (*model.RunLog, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.RunLog, error)

	// Schema maps
	SaveSchemaMap(ctx context.Context, sm *model.SchemaMap) error
	// LastColumnSet returns the source columns recorded by the most
	// recent schema map for a source, or nil when the source has never
	// been processed.
	LastColumnSet(ctx context.Context, sourceRef string) ([]string, error)

	// Harmonized rows. SaveRows replaces any prior facts with the same
	// record identity, so re-running a source is idempotent.
	SaveRows(ctx context.Context, runID string, rows []model.HarmonizedRow) (int64, error)

	// Review items
	SaveReviewItems(ctx context.Context, items []model.ReviewItem) error
	ListReviewItems(ctx context.Context, filter ReviewFilter) ([]model.ReviewItem, error)
	GetReviewItem(ctx context.Context, reviewID string) (*model.ReviewItem, error)
	ResolveReview(ctx context.Context, reviewID string, action model.ReviewAction, resolution string) (*model.ReviewItem, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// statusFor maps a reviewer action onto the item's terminal status.
func statusFor(action model.ReviewAction) model.ReviewStatus {
	switch action {
	case model.ActionApprove:
		return model.ReviewApproved
	case model.ActionReject:
		return model.ReviewRejected
	default:
		return model.ReviewResolved
	}
}
