package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/catscratchdisease/aws-dicom-analyzer/internal/config"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/domain"
)

// ErrNotFound is returned when no job record exists for the requested id.
var ErrNotFound = errors.New("job not found")

// JobStore is the durable keyed storage holding one record per job. All
// writes are upserts keyed on jobId and atomic per item; terminal-state
// writes are partial updates that never touch creation-time fields.
type JobStore interface {
	// CreatePending inserts the initial pending record for a new job.
	CreatePending(ctx context.Context, job *domain.Job) error

	// Get reads a job record by id, returning ErrNotFound when absent.
	Get(ctx context.Context, jobID string) (*domain.Job, error)

	// MarkComplete transitions a job to its complete terminal state, writing
	// the merged inference results and clearing any prior error.
	MarkComplete(ctx context.Context, jobID string, res *domain.JobResult) error

	// MarkError transitions a job to its error terminal state with a
	// human-readable failure description.
	MarkError(ctx context.Context, jobID string, message string) error
}

// NewJobStore creates the job record store selected by configuration.
// Parameters:
//   - cfg: database configuration including the driver selection.
// Returns:
//   - JobStore: initialized store implementation.
//   - error: non-nil if the backend cannot be initialized.
func NewJobStore(cfg *config.DatabaseConfig) (JobStore, error) {
	switch cfg.Driver {
	case "dynamodb":
		return NewDynamoStore(cfg)
	case "sqlite", "postgres", "":
		db, err := InitDB(cfg)
		if err != nil {
			return nil, err
		}
		return NewGormStore(db), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
