package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/catscratchdisease/aws-dicom-analyzer/internal/domain"
)

// GormStore is the SQL JobStore backend used in development (sqlite) and
// self-hosted deployments (postgres). Terminal transitions are partial
// column updates; the per-row update is atomic on both drivers.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a GORM-backed job store.
// Parameters:
//   - db: initialized GORM database handle.
// Returns:
//   - *GormStore: store instance bound to db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// CreatePending inserts the initial pending record, updating in place if a
// record with the same jobId already exists.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: record carrying jobId, source key and file metadata.
// Returns:
//   - error: non-nil if the upsert fails.
func (s *GormStore) CreatePending(ctx context.Context, job *domain.Job) error {
	job.Status = domain.JobStatusPending
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}},
		UpdateAll: true,
	}).Create(job).Error
}

// Get retrieves a job record by id.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job to read.
// Returns:
//   - *domain.Job: record if found.
//   - error: ErrNotFound when absent, otherwise the query error.
func (s *GormStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	var job domain.Job
	if err := s.db.WithContext(ctx).First(&job, "job_id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}
	return &job, nil
}

// MarkComplete transitions a job to complete, touching only the result
// columns and clearing any prior error.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job to transition.
//   - res: merged inference results.
// Returns:
//   - error: non-nil if the update fails.
func (s *GormStore) MarkComplete(ctx context.Context, jobID string, res *domain.JobResult) error {
	updates := map[string]interface{}{
		"status":     domain.JobStatusComplete,
		"labels":     res.Labels,
		"class_flag": res.ClassFlag,
		"error":      "",
	}
	if res.ConvertedKey != "" {
		updates["converted_key"] = res.ConvertedKey
		updates["display_url"] = res.DisplayURL
	}

	err := s.db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("job_id = ?", jobID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to mark job %s complete: %w", jobID, err)
	}
	return nil
}

// MarkError transitions a job to error with a descriptive message.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job to transition.
//   - message: human-readable failure description.
// Returns:
//   - error: non-nil if the update fails.
func (s *GormStore) MarkError(ctx context.Context, jobID string, message string) error {
	err := s.db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("job_id = ?", jobID).
		Updates(map[string]interface{}{
			"status": domain.JobStatusError,
			"error":  message,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark job %s errored: %w", jobID, err)
	}
	return nil
}
