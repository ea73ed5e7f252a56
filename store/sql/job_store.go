package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-fulfillment/core"
)

// JobStore is the durable job queue. Claims are atomic: the claim query
// flips pending rows to processing inside one statement, so two dispatchers
// never hold the same job. Jobs for an order with another job already in
// flight are skipped, and at most the oldest pending job per order is
// claimed in a batch, which keeps per-order work serialized.
type JobStore struct {
	db   *bun.DB
	repo repository.Repository[*jobRecord]
	now  func() time.Time
}

func NewJobStore(db *bun.DB) (*JobStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*jobRecord](db, jobHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid job repository wiring: %w", err)
		}
	}
	return &JobStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *JobStore) Enqueue(ctx context.Context, in core.EnqueueJobInput) (core.Job, error) {
	if s == nil || s.repo == nil {
		return core.Job{}, fmt.Errorf("sqlstore: job store is not configured")
	}
	jobType, err := core.ParseJobType(string(in.Type))
	if err != nil {
		return core.Job{}, err
	}

	now := s.now()
	scheduledAt := in.ScheduledAt.UTC()
	if scheduledAt.IsZero() {
		scheduledAt = now
	}
	record := &jobRecord{
		ID:          uuid.NewString(),
		JobType:     string(jobType),
		OrderID:     strings.TrimSpace(in.OrderID),
		Status:      string(core.JobStatusPending),
		Attempts:    0,
		MaxAttempts: core.DefaultJobMaxAttempts,
		Payload:     copyAnyMap(in.Payload),
		ScheduledAt: scheduledAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.repo.Create(ctx, record); err != nil {
		return core.Job{}, err
	}
	return jobRecordToDomain(*record), nil
}

func (s *JobStore) ClaimBatch(ctx context.Context, limit int) ([]core.Job, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: job store is not configured")
	}
	if limit <= 0 {
		limit = 1
	}
	now := s.now()
	var records []jobRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
WITH due AS (
	SELECT id, order_id, created_at
	FROM fulfillment_jobs
	WHERE status = ?
	  AND scheduled_at <= ?
	  AND (order_id = '' OR order_id NOT IN (
		SELECT order_id FROM fulfillment_jobs WHERE status = ? AND order_id <> ''
	  ))
), claimed AS (
	SELECT id
	FROM due d
	WHERE d.order_id = '' OR NOT EXISTS (
		SELECT 1
		FROM due older
		WHERE older.order_id = d.order_id
		  AND (older.created_at < d.created_at
			OR (older.created_at = d.created_at AND older.id < d.id))
	)
	ORDER BY created_at ASC, id ASC
	LIMIT ?
)
UPDATE fulfillment_jobs
SET status = ?, updated_at = ?
WHERE id IN (SELECT id FROM claimed)
  AND status = ?
RETURNING
	id,
	job_type,
	order_id,
	status,
	attempts,
	max_attempts,
	last_error,
	payload,
	scheduled_at,
	processed_at,
	created_at,
	updated_at
`
		return tx.NewRaw(
			query,
			string(core.JobStatusPending),
			now,
			string(core.JobStatusProcessing),
			limit,
			string(core.JobStatusProcessing),
			now,
			string(core.JobStatusPending),
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, err
	}

	jobs := make([]core.Job, 0, len(records))
	for _, record := range records {
		jobs = append(jobs, jobRecordToDomain(record))
	}
	return jobs, nil
}

func (s *JobStore) MarkCompleted(ctx context.Context, jobID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: job store is not configured")
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return core.ErrJobNotFound
	}
	now := s.now()
	result, err := s.db.NewUpdate().
		Model((*jobRecord)(nil)).
		Set("status = ?", string(core.JobStatusCompleted)).
		Set("last_error = ?", "").
		Set("processed_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", jobID).
		Where("status = ?", string(core.JobStatusProcessing)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, raErr := result.RowsAffected(); raErr == nil && affected == 0 {
		return fmt.Errorf("%w: %s", core.ErrJobNotFound, jobID)
	}
	return nil
}

// MarkFailed settles a failed claim. The attempt counter and the dead-letter
// decision move together in one statement: the job returns to pending with
// the retry schedule until the attempt that reaches the limit, which parks
// it as dead.
func (s *JobStore) MarkFailed(
	ctx context.Context,
	jobID string,
	cause error,
	nextAttemptAt time.Time,
	maxAttempts int,
) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: job store is not configured")
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return core.ErrJobNotFound
	}
	if maxAttempts <= 0 {
		maxAttempts = core.DefaultJobMaxAttempts
	}
	lastError := ""
	if cause != nil {
		lastError = strings.TrimSpace(cause.Error())
	}

	now := s.now()
	result, err := s.db.NewUpdate().
		Model((*jobRecord)(nil)).
		Set("attempts = attempts + 1").
		Set("last_error = ?", lastError).
		Set(
			"status = CASE WHEN attempts + 1 >= ? THEN ? ELSE ? END",
			maxAttempts,
			string(core.JobStatusDead),
			string(core.JobStatusPending),
		).
		Set(
			"scheduled_at = CASE WHEN attempts + 1 >= ? THEN scheduled_at ELSE ? END",
			maxAttempts,
			nextAttemptAt.UTC(),
		).
		Set("updated_at = ?", now).
		Where("id = ?", jobID).
		Where("status = ?", string(core.JobStatusProcessing)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, raErr := result.RowsAffected(); raErr == nil && affected == 0 {
		return fmt.Errorf("%w: %s", core.ErrJobNotFound, jobID)
	}
	return nil
}

func (s *JobStore) ListDead(ctx context.Context, limit int) ([]core.Job, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: job store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	var records []jobRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("status = ?", string(core.JobStatusDead)).
		OrderExpr("updated_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	jobs := make([]core.Job, 0, len(records))
	for _, record := range records {
		jobs = append(jobs, jobRecordToDomain(record))
	}
	return jobs, nil
}

func jobRecordToDomain(record jobRecord) core.Job {
	job := core.Job{
		ID:          record.ID,
		Type:        core.JobType(record.JobType),
		OrderID:     record.OrderID,
		Status:      core.JobStatus(record.Status),
		Attempts:    record.Attempts,
		MaxAttempts: record.MaxAttempts,
		LastError:   record.LastError,
		Payload:     copyAnyMap(record.Payload),
		CreatedAt:   record.CreatedAt,
		ScheduledAt: record.ScheduledAt,
		UpdatedAt:   record.UpdatedAt,
	}
	if record.ProcessedAt != nil {
		processed := record.ProcessedAt.UTC()
		job.ProcessedAt = &processed
	}
	return job
}

var _ core.JobQueue = (*JobStore)(nil)
