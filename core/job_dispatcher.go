package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Dispatcher drains the job queue one batch at a time. Each invocation of Run
// claims up to the configured batch, executes claimed jobs with bounded
// parallelism, and settles every claim as completed, retried, or dead. A
// panicking handler is contained to its own job.
type Dispatcher struct {
	service     *Service
	batchSize   int
	parallelism int
	maxAttempts int
}

type DispatcherOption func(*Dispatcher)

func WithBatchSize(size int) DispatcherOption {
	return func(d *Dispatcher) {
		d.batchSize = size
	}
}

func WithParallelism(limit int) DispatcherOption {
	return func(d *Dispatcher) {
		d.parallelism = limit
	}
}

func NewDispatcher(service *Service, options ...DispatcherOption) (*Dispatcher, error) {
	if service == nil {
		return nil, fmt.Errorf("core: dispatcher requires a service")
	}
	if service.jobQueue == nil {
		return nil, fmt.Errorf("core: dispatcher requires a job queue")
	}
	cfg := service.Config()
	dispatcher := &Dispatcher{
		service:     service,
		batchSize:   cfg.Queue.BatchSize,
		parallelism: cfg.Queue.Parallelism,
		maxAttempts: cfg.Queue.MaxAttempts,
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(dispatcher)
	}
	if dispatcher.batchSize <= 0 {
		dispatcher.batchSize = DefaultConfig().Queue.BatchSize
	}
	if dispatcher.parallelism <= 0 {
		dispatcher.parallelism = 1
	}
	if dispatcher.maxAttempts <= 0 {
		dispatcher.maxAttempts = DefaultJobMaxAttempts
	}
	return dispatcher, nil
}

// Run claims and executes one batch of due jobs and reports what happened to
// each claim. The error return covers claim failures only: individual job
// failures are settled through the retry policy and counted in the stats.
func (d *Dispatcher) Run(ctx context.Context) (DispatchStats, error) {
	if d == nil || d.service == nil {
		return DispatchStats{}, fmt.Errorf("core: dispatcher is not configured")
	}
	startedAt := time.Now()
	service := d.service

	jobs, err := service.jobQueue.ClaimBatch(ctx, d.batchSize)
	if err != nil {
		service.observeOperation(ctx, startedAt, "dispatch_batch", err, map[string]any{})
		return DispatchStats{}, service.mapError(fmt.Errorf("core: claim batch: %w", err))
	}

	stats := DispatchStats{Claimed: len(jobs)}
	if len(jobs) == 0 {
		service.observeOperation(ctx, startedAt, "dispatch_batch", nil, map[string]any{"claimed": 0})
		return stats, nil
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(d.parallelism)

	for _, job := range jobs {
		job := job
		group.Go(func() error {
			outcome := d.settleJob(groupCtx, job)
			mu.Lock()
			switch outcome {
			case jobOutcomeSucceeded:
				stats.Succeeded++
			case jobOutcomeDead:
				stats.Dead++
			default:
				stats.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	service.observeOperation(ctx, startedAt, "dispatch_batch", nil, map[string]any{
		"claimed":   stats.Claimed,
		"succeeded": stats.Succeeded,
		"failed":    stats.Failed,
		"dead":      stats.Dead,
	})
	return stats, nil
}

type jobOutcome int

const (
	jobOutcomeSucceeded jobOutcome = iota
	jobOutcomeRetried
	jobOutcomeDead
)

func (d *Dispatcher) settleJob(ctx context.Context, job Job) jobOutcome {
	service := d.service
	startedAt := time.Now()
	fields := map[string]any{
		"job_id":   job.ID,
		"job_type": string(job.Type),
		"order_id": job.OrderID,
		"attempt":  job.Attempts + 1,
	}

	err := d.executeWithRecovery(ctx, job)
	if err == nil {
		if markErr := service.jobQueue.MarkCompleted(ctx, job.ID); markErr != nil {
			service.observeOperation(ctx, startedAt, "job_execute", markErr, fields)
			return jobOutcomeRetried
		}
		service.observeOperation(ctx, startedAt, "job_execute", nil, fields)
		return jobOutcomeSucceeded
	}

	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = d.maxAttempts
	}
	failedAttempts := job.Attempts + 1
	nextAttemptAt := service.nowUTC().Add(RetryBackoff(failedAttempts))

	if markErr := service.jobQueue.MarkFailed(ctx, job.ID, err, nextAttemptAt, maxAttempts); markErr != nil {
		fields["settle_error"] = markErr.Error()
	}
	service.observeOperation(ctx, startedAt, "job_execute", err, fields)
	if failedAttempts >= maxAttempts {
		service.logWarn(ctx, "job moved to dead letter", fields)
		return jobOutcomeDead
	}
	return jobOutcomeRetried
}

func (d *Dispatcher) executeWithRecovery(ctx context.Context, job Job) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("core: job %s panicked: %v", job.ID, recovered)
		}
	}()
	return d.service.executeJob(ctx, job)
}
