package core

import (
	"context"
	"strings"
	"testing"
	"time"
)

func enqueueTestJob(t *testing.T, env *testEnv, jobType JobType, orderID string) Job {
	t.Helper()
	job, err := env.queue.Enqueue(context.Background(), EnqueueJobInput{
		Type:    jobType,
		OrderID: orderID,
	})
	if err != nil {
		t.Fatalf("enqueue job: %v", err)
	}
	return job
}

func TestDispatcherRunCompletesJobs(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t, "7001", OrderStatusPending)
	job := enqueueTestJob(t, env, JobTypeProcessNewOrder, order.ID)

	dispatcher, err := NewDispatcher(env.service)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	stats, err := dispatcher.Run(context.Background())
	if err != nil {
		t.Fatalf("run dispatcher: %v", err)
	}
	if stats.Claimed != 1 || stats.Succeeded != 1 || stats.Failed != 0 || stats.Dead != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	settled, ok := env.queue.find(job.ID)
	if !ok {
		t.Fatalf("job disappeared")
	}
	if settled.Status != JobStatusCompleted {
		t.Fatalf("expected completed, got %s", settled.Status)
	}
	if settled.ProcessedAt == nil {
		t.Fatalf("expected processed_at on completion")
	}
}

func TestDispatcherRunSchedulesRetryWithBackoff(t *testing.T) {
	env := newTestEnv(t)
	job := enqueueTestJob(t, env, JobTypeProcessNewOrder, "order-missing")

	dispatcher, err := NewDispatcher(env.service)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	stats, err := dispatcher.Run(context.Background())
	if err != nil {
		t.Fatalf("run dispatcher: %v", err)
	}
	if stats.Claimed != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	retried, _ := env.queue.find(job.ID)
	if retried.Status != JobStatusPending {
		t.Fatalf("expected pending for retry, got %s", retried.Status)
	}
	if retried.Attempts != 1 {
		t.Fatalf("expected one recorded attempt, got %d", retried.Attempts)
	}
	wantNext := testClock.Add(10 * time.Minute)
	if !retried.ScheduledAt.Equal(wantNext) {
		t.Fatalf("expected retry at %s, got %s", wantNext, retried.ScheduledAt)
	}
	if retried.LastError == "" {
		t.Fatalf("expected last_error to be recorded")
	}
}

func TestDispatcherMovesJobToDeadLetterAtMaxAttempts(t *testing.T) {
	env := newTestEnv(t)
	job := enqueueTestJob(t, env, JobTypeProcessNewOrder, "order-missing")

	dispatcher, err := NewDispatcher(env.service)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	for attempt := 1; attempt <= DefaultJobMaxAttempts; attempt++ {
		// Make the retried job due again.
		env.queue.mu.Lock()
		for i := range env.queue.jobs {
			if env.queue.jobs[i].ID == job.ID {
				env.queue.jobs[i].ScheduledAt = testClock
			}
		}
		env.queue.mu.Unlock()

		stats, runErr := dispatcher.Run(context.Background())
		if runErr != nil {
			t.Fatalf("run %d: %v", attempt, runErr)
		}
		if stats.Claimed != 1 {
			t.Fatalf("run %d: expected one claim, got %+v", attempt, stats)
		}
		if attempt < DefaultJobMaxAttempts && stats.Failed != 1 {
			t.Fatalf("run %d: expected retry, got %+v", attempt, stats)
		}
		if attempt == DefaultJobMaxAttempts && stats.Dead != 1 {
			t.Fatalf("run %d: expected dead letter, got %+v", attempt, stats)
		}
	}

	dead, _ := env.queue.find(job.ID)
	if dead.Status != JobStatusDead {
		t.Fatalf("expected dead, got %s", dead.Status)
	}
	if dead.Attempts != DefaultJobMaxAttempts {
		t.Fatalf("expected %d attempts, got %d", DefaultJobMaxAttempts, dead.Attempts)
	}

	listed, err := env.service.DeadJobs(context.Background(), 10)
	if err != nil {
		t.Fatalf("list dead jobs: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != job.ID {
		t.Fatalf("expected the dead job to be listed, got %+v", listed)
	}
}

func TestDispatcherContainsPanickingJob(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t, "7002", OrderStatusPaid)
	panicking := enqueueTestJob(t, env, JobTypeCreatePrintJob, order.ID)

	healthyOrder := env.createOrder(t, "7003", OrderStatusPending)
	healthy := enqueueTestJob(t, env, JobTypeProcessNewOrder, healthyOrder.ID)

	env.service.bookContent = panicContentSource{}

	dispatcher, err := NewDispatcher(env.service, WithParallelism(1))
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	stats, err := dispatcher.Run(context.Background())
	if err != nil {
		t.Fatalf("run dispatcher: %v", err)
	}
	if stats.Claimed != 2 || stats.Succeeded != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	failed, _ := env.queue.find(panicking.ID)
	if failed.Status != JobStatusPending {
		t.Fatalf("panicked job should be retried, got %s", failed.Status)
	}
	if !strings.Contains(failed.LastError, "panicked") {
		t.Fatalf("expected panic recorded in last_error, got %q", failed.LastError)
	}

	done, _ := env.queue.find(healthy.ID)
	if done.Status != JobStatusCompleted {
		t.Fatalf("healthy job must complete despite the panic, got %s", done.Status)
	}
}

func TestDispatcherPerOrderSerialization(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t, "7004", OrderStatusPending)
	first := enqueueTestJob(t, env, JobTypeProcessNewOrder, order.ID)
	second := enqueueTestJob(t, env, JobTypeSendStatusNotification, order.ID)

	claimed, err := env.queue.ClaimBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("claim batch: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != first.ID {
		t.Fatalf("expected only the first job for the order, got %+v", claimed)
	}

	if err := env.queue.MarkCompleted(context.Background(), first.ID); err != nil {
		t.Fatalf("complete first: %v", err)
	}
	claimed, err = env.queue.ClaimBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("claim batch: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != second.ID {
		t.Fatalf("expected the second job after completion, got %+v", claimed)
	}
}

func TestDispatcherEmptyQueue(t *testing.T) {
	env := newTestEnv(t)
	dispatcher, err := NewDispatcher(env.service)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	stats, err := dispatcher.Run(context.Background())
	if err != nil {
		t.Fatalf("run dispatcher: %v", err)
	}
	if stats.Claimed != 0 {
		t.Fatalf("expected empty batch, got %+v", stats)
	}
	if got := stats.Summary(); !strings.Contains(got, "0 jobs") {
		t.Fatalf("unexpected summary: %q", got)
	}
}

type panicContentSource struct{}

func (panicContentSource) BookContent(context.Context, string) (BookContent, error) {
	panic("content renderer crashed")
}
