package gojob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-fulfillment/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDProcessNewOrder        = "fulfillment.order.process"
	JobIDCreatePrintJob         = "fulfillment.printjob.create"
	JobIDProcessCancellation    = "fulfillment.order.cancel"
	JobIDSendStatusNotification = "fulfillment.notification.send"
)

// ErrNoJobs is returned by Dequeue when no pending job is claimable.
var ErrNoJobs = errors.New("gojob: no pending jobs")

func jobIDForType(jobType core.JobType) (string, error) {
	switch jobType {
	case core.JobTypeProcessNewOrder:
		return JobIDProcessNewOrder, nil
	case core.JobTypeCreatePrintJob:
		return JobIDCreatePrintJob, nil
	case core.JobTypeProcessCancellation:
		return JobIDProcessCancellation, nil
	case core.JobTypeSendStatusNotification:
		return JobIDSendStatusNotification, nil
	default:
		return "", fmt.Errorf("gojob: no job id for type %q", jobType)
	}
}

func jobTypeForID(jobID string) (core.JobType, error) {
	switch strings.TrimSpace(jobID) {
	case JobIDProcessNewOrder:
		return core.JobTypeProcessNewOrder, nil
	case JobIDCreatePrintJob:
		return core.JobTypeCreatePrintJob, nil
	case JobIDProcessCancellation:
		return core.JobTypeProcessCancellation, nil
	case JobIDSendStatusNotification:
		return core.JobTypeSendStatusNotification, nil
	default:
		return "", fmt.Errorf("gojob: unknown job id %q", jobID)
	}
}

// ToExecutionMessage maps a durable queue record to a go-job message. The
// order id rides in the parameters and doubles as the idempotency key so a
// re-delivered message dedupes against the same order.
func ToExecutionMessage(record core.Job) *job.ExecutionMessage {
	jobID, err := jobIDForType(record.Type)
	if err != nil {
		jobID = strings.TrimSpace(string(record.Type))
	}
	parameters := copyAnyMap(record.Payload)
	parameters["order_id"] = record.OrderID
	parameters["queue_job_id"] = record.ID
	return &job.ExecutionMessage{
		JobID:          jobID,
		Parameters:     parameters,
		IdempotencyKey: strings.TrimSpace(record.OrderID + ":" + string(record.Type)),
	}
}

// QueueBridge exposes the durable job queue through go-job's queue
// contracts so a go-job worker pool can drive fulfillment jobs.
type QueueBridge struct {
	queue core.JobQueue
	now   func() time.Time
}

func NewQueueBridge(jobQueue core.JobQueue) *QueueBridge {
	return &QueueBridge{
		queue: jobQueue,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the clock used for retry scheduling.
func (b *QueueBridge) WithNow(now func() time.Time) *QueueBridge {
	if b != nil && now != nil {
		b.now = now
	}
	return b
}

func (b *QueueBridge) Enqueue(ctx context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	if b == nil || b.queue == nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: queue is not configured")
	}
	if msg == nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: execution message is required")
	}
	jobType, err := jobTypeForID(msg.JobID)
	if err != nil {
		return queue.EnqueueReceipt{}, err
	}
	orderID, _ := msg.Parameters["order_id"].(string)
	payload := copyAnyMap(msg.Parameters)
	delete(payload, "order_id")
	delete(payload, "queue_job_id")
	created, err := b.queue.Enqueue(ctx, core.EnqueueJobInput{
		Type:        jobType,
		OrderID:     strings.TrimSpace(orderID),
		Payload:     payload,
		ScheduledAt: b.now(),
	})
	if err != nil {
		return queue.EnqueueReceipt{}, err
	}
	return queue.EnqueueReceipt{DispatchID: created.ID, EnqueuedAt: created.CreatedAt}, nil
}

func (b *QueueBridge) Dequeue(ctx context.Context) (queue.Delivery, error) {
	if b == nil || b.queue == nil {
		return nil, fmt.Errorf("gojob: queue is not configured")
	}
	claimed, err := b.queue.ClaimBatch(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(claimed) == 0 {
		return nil, ErrNoJobs
	}
	return &jobDelivery{queue: b.queue, record: claimed[0], now: b.now}, nil
}

type jobDelivery struct {
	queue  core.JobQueue
	record core.Job
	now    func() time.Time
}

func (d *jobDelivery) Message() *job.ExecutionMessage {
	if d == nil {
		return nil
	}
	return ToExecutionMessage(d.record)
}

func (d *jobDelivery) Ack(ctx context.Context) error {
	if d == nil || d.queue == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.queue.MarkCompleted(ctx, d.record.ID)
}

func (d *jobDelivery) Nack(ctx context.Context, opts queue.NackOptions) error {
	if d == nil || d.queue == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	cause := errors.New(strings.TrimSpace(opts.Reason))
	if strings.TrimSpace(opts.Reason) == "" {
		cause = errors.New("gojob: job nacked")
	}
	delay := opts.Delay
	if delay <= 0 {
		delay = core.RetryBackoff(d.record.Attempts + 1)
	}
	maxAttempts := d.record.MaxAttempts
	switch opts.Disposition {
	case queue.NackDispositionDeadLetter, queue.NackDispositionFailed, queue.NackDispositionCanceled:
		// Force the dead letter branch regardless of remaining attempts.
		maxAttempts = d.record.Attempts + 1
	}
	return d.queue.MarkFailed(ctx, d.record.ID, cause, d.now().Add(delay), maxAttempts)
}

// LoggingHook reports worker lifecycle events through the service logger.
type LoggingHook struct {
	logger core.Logger
}

func NewLoggingHook(logger core.Logger) *LoggingHook {
	return &LoggingHook{logger: logger}
}

func (h *LoggingHook) OnStart(ctx context.Context, event worker.Event) {
	h.log(ctx, "job started", event, false)
}

func (h *LoggingHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.log(ctx, "job succeeded", event, false)
}

func (h *LoggingHook) OnFailure(ctx context.Context, event worker.Event) {
	h.log(ctx, "job failed", event, true)
}

func (h *LoggingHook) OnRetry(ctx context.Context, event worker.Event) {
	h.log(ctx, "job retry scheduled", event, true)
}

func (h *LoggingHook) log(ctx context.Context, message string, event worker.Event, failure bool) {
	if h == nil || h.logger == nil {
		return
	}
	fields := []any{"attempt", event.Attempt, "duration", event.Duration}
	msg := event.Message
	if msg == nil && event.Delivery != nil {
		msg = event.Delivery.Message()
	}
	if msg != nil {
		fields = append(fields, "job_id", msg.JobID)
	}
	if event.Err != nil {
		fields = append(fields, "error", event.Err.Error())
	}
	logger := h.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if failure {
		logger.Warn(message, fields...)
		return
	}
	logger.Info(message, fields...)
}

func copyAnyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ queue.Enqueuer = (*QueueBridge)(nil)
	_ queue.Dequeuer = (*QueueBridge)(nil)
	_ queue.Delivery = (*jobDelivery)(nil)
	_ worker.Hook    = (*LoggingHook)(nil)
)
