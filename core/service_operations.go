package core

import (
	"context"
	"strings"
	"time"
)

// GetOrder returns the stored order by internal id.
func (s *Service) GetOrder(ctx context.Context, orderID string) (Order, error) {
	if s == nil || s.orderStore == nil {
		return Order{}, internalError("core: order store is not configured")
	}
	order, err := s.orderStore.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return Order{}, s.mapError(err)
	}
	return order, nil
}

// GetOrderByExternalID returns the stored order by its storefront id.
func (s *Service) GetOrderByExternalID(ctx context.Context, externalID string) (Order, error) {
	if s == nil || s.orderStore == nil {
		return Order{}, internalError("core: order store is not configured")
	}
	order, err := s.orderStore.GetByExternalID(ctx, strings.TrimSpace(externalID))
	if err != nil {
		return Order{}, s.mapError(err)
	}
	return order, nil
}

// GetPrintJobForOrder returns the print job submitted for an order.
func (s *Service) GetPrintJobForOrder(ctx context.Context, orderID string) (PrintJob, error) {
	if s == nil || s.printJobStore == nil {
		return PrintJob{}, internalError("core: print job store is not configured")
	}
	printJob, err := s.printJobStore.GetByOrderID(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return PrintJob{}, s.mapError(err)
	}
	return printJob, nil
}

// EnqueueJob queues a background job against an existing order.
func (s *Service) EnqueueJob(ctx context.Context, jobType JobType, orderID string, payload map[string]any) (Job, error) {
	startedAt := time.Now()
	fields := map[string]any{
		"job_type": string(jobType),
		"order_id": strings.TrimSpace(orderID),
	}
	job, err := s.enqueueJob(ctx, jobType, orderID, payload)
	s.observeOperation(ctx, startedAt, "enqueue_job", err, fields)
	if err != nil {
		return Job{}, s.mapError(err)
	}
	return job, nil
}

func (s *Service) enqueueJob(ctx context.Context, jobType JobType, orderID string, payload map[string]any) (Job, error) {
	if s == nil || s.jobQueue == nil {
		return Job{}, internalError("core: job queue is not configured")
	}
	parsed, err := ParseJobType(string(jobType))
	if err != nil {
		return Job{}, badInputError(err.Error())
	}
	orderID = strings.TrimSpace(orderID)
	if orderID != "" && s.orderStore != nil {
		if _, err := s.orderStore.Get(ctx, orderID); err != nil {
			return Job{}, err
		}
	}
	return s.jobQueue.Enqueue(ctx, EnqueueJobInput{
		Type:        parsed,
		OrderID:     orderID,
		Payload:     copyAnyMap(payload),
		ScheduledAt: s.nowUTC(),
	})
}

// CancelOrder queues the cancellation flow for an order. The vendor print
// job, if one was submitted, is cancelled by the background worker.
func (s *Service) CancelOrder(ctx context.Context, orderID string) (Job, error) {
	startedAt := time.Now()
	orderID = strings.TrimSpace(orderID)
	fields := map[string]any{"order_id": orderID}
	job, err := s.cancelOrder(ctx, orderID)
	s.observeOperation(ctx, startedAt, "cancel_order", err, fields)
	if err != nil {
		return Job{}, s.mapError(err)
	}
	return job, nil
}

func (s *Service) cancelOrder(ctx context.Context, orderID string) (Job, error) {
	if s == nil || s.orderStore == nil || s.jobQueue == nil {
		return Job{}, internalError("core: order store and job queue are required")
	}
	if orderID == "" {
		return Job{}, badInputError("core: order id is required")
	}
	order, err := s.orderStore.Get(ctx, orderID)
	if err != nil {
		return Job{}, err
	}
	if order.Status == OrderStatusCancelled {
		return Job{}, badInputError("core: order is already cancelled")
	}
	return s.enqueueOrderJob(ctx, JobTypeProcessCancellation, order, nil)
}
