package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// executeJob runs the handler for one claimed job. Any returned error feeds
// the retry policy, so handlers return errors for conditions a later attempt
// may resolve and absorb conditions that are already settled.
func (s *Service) executeJob(ctx context.Context, job Job) error {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	switch job.Type {
	case JobTypeProcessNewOrder:
		return s.handleProcessNewOrder(ctx, job)
	case JobTypeCreatePrintJob:
		return s.handleCreatePrintJob(ctx, job)
	case JobTypeProcessCancellation:
		return s.handleProcessCancellation(ctx, job)
	case JobTypeSendStatusNotification:
		return s.handleSendStatusNotification(ctx, job)
	}
	return fmt.Errorf("%w: %q", ErrUnknownJobType, job.Type)
}

func (s *Service) handleProcessNewOrder(ctx context.Context, job Job) error {
	order, err := s.orderStore.Get(ctx, job.OrderID)
	if err != nil {
		return fmt.Errorf("core: load order %s: %w", job.OrderID, err)
	}
	if strings.TrimSpace(order.CustomerEmail) == "" {
		return fmt.Errorf("%w: order %s", ErrMissingCustomerEmail, order.ID)
	}
	if _, _, err := s.orderStore.Transition(ctx, order.ID, OrderStatusProcessing); err != nil {
		return err
	}
	return nil
}

func (s *Service) handleCreatePrintJob(ctx context.Context, job Job) error {
	if s.vendorClient == nil {
		return internalError("print vendor client is not configured")
	}
	if s.bookContent == nil {
		return internalError("book content source is not configured")
	}

	// A retried or redelivered job must not order a second print run.
	existing, err := s.printJobStore.GetByOrderID(ctx, job.OrderID)
	if err == nil && strings.TrimSpace(existing.VendorJobID) != "" {
		s.logInfo(ctx, "print job already submitted", map[string]any{
			"order_id":      job.OrderID,
			"vendor_job_id": existing.VendorJobID,
		})
		return nil
	}
	if err != nil && !errors.Is(err, ErrPrintJobNotFound) {
		return fmt.Errorf("core: load print job for order %s: %w", job.OrderID, err)
	}

	order, err := s.orderStore.Get(ctx, job.OrderID)
	if err != nil {
		return fmt.Errorf("core: load order %s: %w", job.OrderID, err)
	}

	content, err := s.bookContent.BookContent(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("core: load book content for order %s: %w", order.ID, err)
	}
	selection := SelectPackage(content)

	vendorJob, err := s.vendorClient.CreatePrintJob(ctx, CreatePrintJobRequest{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Package:     selection,
		PageCount:   content.PageCount(),
		InteriorURL: content.InteriorURL,
		CoverURL:    content.CoverURL,
	})
	if err != nil {
		return fmt.Errorf("core: vendor create print job for order %s: %w", order.ID, err)
	}

	status, err := DerivePrintJobStatus(vendorJob.Status)
	if err != nil {
		status = PrintJobStatusCreated
	}
	if _, err := s.printJobStore.Create(ctx, PrintJob{
		OrderID:     order.ID,
		VendorJobID: vendorJob.VendorJobID,
		Status:      status,
	}); err != nil {
		if errors.Is(err, ErrPrintJobAlreadyExists) {
			return nil
		}
		return fmt.Errorf("core: record print job for order %s: %w", order.ID, err)
	}

	if _, _, err := s.orderStore.Transition(ctx, order.ID, OrderStatusPrinting); err != nil {
		return err
	}
	return nil
}

func (s *Service) handleProcessCancellation(ctx context.Context, job Job) error {
	printJob, err := s.printJobStore.GetByOrderID(ctx, job.OrderID)
	switch {
	case err == nil:
		// Cancellation at the vendor is best effort: production may already
		// be past the point of no return, and the order record is marked
		// cancelled either way.
		if s.vendorClient != nil && strings.TrimSpace(printJob.VendorJobID) != "" && printJob.Status != PrintJobStatusCancelled {
			if cancelErr := s.vendorClient.CancelPrintJob(ctx, printJob.VendorJobID); cancelErr != nil {
				s.logWarn(ctx, "vendor cancellation failed", map[string]any{
					"order_id":      job.OrderID,
					"vendor_job_id": printJob.VendorJobID,
					"error":         cancelErr.Error(),
				})
			}
		}
		if _, markErr := s.printJobStore.MarkCancelled(ctx, job.OrderID); markErr != nil && !errors.Is(markErr, ErrPrintJobNotFound) {
			return markErr
		}
	case errors.Is(err, ErrPrintJobNotFound):
		// Nothing submitted to the vendor yet.
	default:
		return fmt.Errorf("core: load print job for order %s: %w", job.OrderID, err)
	}

	if _, _, err := s.orderStore.Transition(ctx, job.OrderID, OrderStatusCancelled); err != nil {
		return err
	}
	return nil
}

func (s *Service) handleSendStatusNotification(ctx context.Context, job Job) error {
	order, err := s.orderStore.Get(ctx, job.OrderID)
	if err != nil {
		return fmt.Errorf("core: load order %s: %w", job.OrderID, err)
	}
	if strings.TrimSpace(order.CustomerEmail) == "" {
		s.logWarn(ctx, "notification skipped, order has no customer email", map[string]any{
			"order_id": order.ID,
		})
		return nil
	}
	if s.mailer == nil {
		s.logWarn(ctx, "notification skipped, no mailer configured", map[string]any{
			"order_id": order.ID,
		})
		return nil
	}

	status := order.Status
	if raw, ok := job.Payload["status"].(string); ok && strings.TrimSpace(raw) != "" {
		if parsed := OrderStatus(strings.TrimSpace(raw)); parsed.Valid() {
			status = parsed
		}
	}

	if err := s.mailer.SendStatusNotification(ctx, StatusNotification{
		Email:          order.CustomerEmail,
		CustomerName:   order.CustomerName,
		OrderNumber:    order.OrderNumber,
		Status:         status,
		TrackingNumber: order.TrackingNumber,
		TrackingURL:    order.TrackingURL,
	}); err != nil {
		return fmt.Errorf("core: send notification for order %s: %w", order.ID, err)
	}
	return nil
}
