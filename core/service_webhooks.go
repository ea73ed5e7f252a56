package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Storefront webhook topics the service subscribes to.
const (
	TopicOrdersCreate    = "orders/create"
	TopicOrdersUpdated   = "orders/updated"
	TopicOrdersPaid      = "orders/paid"
	TopicOrdersCancelled = "orders/cancelled"
	TopicOrdersFulfilled = "orders/fulfilled"
)

// StorefrontOrderEvent is the normalized storefront order payload after
// signature verification and parsing.
type StorefrontOrderEvent struct {
	ExternalID        string
	OrderNumber       string
	CustomerEmail     string
	CustomerName      string
	TotalAmount       string
	Currency          string
	FinancialStatus   string
	FulfillmentStatus string
	TrackingNumber    string
	TrackingURL       string
	Payload           map[string]any
}

// VendorStatusEvent is the normalized print vendor callback payload.
type VendorStatusEvent struct {
	VendorJobID       string
	Status            string
	TrackingNumber    string
	TrackingURL       string
	EstimatedDelivery *time.Time
	Payload           map[string]any
}

// ApplyStorefrontOrderEvent upserts the order for a storefront topic and
// enqueues the follow-up job the topic calls for. The upsert is keyed on the
// external order id, so a redelivered webhook touches the same row and a
// repeated enqueue for an already-advanced order is absorbed downstream.
func (s *Service) ApplyStorefrontOrderEvent(ctx context.Context, topic string, event StorefrontOrderEvent) (Order, error) {
	startedAt := time.Now()
	fields := map[string]any{
		"source":      "storefront",
		"topic":       topic,
		"external_id": event.ExternalID,
	}

	order, err := s.applyStorefrontOrderEvent(ctx, topic, event)
	if order.ID != "" {
		fields["order_id"] = order.ID
	}
	s.observeOperation(ctx, startedAt, "storefront_webhook", err, fields)
	if err != nil {
		return Order{}, s.mapError(err)
	}
	return order, nil
}

func (s *Service) applyStorefrontOrderEvent(ctx context.Context, topic string, event StorefrontOrderEvent) (Order, error) {
	if s == nil || s.orderStore == nil || s.jobQueue == nil {
		return Order{}, internalError("order store or job queue is not configured")
	}
	if strings.TrimSpace(event.ExternalID) == "" {
		return Order{}, storefrontBadInput("order id is required")
	}

	topic = strings.ToLower(strings.TrimSpace(topic))
	switch topic {
	case TopicOrdersCreate:
		order, err := s.upsertStorefrontOrder(ctx, event)
		if err != nil {
			return Order{}, err
		}
		if _, err := s.enqueueOrderJob(ctx, JobTypeProcessNewOrder, order, nil); err != nil {
			return Order{}, err
		}
		return order, nil

	case TopicOrdersUpdated:
		return s.upsertStorefrontOrder(ctx, event)

	case TopicOrdersPaid:
		order, err := s.upsertStorefrontOrder(ctx, event)
		if err != nil {
			return Order{}, err
		}
		order, _, err = s.orderStore.Transition(ctx, order.ID, OrderStatusPaid)
		if err != nil {
			return Order{}, err
		}
		if _, err := s.enqueueOrderJob(ctx, JobTypeCreatePrintJob, order, nil); err != nil {
			return Order{}, err
		}
		return order, nil

	case TopicOrdersCancelled:
		order, err := s.upsertStorefrontOrder(ctx, event)
		if err != nil {
			return Order{}, err
		}
		if _, err := s.enqueueOrderJob(ctx, JobTypeProcessCancellation, order, nil); err != nil {
			return Order{}, err
		}
		return order, nil

	case TopicOrdersFulfilled:
		order, err := s.upsertStorefrontOrder(ctx, event)
		if err != nil {
			return Order{}, err
		}
		if event.TrackingNumber != "" || event.TrackingURL != "" {
			order, err = s.orderStore.SetTracking(ctx, order.ID, event.TrackingNumber, event.TrackingURL, nil)
			if err != nil {
				return Order{}, err
			}
		}
		order, _, err = s.orderStore.Transition(ctx, order.ID, OrderStatusShipped)
		if err != nil {
			return Order{}, err
		}
		if _, err := s.enqueueOrderJob(ctx, JobTypeSendStatusNotification, order, map[string]any{
			"status": string(OrderStatusShipped),
		}); err != nil {
			return Order{}, err
		}
		return order, nil
	}

	return Order{}, storefrontBadInput(fmt.Sprintf("unsupported storefront topic %q", topic))
}

func (s *Service) upsertStorefrontOrder(ctx context.Context, event StorefrontOrderEvent) (Order, error) {
	return s.orderStore.Upsert(ctx, UpsertOrderInput{
		ExternalID:        strings.TrimSpace(event.ExternalID),
		OrderNumber:       strings.TrimSpace(event.OrderNumber),
		CustomerEmail:     strings.TrimSpace(event.CustomerEmail),
		CustomerName:      strings.TrimSpace(event.CustomerName),
		TotalAmount:       strings.TrimSpace(event.TotalAmount),
		Currency:          strings.TrimSpace(event.Currency),
		FinancialStatus:   strings.TrimSpace(event.FinancialStatus),
		FulfillmentStatus: strings.TrimSpace(event.FulfillmentStatus),
		Payload:           copyAnyMap(event.Payload),
	})
}

func (s *Service) enqueueOrderJob(ctx context.Context, jobType JobType, order Order, payload map[string]any) (Job, error) {
	job, err := s.jobQueue.Enqueue(ctx, EnqueueJobInput{
		Type:        jobType,
		OrderID:     order.ID,
		Payload:     copyAnyMap(payload),
		ScheduledAt: s.nowUTC(),
	})
	if err != nil {
		return Job{}, fmt.Errorf("core: enqueue %s for order %s: %w", jobType, order.ID, err)
	}
	return job, nil
}

// ApplyVendorStatusEvent applies a print vendor callback to the matching
// print job and order. An unknown production status is rejected without
// touching any record.
func (s *Service) ApplyVendorStatusEvent(ctx context.Context, event VendorStatusEvent) (PrintJob, Order, error) {
	startedAt := time.Now()
	fields := map[string]any{
		"source":        "vendor",
		"vendor_job_id": event.VendorJobID,
		"vendor_status": event.Status,
	}

	printJob, order, err := s.applyVendorStatusEvent(ctx, event)
	if order.ID != "" {
		fields["order_id"] = order.ID
	}
	s.observeOperation(ctx, startedAt, "vendor_webhook", err, fields)
	if err != nil {
		return PrintJob{}, Order{}, s.mapError(err)
	}
	return printJob, order, nil
}

func (s *Service) applyVendorStatusEvent(ctx context.Context, event VendorStatusEvent) (PrintJob, Order, error) {
	if s == nil || s.orderStore == nil || s.printJobStore == nil || s.jobQueue == nil {
		return PrintJob{}, Order{}, internalError("stores are not configured")
	}
	if strings.TrimSpace(event.VendorJobID) == "" {
		return PrintJob{}, Order{}, vendorBadInput("print job id is required")
	}

	printJobStatus, err := DerivePrintJobStatus(event.Status)
	if err != nil {
		return PrintJob{}, Order{}, vendorBadInput(err.Error())
	}
	orderStatus, err := DeriveOrderStatus(event.Status)
	if err != nil {
		return PrintJob{}, Order{}, vendorBadInput(err.Error())
	}

	printJob, err := s.printJobStore.ApplyVendorUpdate(ctx, VendorUpdateInput{
		VendorJobID:       strings.TrimSpace(event.VendorJobID),
		Status:            printJobStatus,
		TrackingNumber:    strings.TrimSpace(event.TrackingNumber),
		TrackingURL:       strings.TrimSpace(event.TrackingURL),
		EstimatedDelivery: event.EstimatedDelivery,
		Payload:           copyAnyMap(event.Payload),
	})
	if err != nil {
		return PrintJob{}, Order{}, err
	}

	order, changed, err := s.orderStore.Transition(ctx, printJob.OrderID, orderStatus)
	if err != nil {
		return PrintJob{}, Order{}, err
	}

	if printJob.TrackingNumber != "" || printJob.TrackingURL != "" || printJob.EstimatedDelivery != nil {
		order, err = s.orderStore.SetTracking(ctx, order.ID, printJob.TrackingNumber, printJob.TrackingURL, printJob.EstimatedDelivery)
		if err != nil {
			return PrintJob{}, Order{}, err
		}
	}

	// Customers hear about shipment and delivery; intermediate production
	// states stay internal.
	if changed && (orderStatus == OrderStatusShipped || orderStatus == OrderStatusDelivered) {
		if _, err := s.enqueueOrderJob(ctx, JobTypeSendStatusNotification, order, map[string]any{
			"status": string(orderStatus),
		}); err != nil {
			return PrintJob{}, Order{}, err
		}
	}
	return printJob, order, nil
}

func storefrontBadInput(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithTextCode(FulfillmentErrorBadInput).
		WithMetadata(map[string]any{"source": "storefront"})
}

func vendorBadInput(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithTextCode(FulfillmentErrorBadInput).
		WithMetadata(map[string]any{"source": "vendor"})
}
