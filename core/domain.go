package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrOrderNotFound           = errors.New("core: order not found")
	ErrPrintJobNotFound        = errors.New("core: print job not found")
	ErrJobNotFound             = errors.New("core: job not found")
	ErrOrderStatusRegression   = errors.New("core: order status regression")
	ErrUnknownVendorStatus     = errors.New("core: unknown vendor status")
	ErrUnknownJobType          = errors.New("core: unknown job type")
	ErrVendorJobIDImmutable    = errors.New("core: vendor print job id is immutable")
	ErrPrintJobAlreadyExists   = errors.New("core: print job already exists for order")
	ErrMissingCustomerEmail    = errors.New("core: order customer email is required")
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusPrinting   OrderStatus = "printing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusError      OrderStatus = "error"
)

// orderStatusRank orders the forward-only lifecycle. Cancelled and error sit
// outside the rank and are handled explicitly by TransitionTo.
var orderStatusRank = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusProcessing: 1,
	OrderStatusPaid:       2,
	OrderStatusPrinting:   3,
	OrderStatusShipped:    4,
	OrderStatusDelivered:  5,
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusPaid,
		OrderStatusPrinting, OrderStatusShipped, OrderStatusDelivered,
		OrderStatusCancelled, OrderStatusError:
		return true
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

type Order struct {
	ID                string
	ExternalID        string
	OrderNumber       string
	CustomerEmail     string
	CustomerName      string
	TotalAmount       string
	Currency          string
	FinancialStatus   string
	FulfillmentStatus string
	Status            OrderStatus
	TrackingNumber    string
	TrackingURL       string
	EstimatedDelivery *time.Time
	LastPayload       map[string]any
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TransitionTo applies the forward-only status rule. A repeat of the current
// status is a no-op. Cancellation is allowed from any non-terminal status;
// error is allowed from any non-terminal status. A backward move returns
// ErrOrderStatusRegression and leaves the order untouched.
func (o *Order) TransitionTo(next OrderStatus, now time.Time) (bool, error) {
	if o == nil {
		return false, fmt.Errorf("core: order is nil")
	}
	if !next.Valid() {
		return false, fmt.Errorf("core: invalid order status %q", next)
	}
	if o.Status == next {
		return false, nil
	}
	if o.Status.Terminal() {
		return false, fmt.Errorf("%w: %s -> %s", ErrOrderStatusRegression, o.Status, next)
	}
	switch next {
	case OrderStatusCancelled, OrderStatusError:
		o.Status = next
		o.UpdatedAt = now.UTC()
		return true, nil
	}
	if o.Status == OrderStatusError {
		// A vendor error is not terminal for the order: a later vendor
		// callback may still move the order forward.
		o.Status = next
		o.UpdatedAt = now.UTC()
		return true, nil
	}
	if orderStatusRank[next] < orderStatusRank[o.Status] {
		return false, fmt.Errorf("%w: %s -> %s", ErrOrderStatusRegression, o.Status, next)
	}
	o.Status = next
	o.UpdatedAt = now.UTC()
	return true, nil
}

type PrintJobStatus string

const (
	PrintJobStatusCreated      PrintJobStatus = "created"
	PrintJobStatusInProduction PrintJobStatus = "in_production"
	PrintJobStatusShipped      PrintJobStatus = "shipped"
	PrintJobStatusDelivered    PrintJobStatus = "delivered"
	PrintJobStatusCancelled    PrintJobStatus = "cancelled"
	PrintJobStatusError        PrintJobStatus = "error"
)

type PrintJob struct {
	ID                string
	OrderID           string
	VendorJobID       string
	Status            PrintJobStatus
	TrackingNumber    string
	TrackingURL       string
	EstimatedDelivery *time.Time
	LastPayload       map[string]any
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Vendor production statuses as reported on the vendor webhook.
const (
	VendorStatusCreated      = "CREATED"
	VendorStatusInProduction = "IN_PRODUCTION"
	VendorStatusShipped      = "SHIPPED"
	VendorStatusDelivered    = "DELIVERED"
	VendorStatusCancelled    = "CANCELLED"
	VendorStatusError        = "ERROR"
)

// DeriveOrderStatus normalizes a vendor production status into the internal
// order status. The mapping is total over the documented vendor vocabulary;
// anything else is rejected rather than guessed.
func DeriveOrderStatus(vendorStatus string) (OrderStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(vendorStatus)) {
	case VendorStatusCreated:
		return OrderStatusProcessing, nil
	case VendorStatusInProduction:
		return OrderStatusPrinting, nil
	case VendorStatusShipped:
		return OrderStatusShipped, nil
	case VendorStatusDelivered:
		return OrderStatusDelivered, nil
	case VendorStatusCancelled:
		return OrderStatusCancelled, nil
	case VendorStatusError:
		return OrderStatusError, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownVendorStatus, vendorStatus)
	}
}

// DerivePrintJobStatus normalizes a vendor production status into the print
// job status vocabulary, with the same rejection rule as DeriveOrderStatus.
func DerivePrintJobStatus(vendorStatus string) (PrintJobStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(vendorStatus)) {
	case VendorStatusCreated:
		return PrintJobStatusCreated, nil
	case VendorStatusInProduction:
		return PrintJobStatusInProduction, nil
	case VendorStatusShipped:
		return PrintJobStatusShipped, nil
	case VendorStatusDelivered:
		return PrintJobStatusDelivered, nil
	case VendorStatusCancelled:
		return PrintJobStatusCancelled, nil
	case VendorStatusError:
		return PrintJobStatusError, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownVendorStatus, vendorStatus)
	}
}

type JobType string

const (
	JobTypeProcessNewOrder        JobType = "process_new_order"
	JobTypeCreatePrintJob         JobType = "create_print_job"
	JobTypeProcessCancellation    JobType = "process_cancellation"
	JobTypeSendStatusNotification JobType = "send_status_notification"
)

func ParseJobType(value string) (JobType, error) {
	switch JobType(strings.TrimSpace(value)) {
	case JobTypeProcessNewOrder:
		return JobTypeProcessNewOrder, nil
	case JobTypeCreatePrintJob:
		return JobTypeCreatePrintJob, nil
	case JobTypeProcessCancellation:
		return JobTypeProcessCancellation, nil
	case JobTypeSendStatusNotification:
		return JobTypeSendStatusNotification, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownJobType, value)
	}
}

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusDead       JobStatus = "dead"
)

const DefaultJobMaxAttempts = 3

type Job struct {
	ID          string
	Type        JobType
	OrderID     string
	Status      JobStatus
	Attempts    int
	MaxAttempts int
	LastError   string
	Payload     map[string]any
	CreatedAt   time.Time
	ScheduledAt time.Time
	ProcessedAt *time.Time
	UpdatedAt   time.Time
}

const retryBackoffUnit = 5 * time.Minute

// RetryBackoff returns the delay before the next attempt given the number of
// failed attempts already incurred: 10 minutes after the first failure, 20
// after the second.
func RetryBackoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return retryBackoffUnit * time.Duration(1<<attempts)
}

type PackageSize string

const (
	PackageSizeSmall    PackageSize = "small"
	PackageSizeMedium   PackageSize = "medium"
	PackageSizeStandard PackageSize = "standard"
)

type PackageSelection struct {
	Size  PackageSize
	Color bool
}

type BookPage struct {
	HasImage bool
}

type BookContent struct {
	Pages       []BookPage
	InteriorURL string
	CoverURL    string
}

func (c BookContent) PageCount() int {
	return len(c.Pages)
}

func (c BookContent) HasColor() bool {
	for _, page := range c.Pages {
		if page.HasImage {
			return true
		}
	}
	return false
}

// SelectPackage picks the vendor package for a book: small up to 24 pages,
// medium up to 48, standard beyond that; color whenever any page carries
// image content.
func SelectPackage(content BookContent) PackageSelection {
	selection := PackageSelection{Color: content.HasColor()}
	switch pages := content.PageCount(); {
	case pages <= 24:
		selection.Size = PackageSizeSmall
	case pages <= 48:
		selection.Size = PackageSizeMedium
	default:
		selection.Size = PackageSizeStandard
	}
	return selection
}

type WebhookLogStatus string

const (
	WebhookLogStatusSuccess WebhookLogStatus = "success"
	WebhookLogStatusError   WebhookLogStatus = "error"
)

type WebhookLogEntry struct {
	ID         string
	Source     string
	Topic      string
	Status     WebhookLogStatus
	Error      string
	Payload    []byte
	ReceivedAt time.Time
}

type ProxyLogEntry struct {
	ID         string
	CallerID   string
	Method     string
	Endpoint   string
	StatusCode int
	Success    bool
	Error      string
	CreatedAt  time.Time
}
