package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

type UpsertOrderInput struct {
	ExternalID        string
	OrderNumber       string
	CustomerEmail     string
	CustomerName      string
	TotalAmount       string
	Currency          string
	FinancialStatus   string
	FulfillmentStatus string
	Payload           map[string]any
}

// OrderStore owns Order records. Upsert is keyed on the external storefront
// order id so duplicate webhook deliveries never create a second row.
type OrderStore interface {
	Upsert(ctx context.Context, in UpsertOrderInput) (Order, error)
	Get(ctx context.Context, id string) (Order, error)
	GetByExternalID(ctx context.Context, externalID string) (Order, error)
	// Transition applies Order.TransitionTo under the store's transaction.
	// A regression is absorbed as a no-op: the stored order wins.
	Transition(ctx context.Context, id string, next OrderStatus) (Order, bool, error)
	SetTracking(ctx context.Context, id string, trackingNumber, trackingURL string, estimatedDelivery *time.Time) (Order, error)
}

type VendorUpdateInput struct {
	VendorJobID       string
	Status            PrintJobStatus
	TrackingNumber    string
	TrackingURL       string
	EstimatedDelivery *time.Time
	Payload           map[string]any
}

// PrintJobStore owns PrintJob records. The vendor job id is set exactly once
// at creation and never rewritten; one print job exists per order.
type PrintJobStore interface {
	Create(ctx context.Context, job PrintJob) (PrintJob, error)
	GetByOrderID(ctx context.Context, orderID string) (PrintJob, error)
	GetByVendorJobID(ctx context.Context, vendorJobID string) (PrintJob, error)
	ApplyVendorUpdate(ctx context.Context, in VendorUpdateInput) (PrintJob, error)
	MarkCancelled(ctx context.Context, orderID string) (PrintJob, error)
}

type EnqueueJobInput struct {
	Type        JobType
	OrderID     string
	Payload     map[string]any
	ScheduledAt time.Time
}

// JobQueue owns Job records. ClaimBatch must be atomic: two concurrent
// dispatchers never claim the same job. MarkFailed applies the retry policy
// at the store boundary so attempts can never exceed the maximum.
type JobQueue interface {
	Enqueue(ctx context.Context, in EnqueueJobInput) (Job, error)
	ClaimBatch(ctx context.Context, limit int) ([]Job, error)
	MarkCompleted(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID string, cause error, nextAttemptAt time.Time, maxAttempts int) error
	ListDead(ctx context.Context, limit int) ([]Job, error)
}

type WebhookLogStore interface {
	Record(ctx context.Context, entry WebhookLogEntry) error
}

type ProxyLogStore interface {
	Record(ctx context.Context, entry ProxyLogEntry) error
}

type CreatePrintJobRequest struct {
	OrderID     string
	OrderNumber string
	Package     PackageSelection
	PageCount   int
	InteriorURL string
	CoverURL    string
	ShippingTo  map[string]any
}

type VendorPrintJob struct {
	VendorJobID string
	Status      string
}

// PrintVendorClient talks to the print-on-demand vendor. Cancellation is
// best-effort: callers log failures and continue.
type PrintVendorClient interface {
	CreatePrintJob(ctx context.Context, req CreatePrintJobRequest) (VendorPrintJob, error)
	CancelPrintJob(ctx context.Context, vendorJobID string) error
}

type StatusNotification struct {
	Email          string
	CustomerName   string
	OrderNumber    string
	Status         OrderStatus
	TrackingNumber string
	TrackingURL    string
}

type Mailer interface {
	SendStatusNotification(ctx context.Context, notification StatusNotification) error
}

// BookContentSource resolves the rendered book for an order. The wizard and
// renderers live outside this service.
type BookContentSource interface {
	BookContent(ctx context.Context, orderID string) (BookContent, error)
}

type InboundRequest struct {
	Source   string
	Topic    string
	Headers  map[string]string
	Body     []byte
	Metadata map[string]any
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

type StoreProvider interface {
	OrderStore() OrderStore
	PrintJobStore() PrintJobStore
	JobQueue() JobQueue
	WebhookLogStore() WebhookLogStore
	ProxyLogStore() ProxyLogStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type TransportRequest struct {
	Method  string
	URL     string
	Query   map[string]string
	Headers map[string]string
	Body    []byte
	Timeout time.Duration
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

type DispatchStats struct {
	Claimed   int
	Succeeded int
	Failed    int
	Dead      int
}

// Summary renders the processing-trigger response line.
func (s DispatchStats) Summary() string {
	return summaryLine(s)
}
