package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type orderRecord struct {
	bun.BaseModel `bun:"table:fulfillment_orders,alias:fo"`

	ID                string         `bun:"id,pk"`
	ExternalID        string         `bun:"external_id,notnull"`
	OrderNumber       string         `bun:"order_number"`
	CustomerEmail     string         `bun:"customer_email"`
	CustomerName      string         `bun:"customer_name"`
	TotalAmount       string         `bun:"total_amount"`
	Currency          string         `bun:"currency"`
	FinancialStatus   string         `bun:"financial_status"`
	FulfillmentStatus string         `bun:"fulfillment_status"`
	Status            string         `bun:"status,notnull"`
	TrackingNumber    string         `bun:"tracking_number"`
	TrackingURL       string         `bun:"tracking_url"`
	EstimatedDelivery *time.Time     `bun:"estimated_delivery,nullzero"`
	LastPayload       map[string]any `bun:"last_payload,type:jsonb,notnull"`
	CreatedAt         time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type printJobRecord struct {
	bun.BaseModel `bun:"table:fulfillment_print_jobs,alias:fpj"`

	ID                string         `bun:"id,pk"`
	OrderID           string         `bun:"order_id,notnull"`
	VendorJobID       string         `bun:"vendor_job_id,notnull"`
	Status            string         `bun:"status,notnull"`
	TrackingNumber    string         `bun:"tracking_number"`
	TrackingURL       string         `bun:"tracking_url"`
	EstimatedDelivery *time.Time     `bun:"estimated_delivery,nullzero"`
	LastPayload       map[string]any `bun:"last_payload,type:jsonb,notnull"`
	CreatedAt         time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type jobRecord struct {
	bun.BaseModel `bun:"table:fulfillment_jobs,alias:fj"`

	ID          string         `bun:"id,pk"`
	JobType     string         `bun:"job_type,notnull"`
	OrderID     string         `bun:"order_id"`
	Status      string         `bun:"status,notnull"`
	Attempts    int            `bun:"attempts,notnull"`
	MaxAttempts int            `bun:"max_attempts,notnull"`
	LastError   string         `bun:"last_error"`
	Payload     map[string]any `bun:"payload,type:jsonb,notnull"`
	ScheduledAt time.Time      `bun:"scheduled_at,nullzero,notnull"`
	ProcessedAt *time.Time     `bun:"processed_at,nullzero"`
	CreatedAt   time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type webhookLogRecord struct {
	bun.BaseModel `bun:"table:fulfillment_webhook_logs,alias:fwl"`

	ID         string    `bun:"id,pk"`
	Source     string    `bun:"source,notnull"`
	Topic      string    `bun:"topic"`
	Status     string    `bun:"status,notnull"`
	Error      string    `bun:"error"`
	Payload    []byte    `bun:"payload"`
	ReceivedAt time.Time `bun:"received_at,nullzero,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type proxyLogRecord struct {
	bun.BaseModel `bun:"table:fulfillment_proxy_logs,alias:fpl"`

	ID         string    `bun:"id,pk"`
	CallerID   string    `bun:"caller_id,notnull"`
	Method     string    `bun:"method,notnull"`
	Endpoint   string    `bun:"endpoint,notnull"`
	StatusCode int       `bun:"status_code,notnull"`
	Success    bool      `bun:"success,notnull"`
	Error      string    `bun:"error"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type rateLimitStateRecord struct {
	bun.BaseModel `bun:"table:fulfillment_rate_limit_states,alias:frls"`

	ID          string    `bun:"id,pk"`
	CallerID    string    `bun:"caller_id,notnull"`
	Bucket      string    `bun:"bucket,notnull"`
	WindowStart time.Time `bun:"window_start,nullzero,notnull"`
	Count       int       `bun:"count,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
