package webhooks

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-fulfillment/core"
)

// Callback sources the receiver routes on.
const (
	SourceStorefront = "storefront"
	SourceVendor     = "vendor"
)

// Signature and topic headers for the two sources.
const (
	HeaderStorefrontSignature = "X-Storefront-Hmac-Sha256"
	HeaderStorefrontTopic     = "X-Storefront-Topic"
	HeaderVendorSignature     = "X-Vendor-Hmac-Sha256"
)

// NewStorefrontVerifier builds the hex HMAC check for storefront callbacks.
func NewStorefrontVerifier(secret string) Verifier {
	if strings.TrimSpace(secret) == "" {
		return RejectAllVerifier{Reason: "storefront webhook secret is not configured"}
	}
	return HeaderHMACVerifier{
		Header:   HeaderStorefrontSignature,
		Secret:   strings.TrimSpace(secret),
		Encoding: "hex",
	}
}

// NewVendorVerifier builds the hex HMAC check for print vendor callbacks.
func NewVendorVerifier(secret string) Verifier {
	if strings.TrimSpace(secret) == "" {
		return RejectAllVerifier{Reason: "vendor webhook secret is not configured"}
	}
	return HeaderHMACVerifier{
		Header:   HeaderVendorSignature,
		Secret:   strings.TrimSpace(secret),
		Encoding: "hex",
	}
}

type Handler interface {
	Handle(ctx context.Context, req core.InboundRequest) (core.InboundResult, error)
}

type HandlerFunc func(ctx context.Context, req core.InboundRequest) (core.InboundResult, error)

func (f HandlerFunc) Handle(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	return f(ctx, req)
}

type Endpoint struct {
	Source   string
	Verifier Verifier
	Handler  Handler
}

// Receiver routes inbound callbacks to the endpoint registered for their
// source. Every delivery leaves a webhook-log entry: success after the
// handler accepted it, error when verification or handling failed. A
// rejected delivery never reaches the handler.
type Receiver struct {
	logStore  core.WebhookLogStore
	logger    core.Logger
	now       func() time.Time
	endpoints map[string]Endpoint
}

func NewReceiver(logStore core.WebhookLogStore, logger core.Logger) *Receiver {
	return &Receiver{
		logStore:  logStore,
		logger:    glog.Ensure(logger),
		now:       func() time.Time { return time.Now().UTC() },
		endpoints: map[string]Endpoint{},
	}
}

// WithNow overrides the receiver clock, for tests.
func (r *Receiver) WithNow(now func() time.Time) *Receiver {
	if r != nil && now != nil {
		r.now = now
	}
	return r
}

func (r *Receiver) Register(endpoint Endpoint) error {
	if r == nil {
		return fmt.Errorf("webhooks: receiver is nil")
	}
	source := strings.ToLower(strings.TrimSpace(endpoint.Source))
	if source == "" {
		return fmt.Errorf("webhooks: endpoint source is required")
	}
	if endpoint.Handler == nil {
		return fmt.Errorf("webhooks: endpoint handler is required for %q", source)
	}
	if endpoint.Verifier == nil {
		endpoint.Verifier = RejectAllVerifier{}
	}
	endpoint.Source = source
	r.endpoints[source] = endpoint
	return nil
}

func (r *Receiver) Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if r == nil {
		return core.InboundResult{}, fmt.Errorf("webhooks: receiver is nil")
	}
	source := strings.ToLower(strings.TrimSpace(req.Source))
	req.Source = source

	endpoint, ok := r.endpoints[source]
	if !ok {
		return core.InboundResult{
			Accepted:   false,
			StatusCode: http.StatusNotFound,
		}, fmt.Errorf("webhooks: no endpoint registered for source %q", source)
	}

	if err := endpoint.Verifier.Verify(ctx, req); err != nil {
		r.record(ctx, req, core.WebhookLogStatusError, err)
		return core.InboundResult{
			Accepted:   false,
			StatusCode: http.StatusUnauthorized,
			Metadata:   map[string]any{"source": source, "rejected": true},
		}, err
	}

	result, err := endpoint.Handler.Handle(ctx, req)
	if err != nil {
		r.record(ctx, req, core.WebhookLogStatusError, err)
		status := result.StatusCode
		if status == 0 {
			status = http.StatusInternalServerError
		}
		return core.InboundResult{
			Accepted:   false,
			StatusCode: status,
			Metadata:   result.Metadata,
		}, err
	}

	if result.StatusCode == 0 {
		result.StatusCode = http.StatusOK
	}
	result.Accepted = true
	r.record(ctx, req, core.WebhookLogStatusSuccess, nil)
	return result, nil
}

func (r *Receiver) record(ctx context.Context, req core.InboundRequest, status core.WebhookLogStatus, cause error) {
	if r.logStore == nil {
		return
	}
	entry := core.WebhookLogEntry{
		Source:     req.Source,
		Topic:      strings.TrimSpace(req.Topic),
		Status:     status,
		Payload:    append([]byte(nil), req.Body...),
		ReceivedAt: r.now(),
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	if err := r.logStore.Record(ctx, entry); err != nil {
		r.logger.Warn("webhook log write failed", "source", req.Source, "error", err.Error())
	}
}
