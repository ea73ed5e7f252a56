package printvendor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-fulfillment/core"
	"github.com/goliatone/go-fulfillment/webhooks"
)

const Source = webhooks.SourceVendor

type statusPayload struct {
	PrintJobID json.Number `json:"print_job_id"`
	ID         json.Number `json:"id"`
	Status     string      `json:"status"`
	StatusName struct {
		Name string `json:"name"`
	} `json:"status_detail"`
	TrackingNumber        string `json:"tracking_id"`
	TrackingURL           string `json:"tracking_urls"`
	EstimatedShippingDate string `json:"estimated_shipping_date"`
}

// ParseStatusEvent decodes a vendor production callback body into the
// normalized event.
func ParseStatusEvent(body []byte) (core.VendorStatusEvent, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return core.VendorStatusEvent{}, fmt.Errorf("printvendor: webhook body is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var payload statusPayload
	if err := decoder.Decode(&payload); err != nil {
		return core.VendorStatusEvent{}, fmt.Errorf("printvendor: decode status payload: %w", err)
	}

	vendorJobID := strings.TrimSpace(payload.PrintJobID.String())
	if vendorJobID == "" {
		vendorJobID = strings.TrimSpace(payload.ID.String())
	}
	if vendorJobID == "" {
		return core.VendorStatusEvent{}, fmt.Errorf("printvendor: print job id is required")
	}

	status := strings.TrimSpace(payload.Status)
	if status == "" {
		status = strings.TrimSpace(payload.StatusName.Name)
	}
	if status == "" {
		return core.VendorStatusEvent{}, fmt.Errorf("printvendor: status is required")
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return core.VendorStatusEvent{}, fmt.Errorf("printvendor: decode status payload: %w", err)
	}

	event := core.VendorStatusEvent{
		VendorJobID:    vendorJobID,
		Status:         status,
		TrackingNumber: strings.TrimSpace(payload.TrackingNumber),
		TrackingURL:    strings.TrimSpace(payload.TrackingURL),
		Payload:        raw,
	}
	if date := strings.TrimSpace(payload.EstimatedShippingDate); date != "" {
		if parsed, err := time.Parse("2006-01-02", date); err == nil {
			estimated := parsed.UTC()
			event.EstimatedDelivery = &estimated
		}
	}
	return event, nil
}

// WebhookHandler applies verified vendor production callbacks to the
// fulfillment service.
type WebhookHandler struct {
	Service *core.Service
}

func (h WebhookHandler) Handle(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if h.Service == nil {
		return core.InboundResult{StatusCode: http.StatusInternalServerError},
			fmt.Errorf("printvendor: fulfillment service is required")
	}

	event, err := ParseStatusEvent(req.Body)
	if err != nil {
		return core.InboundResult{StatusCode: http.StatusInternalServerError}, err
	}

	printJob, order, err := h.Service.ApplyVendorStatusEvent(ctx, event)
	if err != nil {
		status := http.StatusInternalServerError
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) && richErr.Code > 0 {
			status = richErr.Code
		}
		return core.InboundResult{StatusCode: status}, err
	}
	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata: map[string]any{
			"order_id":      order.ID,
			"vendor_job_id": printJob.VendorJobID,
			"status":        string(order.Status),
		},
	}, nil
}

// NewEndpoint wires the vendor verifier and handler for the receiver.
func NewEndpoint(service *core.Service, secret string) webhooks.Endpoint {
	return webhooks.Endpoint{
		Source:   Source,
		Verifier: webhooks.NewVendorVerifier(secret),
		Handler:  WebhookHandler{Service: service},
	}
}
