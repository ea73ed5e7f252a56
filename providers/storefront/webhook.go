package storefront

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-fulfillment/core"
	"github.com/goliatone/go-fulfillment/webhooks"
)

const Source = webhooks.SourceStorefront

// WebhookHandler applies verified storefront order callbacks to the
// fulfillment service. A malformed body is a server-side failure: the
// delivery was authentic but unusable, and nothing is mutated.
type WebhookHandler struct {
	Service *core.Service
}

func (h WebhookHandler) Handle(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if h.Service == nil {
		return core.InboundResult{StatusCode: http.StatusInternalServerError},
			fmt.Errorf("storefront: fulfillment service is required")
	}
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return core.InboundResult{StatusCode: http.StatusBadRequest},
			fmt.Errorf("storefront: %s header is required", webhooks.HeaderStorefrontTopic)
	}

	event, err := ParseOrderEvent(req.Body)
	if err != nil {
		return core.InboundResult{StatusCode: http.StatusInternalServerError}, err
	}

	order, err := h.Service.ApplyStorefrontOrderEvent(ctx, topic, event)
	if err != nil {
		return core.InboundResult{StatusCode: core.HTTPStatusForError(err)}, err
	}
	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata: map[string]any{
			"order_id":    order.ID,
			"external_id": order.ExternalID,
			"status":      string(order.Status),
		},
	}, nil
}

// NewEndpoint wires the storefront verifier and handler for the receiver.
func NewEndpoint(service *core.Service, secret string) webhooks.Endpoint {
	return webhooks.Endpoint{
		Source:   Source,
		Verifier: webhooks.NewStorefrontVerifier(secret),
		Handler:  WebhookHandler{Service: service},
	}
}
