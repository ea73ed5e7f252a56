package storefront

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-fulfillment/core"
)

type customerPayload struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type fulfillmentPayload struct {
	TrackingNumber string `json:"tracking_number"`
	TrackingURL    string `json:"tracking_url"`
}

type orderPayload struct {
	ID                json.Number          `json:"id"`
	OrderNumber       json.Number          `json:"order_number"`
	Name              string               `json:"name"`
	Email             string               `json:"email"`
	ContactEmail      string               `json:"contact_email"`
	TotalPrice        string               `json:"total_price"`
	Currency          string               `json:"currency"`
	FinancialStatus   string               `json:"financial_status"`
	FulfillmentStatus string               `json:"fulfillment_status"`
	Customer          customerPayload      `json:"customer"`
	Fulfillments      []fulfillmentPayload `json:"fulfillments"`
}

// ParseOrderEvent decodes a storefront order webhook body into the
// normalized event. The raw payload is retained on the event so the order
// record keeps the last delivery verbatim.
func ParseOrderEvent(body []byte) (core.StorefrontOrderEvent, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return core.StorefrontOrderEvent{}, fmt.Errorf("storefront: webhook body is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var payload orderPayload
	if err := decoder.Decode(&payload); err != nil {
		return core.StorefrontOrderEvent{}, fmt.Errorf("storefront: decode order payload: %w", err)
	}
	if strings.TrimSpace(payload.ID.String()) == "" {
		return core.StorefrontOrderEvent{}, fmt.Errorf("storefront: order id is required")
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return core.StorefrontOrderEvent{}, fmt.Errorf("storefront: decode order payload: %w", err)
	}

	event := core.StorefrontOrderEvent{
		ExternalID:        payload.ID.String(),
		OrderNumber:       orderNumber(payload),
		CustomerEmail:     firstNonEmpty(payload.Email, payload.ContactEmail, payload.Customer.Email),
		CustomerName:      customerName(payload.Customer),
		TotalAmount:       strings.TrimSpace(payload.TotalPrice),
		Currency:          strings.TrimSpace(payload.Currency),
		FinancialStatus:   strings.TrimSpace(payload.FinancialStatus),
		FulfillmentStatus: strings.TrimSpace(payload.FulfillmentStatus),
		Payload:           raw,
	}
	if len(payload.Fulfillments) > 0 {
		event.TrackingNumber = strings.TrimSpace(payload.Fulfillments[0].TrackingNumber)
		event.TrackingURL = strings.TrimSpace(payload.Fulfillments[0].TrackingURL)
	}
	return event, nil
}

func orderNumber(payload orderPayload) string {
	if number := strings.TrimSpace(payload.OrderNumber.String()); number != "" {
		return number
	}
	return strings.TrimSpace(strings.TrimPrefix(payload.Name, "#"))
}

func customerName(customer customerPayload) string {
	name := strings.TrimSpace(customer.FirstName + " " + customer.LastName)
	return name
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
