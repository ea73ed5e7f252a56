// Package notify delivers customer status emails through a transactional
// mail API.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-fulfillment/core"
	glog "github.com/goliatone/go-logger/glog"
)

const defaultSendTimeout = 15 * time.Second

// Mailer posts status notifications to the mail API send endpoint.
type Mailer struct {
	baseURL   string
	apiKey    string
	fromEmail string
	timeout   time.Duration
	transport core.TransportAdapter
}

func NewMailer(baseURL string, apiKey string, fromEmail string, adapter core.TransportAdapter) *Mailer {
	return &Mailer{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:    strings.TrimSpace(apiKey),
		fromEmail: strings.TrimSpace(fromEmail),
		timeout:   defaultSendTimeout,
		transport: adapter,
	}
}

func (m *Mailer) SendStatusNotification(ctx context.Context, notification core.StatusNotification) error {
	if m == nil || m.transport == nil {
		return goerrors.New("notify: transport adapter is required", goerrors.CategoryInternal).
			WithTextCode(core.FulfillmentErrorInternal)
	}
	email := strings.TrimSpace(notification.Email)
	if email == "" {
		return goerrors.New("notify: recipient email is required", goerrors.CategoryBadInput).
			WithTextCode(core.FulfillmentErrorBadInput)
	}

	body, err := json.Marshal(map[string]any{
		"from":     m.fromEmail,
		"to":       email,
		"template": "order-status",
		"variables": map[string]any{
			"customer_name":   notification.CustomerName,
			"order_number":    notification.OrderNumber,
			"status":          string(notification.Status),
			"tracking_number": notification.TrackingNumber,
			"tracking_url":    notification.TrackingURL,
		},
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "notify: encode notification").
			WithTextCode(core.FulfillmentErrorInternal)
	}

	headers := map[string]string{"Content-Type": "application/json"}
	if m.apiKey != "" {
		headers["Authorization"] = "Bearer " + m.apiKey
	}
	response, err := m.transport.Do(ctx, core.TransportRequest{
		Method:  http.MethodPost,
		URL:     m.baseURL + "/messages",
		Headers: headers,
		Body:    body,
		Timeout: m.timeout,
	})
	if err != nil {
		return err
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return goerrors.New(
			fmt.Sprintf("notify: mail API returned status %d", response.StatusCode),
			goerrors.CategoryExternal,
		).
			WithCode(http.StatusBadGateway).
			WithTextCode(core.FulfillmentErrorVendorFailed)
	}
	return nil
}

// LogMailer writes notifications to the service log instead of sending
// them. Used when no mail API is configured.
type LogMailer struct {
	logger core.Logger
}

func NewLogMailer(logger core.Logger) *LogMailer {
	return &LogMailer{logger: glog.Ensure(logger)}
}

func (m *LogMailer) SendStatusNotification(ctx context.Context, notification core.StatusNotification) error {
	if m == nil || m.logger == nil {
		return nil
	}
	logger := m.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Info("status notification",
		"email", notification.Email,
		"order_number", notification.OrderNumber,
		"status", string(notification.Status),
	)
	return nil
}

var (
	_ core.Mailer = (*Mailer)(nil)
	_ core.Mailer = (*LogMailer)(nil)
)
