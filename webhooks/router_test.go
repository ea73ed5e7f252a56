package webhooks

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-fulfillment/core"
)

type recordingLogStore struct {
	entries []core.WebhookLogEntry
	err     error
}

func (s *recordingLogStore) Record(_ context.Context, entry core.WebhookLogEntry) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

type countingHandler struct {
	calls  int
	result core.InboundResult
	err    error
}

func (h *countingHandler) Handle(context.Context, core.InboundRequest) (core.InboundResult, error) {
	h.calls++
	return h.result, h.err
}

func newTestReceiver(t *testing.T, logStore core.WebhookLogStore) *Receiver {
	t.Helper()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return NewReceiver(logStore, nil).WithNow(func() time.Time { return clock })
}

func TestReceiverProcessAcceptsVerifiedDelivery(t *testing.T) {
	logStore := &recordingLogStore{}
	handler := &countingHandler{result: core.InboundResult{Metadata: map[string]any{"order_id": "ord-1"}}}

	receiver := newTestReceiver(t, logStore)
	if err := receiver.Register(Endpoint{
		Source:   SourceStorefront,
		Verifier: HeaderTokenVerifier{Header: "X-Callback-Token", Token: "shared"},
		Handler:  handler,
	}); err != nil {
		t.Fatalf("register endpoint: %v", err)
	}

	result, err := receiver.Process(context.Background(), core.InboundRequest{
		Source:  "Storefront",
		Topic:   "orders/paid",
		Body:    []byte(`{"id":"ord-1"}`),
		Headers: map[string]string{"X-Callback-Token": "shared"},
	})
	if err != nil {
		t.Fatalf("process delivery: %v", err)
	}
	if !result.Accepted || result.StatusCode != http.StatusOK {
		t.Fatalf("expected accepted 200 result, got %+v", result)
	}
	if handler.calls != 1 {
		t.Fatalf("expected handler to run once, ran %d times", handler.calls)
	}
	if len(logStore.entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(logStore.entries))
	}
	entry := logStore.entries[0]
	if entry.Source != SourceStorefront || entry.Topic != "orders/paid" {
		t.Fatalf("unexpected log entry %+v", entry)
	}
	if entry.Status != core.WebhookLogStatusSuccess || entry.Error != "" {
		t.Fatalf("expected success log entry, got %+v", entry)
	}
}

func TestReceiverProcessRejectsBadSignatureBeforeHandler(t *testing.T) {
	logStore := &recordingLogStore{}
	handler := &countingHandler{}

	receiver := newTestReceiver(t, logStore)
	if err := receiver.Register(Endpoint{
		Source:   SourceVendor,
		Verifier: NewVendorVerifier("vendor-secret"),
		Handler:  handler,
	}); err != nil {
		t.Fatalf("register endpoint: %v", err)
	}

	result, err := receiver.Process(context.Background(), core.InboundRequest{
		Source: SourceVendor,
		Body:   []byte(`{"vendor_job_id":"vj-9"}`),
		Headers: map[string]string{
			HeaderVendorSignature: "deadbeef",
		},
	})
	if err == nil {
		t.Fatal("expected verification failure")
	}
	if result.Accepted || result.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected rejected 401 result, got %+v", result)
	}
	if handler.calls != 0 {
		t.Fatalf("handler ran %d times for a rejected delivery", handler.calls)
	}
	if len(logStore.entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(logStore.entries))
	}
	entry := logStore.entries[0]
	if entry.Status != core.WebhookLogStatusError || entry.Error == "" {
		t.Fatalf("expected error log entry, got %+v", entry)
	}
}

func TestReceiverProcessRecordsHandlerFailure(t *testing.T) {
	logStore := &recordingLogStore{}
	handler := &countingHandler{
		result: core.InboundResult{StatusCode: http.StatusUnprocessableEntity},
		err:    errors.New("unknown topic"),
	}

	receiver := newTestReceiver(t, logStore)
	if err := receiver.Register(Endpoint{
		Source:   SourceStorefront,
		Verifier: HeaderTokenVerifier{Header: "X-Callback-Token", Token: "shared"},
		Handler:  handler,
	}); err != nil {
		t.Fatalf("register endpoint: %v", err)
	}

	result, err := receiver.Process(context.Background(), core.InboundRequest{
		Source:  SourceStorefront,
		Topic:   "orders/unknown",
		Body:    []byte(`{}`),
		Headers: map[string]string{"X-Callback-Token": "shared"},
	})
	if err == nil {
		t.Fatal("expected handler error to propagate")
	}
	if result.Accepted || result.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected rejected 422 result, got %+v", result)
	}
	if len(logStore.entries) != 1 || logStore.entries[0].Status != core.WebhookLogStatusError {
		t.Fatalf("expected one error log entry, got %+v", logStore.entries)
	}
}

func TestReceiverProcessUnknownSource(t *testing.T) {
	receiver := newTestReceiver(t, &recordingLogStore{})

	result, err := receiver.Process(context.Background(), core.InboundRequest{Source: "sms"})
	if err == nil {
		t.Fatal("expected unknown source to be rejected")
	}
	if result.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", result.StatusCode)
	}
}

func TestReceiverRegisterDefaultsToRejectAll(t *testing.T) {
	handler := &countingHandler{}
	receiver := newTestReceiver(t, &recordingLogStore{})
	if err := receiver.Register(Endpoint{Source: SourceVendor, Handler: handler}); err != nil {
		t.Fatalf("register endpoint: %v", err)
	}

	_, err := receiver.Process(context.Background(), core.InboundRequest{Source: SourceVendor})
	if err == nil {
		t.Fatal("expected endpoint without verifier to reject deliveries")
	}
	if handler.calls != 0 {
		t.Fatal("handler must not run without verification")
	}
}
