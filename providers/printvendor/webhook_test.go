package printvendor

import (
	"testing"
	"time"
)

func TestParseStatusEvent(t *testing.T) {
	event, err := ParseStatusEvent([]byte(`{
		"print_job_id": 4411,
		"status": "SHIPPED",
		"tracking_id": "1Z999",
		"tracking_urls": "https://track.example.com/1Z999",
		"estimated_shipping_date": "2026-03-09"
	}`))
	if err != nil {
		t.Fatalf("parse status event: %v", err)
	}
	if event.VendorJobID != "4411" || event.Status != "SHIPPED" {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.TrackingNumber != "1Z999" || event.TrackingURL != "https://track.example.com/1Z999" {
		t.Fatalf("unexpected tracking %+v", event)
	}
	if event.EstimatedDelivery == nil {
		t.Fatal("expected estimated delivery to be parsed")
	}
	want := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	if !event.EstimatedDelivery.Equal(want) {
		t.Fatalf("unexpected estimated delivery %v", event.EstimatedDelivery)
	}
	if len(event.Payload) == 0 {
		t.Fatal("expected raw payload to be retained")
	}
}

func TestParseStatusEventFallbacks(t *testing.T) {
	event, err := ParseStatusEvent([]byte(`{
		"id": "vj-7",
		"status_detail": {"name": "IN_PRODUCTION"}
	}`))
	if err != nil {
		t.Fatalf("parse status event: %v", err)
	}
	if event.VendorJobID != "vj-7" {
		t.Fatalf("expected id fallback, got %q", event.VendorJobID)
	}
	if event.Status != "IN_PRODUCTION" {
		t.Fatalf("expected status_detail fallback, got %q", event.Status)
	}
}

func TestParseStatusEventIgnoresMalformedDate(t *testing.T) {
	event, err := ParseStatusEvent([]byte(`{
		"print_job_id": "4411",
		"status": "CREATED",
		"estimated_shipping_date": "soon"
	}`))
	if err != nil {
		t.Fatalf("parse status event: %v", err)
	}
	if event.EstimatedDelivery != nil {
		t.Fatalf("expected malformed date to be dropped, got %v", event.EstimatedDelivery)
	}
}

func TestParseStatusEventRequiredFields(t *testing.T) {
	if _, err := ParseStatusEvent([]byte(`{"status": "SHIPPED"}`)); err == nil {
		t.Fatal("expected missing print job id to be rejected")
	}
	if _, err := ParseStatusEvent([]byte(`{"print_job_id": "4411"}`)); err == nil {
		t.Fatal("expected missing status to be rejected")
	}
	if _, err := ParseStatusEvent([]byte(``)); err == nil {
		t.Fatal("expected empty body to be rejected")
	}
}
