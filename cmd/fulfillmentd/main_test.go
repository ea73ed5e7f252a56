package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goliatone/go-fulfillment/core"
	"github.com/goliatone/go-fulfillment/proxy"
)

type capturingTransport struct {
	requests []core.TransportRequest
	response core.TransportResponse
}

var _ core.TransportAdapter = (*capturingTransport)(nil)

func (t *capturingTransport) Kind() string { return "stub" }

func (t *capturingTransport) Do(_ context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	t.requests = append(t.requests, req)
	return t.response, nil
}

type staticCredentials struct{ token string }

func (c staticCredentials) Token(context.Context) (string, error) { return c.token, nil }

func TestProxyHandlerForwardsRequestEnvelope(t *testing.T) {
	transport := &capturingTransport{response: core.TransportResponse{
		StatusCode: http.StatusCreated,
		Body:       []byte(`{"id":4411}`),
	}}
	forwarder := &proxy.Forwarder{
		Verifier:        proxy.NewStaticTokenVerifier(map[string]string{"caller-token": "frontend"}),
		Credentials:     staticCredentials{token: "vendor-token"},
		Transport:       transport,
		BaseURL:         "https://vendor.example.com",
		AllowedPrefixes: []string{"/print-jobs"},
	}
	handler := proxyHandler(forwarder)

	envelope := `{"method":"post","endpoint":"/print-jobs/","body":{"external_id":"ord-1"}}`
	req := httptest.NewRequest(http.MethodPost, "/proxy", strings.NewReader(envelope))
	req.Header.Set("Authorization", "Bearer caller-token")
	recorder := httptest.NewRecorder()
	handler(recorder, req)

	if recorder.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}
	if len(transport.requests) != 1 {
		t.Fatalf("expected one forwarded request, got %d", len(transport.requests))
	}
	forwarded := transport.requests[0]
	if forwarded.Method != http.MethodPost {
		t.Fatalf("unexpected method %q", forwarded.Method)
	}
	if forwarded.URL != "https://vendor.example.com/print-jobs/" {
		t.Fatalf("unexpected url %q", forwarded.URL)
	}
	var body map[string]any
	if err := json.Unmarshal(forwarded.Body, &body); err != nil {
		t.Fatalf("decode forwarded body: %v", err)
	}
	if body["external_id"] != "ord-1" {
		t.Fatalf("unexpected forwarded body %#v", body)
	}
	if forwarded.Headers["Authorization"] != "Bearer vendor-token" {
		t.Fatalf("caller token must not reach the vendor, got %q", forwarded.Headers["Authorization"])
	}
}

func TestProxyHandlerRejectsMalformedEnvelope(t *testing.T) {
	transport := &capturingTransport{}
	forwarder := &proxy.Forwarder{
		Verifier:        proxy.NewStaticTokenVerifier(map[string]string{"caller-token": "frontend"}),
		Transport:       transport,
		AllowedPrefixes: []string{"/print-jobs"},
	}
	handler := proxyHandler(forwarder)

	for _, payload := range []string{"not json", `{"method":"GET"}`} {
		req := httptest.NewRequest(http.MethodPost, "/proxy", strings.NewReader(payload))
		req.Header.Set("Authorization", "Bearer caller-token")
		recorder := httptest.NewRecorder()
		handler(recorder, req)

		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("payload %q: unexpected status %d", payload, recorder.Code)
		}
	}
	if len(transport.requests) != 0 {
		t.Fatalf("expected no forwarded requests, got %d", len(transport.requests))
	}
}
