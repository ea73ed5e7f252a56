package bookshelf

import (
	"context"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-fulfillment/core"
)

type stubTransport struct {
	requests []core.TransportRequest
	response core.TransportResponse
	err      error
}

var _ core.TransportAdapter = (*stubTransport)(nil)

func (s *stubTransport) Kind() string { return "stub" }

func (s *stubTransport) Do(_ context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return core.TransportResponse{}, s.err
	}
	return s.response, nil
}

func TestSourceBookContent(t *testing.T) {
	transport := &stubTransport{response: core.TransportResponse{
		StatusCode: http.StatusOK,
		Body: []byte(`{
			"interior_pdf_url": "https://cdn.example.com/interior.pdf",
			"cover_pdf_url": "https://cdn.example.com/cover.pdf",
			"pages": [{"has_image": false}, {"has_image": true}]
		}`),
	}}
	source := NewSource("https://content.example.com/", transport)

	content, err := source.BookContent(context.Background(), "ord-1")
	if err != nil {
		t.Fatalf("fetch book content: %v", err)
	}
	if content.InteriorURL != "https://cdn.example.com/interior.pdf" {
		t.Fatalf("unexpected interior url %q", content.InteriorURL)
	}
	if len(content.Pages) != 2 || !content.Pages[1].HasImage {
		t.Fatalf("unexpected pages %+v", content.Pages)
	}

	if len(transport.requests) != 1 {
		t.Fatalf("expected one request, got %d", len(transport.requests))
	}
	req := transport.requests[0]
	if req.Method != http.MethodGet || req.URL != "https://content.example.com/orders/ord-1/book" {
		t.Fatalf("unexpected request %s %s", req.Method, req.URL)
	}
}

func TestSourceBookContentRejectsUpstreamFailure(t *testing.T) {
	transport := &stubTransport{response: core.TransportResponse{StatusCode: http.StatusNotFound}}
	source := NewSource("https://content.example.com", transport)

	_, err := source.BookContent(context.Background(), "ord-1")
	if err == nil {
		t.Fatal("expected upstream failure to propagate")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 wrapper, got %v", err)
	}
}

func TestSourceBookContentRequiresAssetURLs(t *testing.T) {
	transport := &stubTransport{response: core.TransportResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"interior_pdf_url": "", "cover_pdf_url": "https://cdn.example.com/cover.pdf"}`),
	}}
	source := NewSource("https://content.example.com", transport)

	if _, err := source.BookContent(context.Background(), "ord-1"); err == nil {
		t.Fatal("expected missing asset urls to be rejected")
	}
}

func TestSourceBookContentRequiresOrderID(t *testing.T) {
	source := NewSource("https://content.example.com", &stubTransport{})
	if _, err := source.BookContent(context.Background(), "  "); err == nil {
		t.Fatal("expected missing order id to be rejected")
	}
}
