// Package bookshelf fetches rendered book assets from the content API that
// the storefront wizard publishes to.
package bookshelf

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-fulfillment/core"
)

const defaultRequestTimeout = 30 * time.Second

type bookPayload struct {
	InteriorURL string `json:"interior_pdf_url"`
	CoverURL    string `json:"cover_pdf_url"`
	Pages       []struct {
		HasImage bool `json:"has_image"`
	} `json:"pages"`
}

// Source resolves book content for an order over the content API.
type Source struct {
	baseURL   string
	timeout   time.Duration
	transport core.TransportAdapter
}

func NewSource(baseURL string, adapter core.TransportAdapter) *Source {
	return &Source{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		timeout:   defaultRequestTimeout,
		transport: adapter,
	}
}

func (s *Source) BookContent(ctx context.Context, orderID string) (core.BookContent, error) {
	if s == nil || s.transport == nil {
		return core.BookContent{}, goerrors.New("bookshelf: transport adapter is required", goerrors.CategoryInternal).
			WithTextCode(core.FulfillmentErrorInternal)
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return core.BookContent{}, goerrors.New("bookshelf: order id is required", goerrors.CategoryBadInput).
			WithTextCode(core.FulfillmentErrorBadInput)
	}

	response, err := s.transport.Do(ctx, core.TransportRequest{
		Method:  http.MethodGet,
		URL:     fmt.Sprintf("%s/orders/%s/book", s.baseURL, orderID),
		Timeout: s.timeout,
	})
	if err != nil {
		return core.BookContent{}, err
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return core.BookContent{}, goerrors.New(
			fmt.Sprintf("bookshelf: content API returned status %d for order %s", response.StatusCode, orderID),
			goerrors.CategoryExternal,
		).
			WithCode(http.StatusBadGateway).
			WithTextCode(core.FulfillmentErrorVendorFailed)
	}

	var payload bookPayload
	if err := json.Unmarshal(response.Body, &payload); err != nil {
		return core.BookContent{}, goerrors.Wrap(err, goerrors.CategoryExternal, "bookshelf: decode book payload").
			WithTextCode(core.FulfillmentErrorVendorFailed)
	}
	if strings.TrimSpace(payload.InteriorURL) == "" || strings.TrimSpace(payload.CoverURL) == "" {
		return core.BookContent{}, goerrors.New("bookshelf: book payload is missing asset urls", goerrors.CategoryExternal).
			WithTextCode(core.FulfillmentErrorVendorFailed)
	}

	content := core.BookContent{
		InteriorURL: strings.TrimSpace(payload.InteriorURL),
		CoverURL:    strings.TrimSpace(payload.CoverURL),
		Pages:       make([]core.BookPage, 0, len(payload.Pages)),
	}
	for _, page := range payload.Pages {
		content.Pages = append(content.Pages, core.BookPage{HasImage: page.HasImage})
	}
	return content, nil
}

var _ core.BookContentSource = (*Source)(nil)
