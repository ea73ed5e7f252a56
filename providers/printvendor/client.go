package printvendor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-fulfillment/core"
)

const defaultRequestTimeout = 60 * time.Second

// Config carries the vendor API endpoints and credentials.
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	TokenMargin  time.Duration
	Now          func() time.Time
}

// Client submits and cancels print jobs against the print-on-demand vendor
// REST API.
type Client struct {
	baseURL   string
	timeout   time.Duration
	transport core.TransportAdapter
	tokens    *TokenSource
	logger    core.Logger
}

func NewClient(cfg Config, adapter core.TransportAdapter, logger core.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		timeout:   timeout,
		transport: adapter,
		tokens:    NewTokenSource(cfg, adapter),
		logger:    glog.Ensure(logger),
	}
}

// Vendor package identifiers by selected size, monochrome and color.
var podPackageIDs = map[core.PackageSize]map[bool]string{
	core.PackageSizeSmall: {
		false: "0600X0900BWSTDPB060UW444MXX",
		true:  "0600X0900FCSTDPB080CW444GXX",
	},
	core.PackageSizeMedium: {
		false: "0700X1000BWSTDPB060UW444MXX",
		true:  "0700X1000FCSTDPB080CW444GXX",
	},
	core.PackageSizeStandard: {
		false: "0850X1100BWSTDPB060UW444MXX",
		true:  "0850X1100FCSTDPB080CW444GXX",
	},
}

func podPackageID(selection core.PackageSelection) string {
	if byColor, ok := podPackageIDs[selection.Size]; ok {
		return byColor[selection.Color]
	}
	return podPackageIDs[core.PackageSizeStandard][selection.Color]
}

func (c *Client) CreatePrintJob(ctx context.Context, req core.CreatePrintJobRequest) (core.VendorPrintJob, error) {
	if err := c.ready(); err != nil {
		return core.VendorPrintJob{}, err
	}
	if strings.TrimSpace(req.OrderID) == "" {
		return core.VendorPrintJob{}, fmt.Errorf("printvendor: order id is required")
	}
	if strings.TrimSpace(req.InteriorURL) == "" || strings.TrimSpace(req.CoverURL) == "" {
		return core.VendorPrintJob{}, fmt.Errorf("printvendor: interior and cover urls are required")
	}

	body, err := json.Marshal(map[string]any{
		"external_id": req.OrderID,
		"title":       "Order " + req.OrderNumber,
		"line_items": []map[string]any{{
			"external_id":    req.OrderID,
			"pod_package_id": podPackageID(req.Package),
			"page_count":     req.PageCount,
			"interior_url":   req.InteriorURL,
			"cover_url":      req.CoverURL,
			"quantity":       1,
		}},
		"shipping_address": req.ShippingTo,
	})
	if err != nil {
		return core.VendorPrintJob{}, fmt.Errorf("printvendor: encode print job: %w", err)
	}

	res, err := c.do(ctx, http.MethodPost, c.baseURL+"/print-jobs/", body)
	if err != nil {
		return core.VendorPrintJob{}, err
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return core.VendorPrintJob{}, vendorStatusError("create print job", res.StatusCode, res.Body)
	}

	var payload struct {
		ID     json.Number `json:"id"`
		Status struct {
			Name string `json:"name"`
		} `json:"status"`
	}
	if err := json.Unmarshal(res.Body, &payload); err != nil {
		return core.VendorPrintJob{}, fmt.Errorf("printvendor: decode print job response: %w", err)
	}
	if strings.TrimSpace(payload.ID.String()) == "" {
		return core.VendorPrintJob{}, fmt.Errorf("printvendor: print job response has no id")
	}
	return core.VendorPrintJob{
		VendorJobID: payload.ID.String(),
		Status:      strings.TrimSpace(payload.Status.Name),
	}, nil
}

func (c *Client) CancelPrintJob(ctx context.Context, vendorJobID string) error {
	if err := c.ready(); err != nil {
		return err
	}
	vendorJobID = strings.TrimSpace(vendorJobID)
	if vendorJobID == "" {
		return fmt.Errorf("printvendor: print job id is required")
	}

	body, err := json.Marshal(map[string]any{"name": "CANCELED"})
	if err != nil {
		return fmt.Errorf("printvendor: encode cancellation: %w", err)
	}
	res, err := c.do(ctx, http.MethodPut, c.baseURL+"/print-jobs/"+vendorJobID+"/status/", body)
	if err != nil {
		return err
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return vendorStatusError("cancel print job", res.StatusCode, res.Body)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method string, url string, body []byte) (core.TransportResponse, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return core.TransportResponse{}, err
	}
	return c.transport.Do(ctx, core.TransportRequest{
		Method: method,
		URL:    url,
		Headers: map[string]string{
			"Authorization": "Bearer " + token,
			"Content-Type":  "application/json",
		},
		Body:    body,
		Timeout: c.timeout,
	})
}

func (c *Client) ready() error {
	if c == nil || c.transport == nil {
		return fmt.Errorf("printvendor: client requires a transport adapter")
	}
	if c.baseURL == "" {
		return fmt.Errorf("printvendor: base url is required")
	}
	return nil
}

func vendorStatusError(operation string, statusCode int, body []byte) error {
	message := fmt.Sprintf("printvendor: %s returned status %d", operation, statusCode)
	err := goerrors.New(message, goerrors.CategoryExternal).
		WithCode(http.StatusBadGateway).
		WithTextCode(core.FulfillmentErrorVendorFailed)
	if len(body) > 0 {
		snippet := string(body)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		err.WithMetadata(map[string]any{"vendor_response": snippet, "vendor_status": statusCode})
	}
	return err
}

var _ core.PrintVendorClient = (*Client)(nil)
