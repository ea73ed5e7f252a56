package proxy

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-fulfillment/core"
	"github.com/goliatone/go-fulfillment/ratelimit"
)

// TokenVerifier authenticates the caller bearer token and resolves the
// caller identity used for rate limiting and audit.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (callerID string, err error)
}

// CredentialSource supplies the server-held vendor API token attached to
// forwarded calls. Caller tokens never reach the vendor.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
}

// Request is the caller-supplied call description.
type Request struct {
	Method   string
	Endpoint string
	Body     []byte
}

// Forwarder relays authenticated front-end calls to the vendor API. Every
// call is checked against the endpoint allow-list and the per-caller rate
// limit, then forwarded with server credentials and written to the audit
// log whether it succeeded or not.
type Forwarder struct {
	Verifier        TokenVerifier
	Credentials     CredentialSource
	Transport       core.TransportAdapter
	Limiter         *ratelimit.WindowPolicy
	Audit           core.ProxyLogStore
	Logger          core.Logger
	BaseURL         string
	AllowedPrefixes []string
	Timeout         time.Duration
	Now             func() time.Time
}

func (f *Forwarder) Forward(ctx context.Context, bearerToken string, req Request) (core.TransportResponse, error) {
	if f == nil || f.Transport == nil {
		return core.TransportResponse{}, proxyInternal("proxy: forwarder requires a transport adapter")
	}

	method := strings.TrimSpace(strings.ToUpper(req.Method))
	if method == "" {
		method = http.MethodPost
	}
	endpoint := normalizeEndpoint(req.Endpoint)

	callerID, err := f.authenticate(ctx, bearerToken)
	if err != nil {
		f.audit(ctx, callerID, method, endpoint, core.HTTPStatusForError(err), false, err)
		return core.TransportResponse{}, err
	}

	if !f.allowed(endpoint) {
		err := goerrors.New(
			fmt.Sprintf("proxy: endpoint %q is not allow-listed", endpoint),
			goerrors.CategoryAuthz,
		).WithCode(http.StatusForbidden).WithTextCode(core.FulfillmentErrorForbidden)
		f.audit(ctx, callerID, method, endpoint, http.StatusForbidden, false, err)
		return core.TransportResponse{}, err
	}

	if f.Limiter != nil {
		if err := f.Limiter.Allow(ctx, ratelimit.Key{CallerID: callerID, Bucket: "proxy"}); err != nil {
			var throttled ratelimit.ThrottledError
			if goerrors.As(err, &throttled) {
				err = throttled.ToFulfillmentError()
			}
			f.audit(ctx, callerID, method, endpoint, core.HTTPStatusForError(err), false, err)
			return core.TransportResponse{}, err
		}
	}

	headers := map[string]string{"Content-Type": "application/json"}
	if f.Credentials != nil {
		token, err := f.Credentials.Token(ctx)
		if err != nil {
			f.audit(ctx, callerID, method, endpoint, core.HTTPStatusForError(err), false, err)
			return core.TransportResponse{}, err
		}
		headers["Authorization"] = "Bearer " + token
	}

	res, err := f.Transport.Do(ctx, core.TransportRequest{
		Method:  method,
		URL:     strings.TrimRight(strings.TrimSpace(f.BaseURL), "/") + endpoint,
		Headers: headers,
		Body:    req.Body,
		Timeout: f.Timeout,
	})
	statusCode := res.StatusCode
	if err != nil {
		statusCode = core.HTTPStatusForError(err)
	}
	f.audit(ctx, callerID, method, endpoint, statusCode, err == nil, err)
	if err != nil {
		return core.TransportResponse{}, err
	}
	return res, nil
}

func (f *Forwarder) authenticate(ctx context.Context, bearerToken string) (string, error) {
	if f.Verifier == nil {
		return "", goerrors.New("proxy: token verification is not configured", goerrors.CategoryAuth).
			WithCode(http.StatusUnauthorized).WithTextCode(core.FulfillmentErrorUnauthorized)
	}
	token := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(bearerToken), "Bearer "))
	if token == "" {
		return "", goerrors.New("proxy: bearer token is required", goerrors.CategoryAuth).
			WithCode(http.StatusUnauthorized).WithTextCode(core.FulfillmentErrorUnauthorized)
	}
	callerID, err := f.Verifier.VerifyToken(ctx, token)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryAuth, "proxy: token verification failed").
			WithCode(http.StatusUnauthorized).WithTextCode(core.FulfillmentErrorUnauthorized)
	}
	callerID = strings.TrimSpace(callerID)
	if callerID == "" {
		return "", goerrors.New("proxy: token resolved to no caller", goerrors.CategoryAuth).
			WithCode(http.StatusUnauthorized).WithTextCode(core.FulfillmentErrorUnauthorized)
	}
	return callerID, nil
}

func (f *Forwarder) allowed(endpoint string) bool {
	for _, prefix := range f.AllowedPrefixes {
		prefix = strings.TrimSpace(prefix)
		if prefix == "" {
			continue
		}
		if strings.HasPrefix(endpoint, prefix) {
			return true
		}
	}
	return false
}

func (f *Forwarder) audit(ctx context.Context, callerID string, method string, endpoint string, statusCode int, success bool, cause error) {
	if f.Audit == nil {
		return
	}
	entry := core.ProxyLogEntry{
		CallerID:   callerID,
		Method:     method,
		Endpoint:   endpoint,
		StatusCode: statusCode,
		Success:    success,
		CreatedAt:  f.now(),
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	if err := f.Audit.Record(ctx, entry); err != nil {
		glog.Ensure(f.Logger).Warn("proxy audit write failed", "endpoint", endpoint, "error", err.Error())
	}
}

func (f *Forwarder) now() time.Time {
	if f != nil && f.Now != nil {
		return f.Now().UTC()
	}
	return time.Now().UTC()
}

func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "/"
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return endpoint
}

func proxyInternal(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.FulfillmentErrorInternal)
}
