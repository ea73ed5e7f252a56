package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	FulfillmentErrorBadInput         = "FULFILLMENT_BAD_INPUT"
	FulfillmentErrorUnauthorized     = "FULFILLMENT_UNAUTHORIZED"
	FulfillmentErrorForbidden        = "FULFILLMENT_FORBIDDEN"
	FulfillmentErrorNotFound         = "FULFILLMENT_NOT_FOUND"
	FulfillmentErrorConflict         = "FULFILLMENT_CONFLICT"
	FulfillmentErrorRateLimited      = "FULFILLMENT_RATE_LIMITED"
	FulfillmentErrorVendorFailed     = "FULFILLMENT_VENDOR_FAILED"
	FulfillmentErrorInternal         = "FULFILLMENT_INTERNAL_ERROR"
)

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return newFulfillmentError(err.Error(), goerrors.CategoryNotFound, FulfillmentErrorNotFound)
	case strings.Contains(msg, "signature"), strings.Contains(msg, "unauthorized"), strings.Contains(msg, "token"):
		return newFulfillmentError(err.Error(), goerrors.CategoryAuth, FulfillmentErrorUnauthorized)
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return newFulfillmentError(err.Error(), goerrors.CategoryRateLimit, FulfillmentErrorRateLimited)
	case strings.Contains(msg, "vendor"):
		return newFulfillmentError(err.Error(), goerrors.CategoryOperation, FulfillmentErrorVendorFailed)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "unknown"):
		return newFulfillmentError(err.Error(), goerrors.CategoryBadInput, FulfillmentErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func newFulfillmentError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = fulfillmentHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultFulfillmentTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultFulfillmentTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return FulfillmentErrorBadInput
	case goerrors.CategoryNotFound:
		return FulfillmentErrorNotFound
	case goerrors.CategoryAuth:
		return FulfillmentErrorUnauthorized
	case goerrors.CategoryAuthz:
		return FulfillmentErrorForbidden
	case goerrors.CategoryConflict:
		return FulfillmentErrorConflict
	case goerrors.CategoryRateLimit:
		return FulfillmentErrorRateLimited
	case goerrors.CategoryOperation:
		return FulfillmentErrorVendorFailed
	default:
		return FulfillmentErrorInternal
	}
}

// HTTPStatusForError resolves the HTTP status carried by a service error.
// Errors outside the service envelope map to 500.
func HTTPStatusForError(err error) int {
	if err == nil {
		return 0
	}
	var serviceErr *goerrors.Error
	if goerrors.As(err, &serviceErr) {
		if serviceErr.Code > 0 {
			return serviceErr.Code
		}
		return fulfillmentHTTPStatus(serviceErr.Category)
	}
	return http.StatusInternalServerError
}

func fulfillmentHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
