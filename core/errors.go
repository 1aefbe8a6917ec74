package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	RelayErrorBadInput        = "RELAY_BAD_INPUT"
	RelayErrorNotFound        = "RELAY_NOT_FOUND"
	RelayErrorSignature       = "RELAY_SIGNATURE_INVALID"
	RelayErrorReplayed        = "RELAY_REPLAYED"
	RelayErrorAlreadyResolved = "RELAY_ALREADY_RESOLVED"
	RelayErrorRateLimited     = "RELAY_RATE_LIMITED"
	RelayErrorDeliveryFailed  = "RELAY_DELIVERY_FAILED"
	RelayErrorInternal        = "RELAY_INTERNAL_ERROR"
)

func relayErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureRelayErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"), strings.Contains(msg, "timestamp outside"):
		return newRelayError(err.Error(), goerrors.CategoryAuth, RelayErrorSignature)
	case strings.Contains(msg, "replay"):
		return newRelayError(err.Error(), goerrors.CategoryConflict, RelayErrorReplayed)
	case strings.Contains(msg, "already resolved"), strings.Contains(msg, "already decided"):
		return newRelayError(err.Error(), goerrors.CategoryConflict, RelayErrorAlreadyResolved)
	case strings.Contains(msg, "not found"):
		return newRelayError(err.Error(), goerrors.CategoryNotFound, RelayErrorNotFound)
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return newRelayError(err.Error(), goerrors.CategoryRateLimit, RelayErrorRateLimited)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "oversized"):
		return newRelayError(err.Error(), goerrors.CategoryBadInput, RelayErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureRelayErrorEnvelope(mapped)
}

func newRelayError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureRelayErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureRelayErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = relayHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultRelayTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultRelayTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return RelayErrorBadInput
	case goerrors.CategoryNotFound:
		return RelayErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return RelayErrorSignature
	case goerrors.CategoryConflict:
		return RelayErrorAlreadyResolved
	case goerrors.CategoryRateLimit:
		return RelayErrorRateLimited
	case goerrors.CategoryOperation:
		return RelayErrorDeliveryFailed
	default:
		return RelayErrorInternal
	}
}

func relayHTTPStatus(category goerrors.Category) int {
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
