package api

import (
	"errors"
	"net/http"

	"github.com/reservoir-data/marketdata-core/go/marketdata"
)

// StatusFor maps a sentinel core error to the HTTP status spec.md §7
// assigns it. It is the single place this translation happens, called by
// every HTTP handler (spec.md §6's "[NEW]" note); gRPC transports would
// call an equivalent single mapping to its own status codes.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, marketdata.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, marketdata.ErrNotRunning):
		return http.StatusServiceUnavailable
	case errors.Is(err, marketdata.ErrFeedUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, marketdata.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, marketdata.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, marketdata.ErrMalformed):
		return http.StatusBadRequest
	case errors.Is(err, marketdata.ErrSlowConsumer):
		return http.StatusRequestTimeout
	case errors.Is(err, marketdata.ErrValidation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
