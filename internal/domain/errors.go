package domain

import "errors"

// Error taxonomy shared by the gateway, cache, comparison service, and
// scheduler. Callers classify with errors.Is; wrap with fmt.Errorf("%w").
var (
	// ErrProviderUnavailable means the upstream weather API could not be
	// reached even after the gateway's bounded retries. Transient; the next
	// scheduler tick (or the client) retries naturally.
	ErrProviderUnavailable = errors.New("weather provider unavailable")

	// ErrDataAbsent means the provider answered but the requested slot has no
	// value. Retrying the same request cannot help, so the gateway never does.
	ErrDataAbsent = errors.New("no data for requested slot")

	// ErrInsufficientData means a comparison could not be computed because one
	// side of it is absent. Expected shortly after local midnight.
	ErrInsufficientData = errors.New("insufficient data for comparison")

	// ErrInvalidSubscriber flags a malformed persisted subscriber record. Such
	// records are skipped and logged, never fatal to a tick.
	ErrInvalidSubscriber = errors.New("invalid subscriber")

	// ErrCacheUnavailable marks a cache store failure. Always safe to treat as
	// a miss and fetch upstream directly.
	ErrCacheUnavailable = errors.New("cache store unavailable")
)

// ErrorCode maps an error to the stable code surfaced to API clients, so a
// caller can tell "retry later" from "report a bug".
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, ErrDataAbsent):
		return "data_absent"
	case errors.Is(err, ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, ErrInvalidSubscriber):
		return "invalid_subscriber"
	default:
		return "internal"
	}
}
