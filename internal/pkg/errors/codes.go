package errors

import (
	"net/http"
	"strings"
)

// Error code constants.
// Errors carry code + params; messages are English and meant for logs.

// Ingestion error codes.
const (
	CodeMalformedEvent    = "MALFORMED_EVENT"
	CodeSourceUnavailable = "SOURCE_UNAVAILABLE"
)

// Fact store error codes.
const (
	CodeFactNotFound     = "FACT_NOT_FOUND"
	CodeStoreWriteFailed = "STORE_WRITE_FAILED"
	CodeStoreReadFailed  = "STORE_READ_FAILED"
)

// Safety gate outcome codes. These are never returned as errors; they label
// BLOCKED and WARNING responses.
const (
	CodeNoCurrentFact             = "NO_CURRENT_FACT"
	CodeReliabilityBelowThreshold = "RELIABILITY_BELOW_THRESHOLD"
	CodeInconsistencyDetected     = "INCONSISTENCY_DETECTED"
	CodeStaleData                 = "STALE_DATA"
)

// Job queue error codes.
const (
	CodeEnqueueFailed = "ENQUEUE_FAILED"
)

// Request validation error codes.
const (
	CodeInvalidRequestField = "INVALID_REQUEST_FIELD"
	CodeValidationFailed    = "VALIDATION_FAILED"
)

// Convenience constructors using predefined codes.

// ErrMalformedEventf creates a malformed event error carrying the rejected
// fields.
func ErrMalformedEventf(eventID string, fields []FieldError) *AppError {
	msg := "malformed event"
	if len(fields) > 0 {
		names := make([]string, 0, len(fields))
		for _, f := range fields {
			names = append(names, f.Field)
		}
		msg += ": invalid " + strings.Join(names, ", ")
	}
	return New(CodeMalformedEvent, msg, http.StatusBadRequest).
		WithParams(map[string]interface{}{"event_id": eventID}).
		WithFieldErrors(fields)
}

// ErrFactNotFoundf creates a fact not found error.
func ErrFactNotFoundf(itemID string) *AppError {
	return Wrap(ErrNotFound, CodeFactNotFound, "no current fact for item", http.StatusNotFound).
		WithParams(map[string]interface{}{"item_id": itemID})
}

// ErrStoreWriteFailedf wraps a persistence failure for one item.
func ErrStoreWriteFailedf(itemID string, err error) *AppError {
	return Wrap(err, CodeStoreWriteFailed, "fact store write failed", http.StatusServiceUnavailable).
		WithParams(map[string]interface{}{"item_id": itemID})
}

// ErrStoreReadFailedf wraps a persistence read failure.
func ErrStoreReadFailedf(itemID string, err error) *AppError {
	return Wrap(err, CodeStoreReadFailed, "fact store read failed", http.StatusServiceUnavailable).
		WithParams(map[string]interface{}{"item_id": itemID})
}

// ErrSourceUnavailablef wraps a failure to read an event source.
func ErrSourceUnavailablef(source string, err error) *AppError {
	return Wrap(err, CodeSourceUnavailable, "event source unavailable", http.StatusBadGateway).
		WithParams(map[string]interface{}{"source": source})
}

// ErrEnqueueFailedf wraps a failure to insert a background job.
func ErrEnqueueFailedf(kind string, err error) *AppError {
	return Wrap(err, CodeEnqueueFailed, "failed to enqueue job", http.StatusServiceUnavailable).
		WithParams(map[string]interface{}{"kind": kind})
}

// ErrInvalidRequestFieldf creates a bad request error for a rejected field.
func ErrInvalidRequestFieldf(fieldName string) *AppError {
	return New(CodeInvalidRequestField, "invalid request field: "+fieldName, http.StatusBadRequest)
}

// HasCode reports whether err is an AppError with the given code.
func HasCode(err error, code string) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Code == code
}
