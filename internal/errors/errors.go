// Package errors defines the closed set of error kinds used across the
// normalization pipeline and the forecast engine, plus the RFC 7807
// rendering used by the HTTP layer.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error so callers can branch on kind instead of
// matching message text.
type Kind string

const (
	// KindUpstreamAPI covers non-zero status codes from the statistics
	// API and transport failures while talking to it.
	KindUpstreamAPI Kind = "UPSTREAM_API"
	// KindShape covers missing or malformed required substructures in an
	// upstream payload.
	KindShape Kind = "SHAPE"
	// KindDateParse marks a single unparseable date label. Always
	// recoverable: the offending row is dropped.
	KindDateParse Kind = "DATE_PARSE"
	// KindEmptyResult means no rows remain after cleaning, or a required
	// column is absent.
	KindEmptyResult Kind = "EMPTY_RESULT"
	// KindEmptyDataset means the engine was handed a series with no
	// observations.
	KindEmptyDataset Kind = "EMPTY_DATASET"
	// KindNotFitted marks diagnose/predict calls before fit. Programmer
	// error, always fatal.
	KindNotFitted Kind = "MODEL_NOT_FITTED"
	// KindInsufficientData means the normalized history is shorter than
	// the configured minimum.
	KindInsufficientData Kind = "INSUFFICIENT_DATA"
	// KindValidation covers bad request parameters.
	KindValidation Kind = "VALIDATION"
	// KindInternal covers unexpected numerical or runtime failures caught
	// at the boundary.
	KindInternal Kind = "INTERNAL"
)

// Error is the application error type. Every failure that crosses a
// package boundary is one of these.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is and errors.As to reach the cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext attaches a key/value pair for logging and problem details.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates an error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// KindOf returns the kind of err, or KindInternal when err is not an
// *Error from this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// NewUpstreamAPIError wraps a non-zero upstream status code with its
// message so both can be surfaced to the caller.
func NewUpstreamAPIError(code, message string) *Error {
	return New(KindUpstreamAPI, fmt.Sprintf("statistics API error [code %s]: %s", code, message), nil).
		WithContext("upstream_code", code)
}

// NewTransportError wraps a failure to reach the upstream API at all.
func NewTransportError(cause error) *Error {
	return New(KindUpstreamAPI, "statistics API request failed", cause)
}

// NewShapeError marks a payload whose required substructure is missing.
func NewShapeError(structure string) *Error {
	return New(KindShape, fmt.Sprintf("upstream payload is missing required structure %q", structure), nil).
		WithContext("structure", structure)
}

// NewDateParseError marks one unparseable date label.
func NewDateParseError(label string) *Error {
	return New(KindDateParse, fmt.Sprintf("unparseable date label %q", label), nil)
}

// NewEmptyResultError reports a dataset that is empty after cleaning.
func NewEmptyResultError(reason string) *Error {
	return New(KindEmptyResult, reason, nil)
}

// NewEmptyDatasetError reports a series with no observations.
func NewEmptyDatasetError(name string) *Error {
	return New(KindEmptyDataset, fmt.Sprintf("dataset %s is empty", name), nil)
}

// NewNotFittedError reports diagnose/predict before fit.
func NewNotFittedError() *Error {
	return New(KindNotFitted, "model not fitted", nil)
}

// NewInsufficientDataError reports a history shorter than the minimum,
// carrying the actual count so the response can state it.
func NewInsufficientDataError(got, min int) *Error {
	return New(KindInsufficientData,
		fmt.Sprintf("insufficient data: %d observations, minimum %d required", got, min), nil).
		WithContext("observations", got).
		WithContext("minimum", min)
}

// NewValidationError reports a bad request parameter.
func NewValidationError(field, message string) *Error {
	return New(KindValidation, fmt.Sprintf("%s: %s", field, message), nil).
		WithContext("field", field)
}

// NewInternalError wraps an unexpected computation failure with
// diagnostic detail. Never silently swallowed.
func NewInternalError(message string, cause error) *Error {
	return New(KindInternal, message, cause)
}
