package models

import (
	"errors"
	"fmt"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeNavigation       = "NAVIGATION_FAILED"
	ErrCodeAmbiguousMatch   = "AMBIGUOUS_MATCH"
	ErrCodeMissingAttribute = "MISSING_ATTRIBUTE"
	ErrCodeInvalidSelector  = "INVALID_SELECTOR"
	ErrCodeSchemaMismatch   = "SCHEMA_MISMATCH"
	ErrCodeIO               = "IO_ERROR"
	ErrCodeDriverFailure    = "DRIVER_FAILURE"
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HelperError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type HelperError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *HelperError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *HelperError) Unwrap() error {
	return e.Err
}

// NewHelperError creates a new HelperError.
func NewHelperError(code, message string, err error) *HelperError {
	return &HelperError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *HelperError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// CodeOf returns the code of the first HelperError in err's chain,
// or ErrCodeInternal when there is none.
func CodeOf(err error) string {
	var he *HelperError
	if errors.As(err, &he) {
		return he.Code
	}
	return ErrCodeInternal
}
