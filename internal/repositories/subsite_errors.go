package repositories

import "fmt"

// SubsiteErrorCode enumerates repository error causes for subsite operations.
type SubsiteErrorCode string

const (
	// SubsiteErrorUnknown represents an unspecified failure.
	SubsiteErrorUnknown SubsiteErrorCode = "subsite_unknown"
	// SubsiteErrorNotFound indicates the subsite document is missing.
	SubsiteErrorNotFound SubsiteErrorCode = "subsite_not_found"
	// SubsiteErrorOrderNotFound indicates the fan-out row is missing.
	SubsiteErrorOrderNotFound SubsiteErrorCode = "subsite_order_not_found"
	// SubsiteErrorDuplicateOrder indicates the order serial was already imported.
	SubsiteErrorDuplicateOrder SubsiteErrorCode = "subsite_duplicate_order"
	// SubsiteErrorInvalidState indicates the row state forbids the operation.
	SubsiteErrorInvalidState SubsiteErrorCode = "subsite_invalid_state"
)

// SubsiteError wraps subsite-specific failures with machine readable codes.
type SubsiteError struct {
	Op      string
	Code    SubsiteErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *SubsiteError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *SubsiteError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewSubsiteError constructs a typed subsite error.
func NewSubsiteError(code SubsiteErrorCode, message string, err error) *SubsiteError {
	if message == "" {
		message = string(code)
	}
	return &SubsiteError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
