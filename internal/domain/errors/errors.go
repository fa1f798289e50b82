package errors

import (
	"errors"
	"fmt"
)

// Error types for different failure categories
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeSequencing  ErrorType = "sequencing"
	ErrorTypeConsistency ErrorType = "consistency"
	ErrorTypeBusiness    ErrorType = "business"
	ErrorTypeInternal    ErrorType = "internal"
	ErrorTypeExternal    ErrorType = "external"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeForbidden   ErrorType = "forbidden"
	ErrorTypeConflict    ErrorType = "conflict"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	StatusCode int                    `json:"status_code"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithCurrentState attaches the actual aggregate state to a sequencing error
// so the caller can decide whether to wait or abandon.
func (e *AppError) WithCurrentState(state string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details["current_state"] = state
	return e
}

// Error constructors
func NewValidationError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 400,
	}
}

// NewSequencingError marks an operation attempted out of order. The caller
// may retry once the aggregate has progressed, so these are not retryable
// as-is but never fatal to the record.
func NewSequencingError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeSequencing,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 409,
	}
}

// NewConsistencyError marks a precondition gap that is recoverable by
// completing the missing step.
func NewConsistencyError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConsistency,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 422,
	}
}

func NewBusinessError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeBusiness,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 422,
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       "RESOURCE_NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		Retryable:  false,
		StatusCode: 404,
	}
}

func NewForbiddenError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 403,
	}
}

func NewConflictError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 409,
	}
}

func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Retryable:  true,
		StatusCode: 500,
	}
}

func NewExternalError(service, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       "EXTERNAL_SERVICE_ERROR",
		Message:    fmt.Sprintf("%s service error: %s", service, message),
		Retryable:  true,
		StatusCode: 502,
		Details:    map[string]interface{}{"service": service},
	}
}

// Tender evaluation error codes. Constructors rather than shared vars so a
// caller can attach details without mutating a package-level value.

func NewInvalidWeightsError(message string) *AppError {
	return NewValidationError("INVALID_WEIGHTS", message)
}

func NewInvalidScheduleError(message string) *AppError {
	return NewValidationError("INVALID_SCHEDULE", message)
}

func NewUnknownCriterionError(message string) *AppError {
	return NewValidationError("UNKNOWN_CRITERION", message)
}

func NewMissingJustificationError(message string) *AppError {
	return NewValidationError("MISSING_JUSTIFICATION", message)
}

func NewTooEarlyError(message string) *AppError {
	return NewSequencingError("TOO_EARLY", message)
}

func NewWindowClosedError(message string) *AppError {
	return NewSequencingError("WINDOW_CLOSED", message)
}

func NewAlreadyLockedError(message string) *AppError {
	return NewSequencingError("ALREADY_LOCKED", message)
}

func NewNotYetOpenedError(message string) *AppError {
	return NewSequencingError("NOT_YET_OPENED", message)
}

func NewPrerequisiteNotMetError(message string) *AppError {
	return NewSequencingError("PREREQUISITE_NOT_MET", message)
}

func NewNotYourTurnError(message string) *AppError {
	return NewForbiddenError("NOT_YOUR_TURN", message)
}

func NewAlreadyDecidedError(message string) *AppError {
	return NewConflictError("ALREADY_DECIDED", message)
}

func NewDuplicateApproversError(message string) *AppError {
	return NewValidationError("DUPLICATE_APPROVERS", message)
}

func NewIncompleteSubmissionError(message string) *AppError {
	return NewConsistencyError("INCOMPLETE_SUBMISSION", message)
}

func NewIncompleteScoringError(message string) *AppError {
	return NewConsistencyError("INCOMPLETE_SCORING", message)
}

func NewNoOpenedBidsError(message string) *AppError {
	return NewConsistencyError("NO_OPENED_BIDS", message)
}

// Wrap wraps an error with a message using fmt.Errorf with %w
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsCode checks if an error carries a specific error code
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// GetStatusCode extracts HTTP status code from error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return 500
}
