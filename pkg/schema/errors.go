package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeExecution      = "EXECUTION_ERROR"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeRateLimited    = "RATE_LIMITED"
	ErrCodeStepFailed     = "STEP_FAILED"
	ErrCodeRetryExhausted = "RETRY_EXHAUSTED"
	ErrCodeNonRetryable   = "NON_RETRYABLE"
	ErrCodeStore          = "STORE_ERROR"
	ErrCodeLLM            = "LLM_ERROR"
	ErrCodeFetch          = "FETCH_ERROR"
)

// CodetourError is the structured error type for all codetour operations.
type CodetourError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Step    string         `json:"step,omitempty"`
	Cause   error          `json:"-"`
}

func (e *CodetourError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("[%s] step %s: %s", e.Code, e.Step, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *CodetourError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the error's code marks a transient condition.
// Validation, not-found and explicitly non-retryable errors are permanent;
// everything else is assumed transient and left to the retry policy.
func (e *CodetourError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeValidation, ErrCodeNotFound, ErrCodeNonRetryable, ErrCodeRetryExhausted:
		return false
	default:
		return true
	}
}

// NewError creates a new CodetourError.
func NewError(code, message string) *CodetourError {
	return &CodetourError{Code: code, Message: message}
}

// NewErrorf creates a new CodetourError with a formatted message.
func NewErrorf(code, format string, args ...any) *CodetourError {
	return &CodetourError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStep attaches a step name to the error.
func (e *CodetourError) WithStep(step string) *CodetourError {
	e.Step = step
	return e
}

// WithCause attaches an underlying cause.
func (e *CodetourError) WithCause(err error) *CodetourError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *CodetourError) WithDetails(details map[string]any) *CodetourError {
	e.Details = details
	return e
}
