package errors

import (
	"errors"
	"fmt"
	"time"
)

// Base error types
var (
	ErrTimeout          = errors.New("timeout")
	ErrCancelled        = errors.New("cancelled")
	ErrInvalidInput     = errors.New("invalid input")
	ErrConnectionFailed = errors.New("connection failed")
	ErrInternalError    = errors.New("internal error")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeConnection ErrorType = "connection"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIntegrity  ErrorType = "integrity"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeTimeout    ErrorType = "timeout"
)

// GatewayError is a structured error for commerce gateway operations
type GatewayError struct {
	Type      ErrorType
	Op        string // Operation that failed (e.g., "fetch_products", "purchase")
	ProductID string // Product involved, if applicable
	Err       error  // Underlying error
	Timestamp time.Time
	Retryable bool
}

func (e *GatewayError) Error() string {
	if e.ProductID != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.ProductID, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface
func (e *GatewayError) Is(target error) bool {
	if target == nil {
		return false
	}

	switch target {
	case ErrTimeout:
		return e.Type == ErrorTypeTimeout
	case ErrConnectionFailed:
		return e.Type == ErrorTypeConnection
	case ErrInvalidInput:
		return e.Type == ErrorTypeValidation
	}

	return errors.Is(e.Err, target)
}

// NewGatewayError creates a new GatewayError
func NewGatewayError(errorType ErrorType, op string, err error) *GatewayError {
	return &GatewayError{
		Type:      errorType,
		Op:        op,
		Err:       err,
		Timestamp: time.Now(),
		Retryable: isRetryable(errorType),
	}
}

// WithProduct adds product information to the error
func (e *GatewayError) WithProduct(productID string) *GatewayError {
	e.ProductID = productID
	return e
}

func isRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeConnection, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

// WrapConnectionError wraps a gateway transport error with context
func WrapConnectionError(op string, err error) error {
	return NewGatewayError(ErrorTypeConnection, op, err)
}

// IsRetryableError checks if an error should be retried
func IsRetryableError(err error) bool {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Retryable
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrConnectionFailed)
}
