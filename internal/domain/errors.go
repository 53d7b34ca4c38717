package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes; the text doubles
// as the machine-readable error code and as an order's reject reason.
var (
	ErrInvalidConfig          = errors.New("invalid_config")
	ErrInsufficientMargin     = errors.New("insufficient_margin")
	ErrInsufficientPosition   = errors.New("insufficient_position")
	ErrInsufficientFunds      = errors.New("insufficient_funds")
	ErrDependencyNotConnected = errors.New("dependency_not_connected")
	ErrGatewayBusy            = errors.New("gateway_busy")
	ErrAlreadyTerminal        = errors.New("already_terminal")
	ErrGatewayDisconnected    = errors.New("gateway_disconnected")
	ErrGatewayNotFound        = errors.New("gateway_not_found")
	ErrGatewayExists          = errors.New("gateway_already_exists")
	ErrAccountNotFound        = errors.New("account_not_found")
	ErrAccountExists          = errors.New("account_already_exists")
	ErrOrderNotFound          = errors.New("order_not_found")
	ErrSymbolNotFound         = errors.New("symbol_not_found")
	ErrNoReferencePrice       = errors.New("no_reference_price")
	ErrWebhookNotFound        = errors.New("webhook_not_found")
)

// ValidationError represents a malformed gateway, order or money request.
// It matches ErrInvalidConfig under errors.Is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// Invalidf builds a ValidationError from a format string.
func Invalidf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
