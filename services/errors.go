package services

import (
	"errors"
	"fmt"
)

// Sentinel failure kinds. Every user-visible failure wraps exactly one of
// these so callers can branch with errors.Is while the message stays
// human-readable.
var (
	ErrValidation                 = errors.New("VALIDATION_ERROR")
	ErrInsufficientStock          = errors.New("INSUFFICIENT_STOCK")
	ErrInsufficientWarehouseStock = errors.New("INSUFFICIENT_WAREHOUSE_STOCK")
	ErrNotFound                   = errors.New("NOT_FOUND")
	ErrUnauthorized               = errors.New("UNAUTHORIZED")
	ErrForbidden                  = errors.New("FORBIDDEN")
	ErrCancellationBlocked        = errors.New("CANCELLATION_BLOCKED")
	ErrDownstreamUnavailable      = errors.New("DOWNSTREAM_UNAVAILABLE")
)

// Code returns the stable machine-checkable code for err, or INTERNAL_ERROR
// when err carries no known kind.
func Code(err error) string {
	for _, kind := range []error{
		ErrValidation,
		ErrInsufficientStock,
		ErrInsufficientWarehouseStock,
		ErrNotFound,
		ErrUnauthorized,
		ErrForbidden,
		ErrCancellationBlocked,
		ErrDownstreamUnavailable,
	} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return "INTERNAL_ERROR"
}

// failf wraps kind with a formatted human message.
func failf(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}
