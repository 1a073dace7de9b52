package domain

import (
	"errors"
	"strings"
)

var (
	ErrInvalidNumbers       = errors.New("invalid numbers")
	ErrBuyerRequired        = errors.New("buyer id required")
	ErrBuyerDetailsRequired = errors.New("buyer name and phone required")
	ErrAlreadyHeld          = errors.New("numbers already held")
	ErrOrderNotFound        = errors.New("order not found")
	ErrInvalidID            = errors.New("invalid id")
	ErrHoldExpired          = errors.New("hold expired")
	ErrNotHolder            = errors.New("order not held by buyer")
	ErrConflict             = errors.New("order changed concurrently")
	ErrGatewayUnavailable   = errors.New("payment gateway unavailable")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrStructural           = errors.New("unprocessable payment notification")
	ErrReferenceTooLong     = errors.New("order too large for one payment")
)

// HeldError reports the requested numbers that already belong to a live order.
type HeldError struct {
	Numbers []string
}

func (e *HeldError) Error() string {
	return ErrAlreadyHeld.Error() + ": " + strings.Join(e.Numbers, ", ")
}

func (e *HeldError) Is(target error) bool {
	return target == ErrAlreadyHeld
}
