package order

import (
	"errors"
	"fmt"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

var (
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrOrderDelivered    = errors.New("order is already delivered")
	ErrOrderCancelled    = errors.New("order is already cancelled")
	// ErrManualPaid guards the PAID status: it is only reachable through
	// the payment-confirmation event, never through a status change request.
	ErrManualPaid = errors.New("orders are marked PAID by payment confirmation only")
)

// ParseStatus validates a caller-supplied status string against the closed
// status set shared by the transition logic and the store schema.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusPaid, StatusDelivered, StatusCancelled:
		return Status(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusPaid, StatusDelivered, StatusCancelled},
	StatusPaid:      {StatusDelivered},
	StatusDelivered: {}, // terminal state
	StatusCancelled: {}, // terminal state
}

// CanTransitionTo checks if the order can transition to the target status
func (o *Order) CanTransitionTo(target Status) bool {
	allowed, exists := validTransitions[o.Status]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// TransitionError returns an appropriate error for an invalid transition
func (o *Order) TransitionError(target Status) error {
	switch {
	case o.Status == StatusCancelled:
		return ErrOrderCancelled
	case o.Status == StatusDelivered:
		return ErrOrderDelivered
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, o.Status, target)
	}
}
