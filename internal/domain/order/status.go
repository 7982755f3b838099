package order

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
)

// ErrInvalidTransition is matched by every *TransitionError.
var ErrInvalidTransition = errors.New("invalid status transition")

// validNext lists the legal targets for each state. States missing from the
// map are terminal.
var validNext = map[Status]map[Status]struct{}{
	StatusPending: {
		StatusPaid:      {},
		StatusExpired:   {},
		StatusCancelled: {},
	},
}

// ParseStatus converts a raw status name into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", errors.Errorf("unknown order status %q", s)
	}
	return st, nil
}

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusExpired, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(validNext[s]) == 0
}

// RestoresStock reports whether entering s releases the reserved units.
func (s Status) RestoresStock() bool {
	return s == StatusExpired || s == StatusCancelled
}

// CanTransition reports whether from -> to is a legal transition.
// A same-state transition is never legal.
func CanTransition(from, to Status) bool {
	_, ok := validNext[from][to]
	return ok
}

// TransitionError describes a rejected status change.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s -> %s is not allowed", e.From, e.To)
}

// Is makes errors.Is(err, ErrInvalidTransition) succeed.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Transition moves the order to the target status. On rejection the order is
// left untouched.
func (o *Order) Transition(to Status, at time.Time) error {
	if !CanTransition(o.Status, to) {
		return &TransitionError{From: o.Status, To: to}
	}
	o.Status = to
	o.UpdatedAt = at
	return nil
}
