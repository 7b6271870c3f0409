package registrations

import (
	"errors"

	"github.com/ai-bootcamp/backend/internal/models"
)

var (
	// ErrNotFound is returned when no registration matches the lookup key.
	ErrNotFound = errors.New("registration not found")
	// ErrAlreadyApplied is returned when the registration is already in the requested state.
	ErrAlreadyApplied = errors.New("registration already in requested payment state")
	// ErrInvalidTransition is returned when the requested payment state is not reachable.
	ErrInvalidTransition = errors.New("invalid payment status transition")
)

// transitions lists, per target state, the states a registration may move from.
// Nothing moves back to pending, and a paid registration is terminal.
var transitions = map[models.PaymentStatus][]models.PaymentStatus{
	models.PaymentStatusPaid:   {models.PaymentStatusPending, models.PaymentStatusFailed},
	models.PaymentStatusFailed: {models.PaymentStatusPending},
}

// Transition validates a payment status change.
// It returns nil when the change is allowed, ErrAlreadyApplied when from == to, and
// ErrInvalidTransition otherwise.
func Transition(from, to models.PaymentStatus) error {
	if from == to && to != models.PaymentStatusPending {
		return ErrAlreadyApplied
	}
	for _, s := range transitions[to] {
		if s == from {
			return nil
		}
	}
	return ErrInvalidTransition
}

// sourceStates returns the allowed source states of to as strings, for SQL guards.
func sourceStates(to models.PaymentStatus) []string {
	out := make([]string, 0, len(transitions[to]))
	for _, s := range transitions[to] {
		out = append(out, string(s))
	}
	return out
}
