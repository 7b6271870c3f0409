package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the payment lifecycle state of a registration.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed:
		return true
	}
	return false
}

// Registration is an attendee registration for a bootcamp event.
type Registration struct {
	ID                uuid.UUID     `json:"id"`
	EventID           uuid.UUID     `json:"event_id"`
	Name              string        `json:"name"`
	Email             string        `json:"email"`
	AuthUserID        *uuid.UUID    `json:"auth_user_id,omitempty"`
	CheckoutSessionID *string       `json:"checkout_session_id,omitempty"`
	PaymentIntentID   *string       `json:"payment_intent_id,omitempty"`
	PaymentStatus     PaymentStatus `json:"payment_status"`
	PaymentError      *string       `json:"payment_error,omitempty"`
	AmountPaid        *float64      `json:"amount_paid,omitempty"`
	EmailSent         bool          `json:"email_sent"`
	PaidAt            *time.Time    `json:"paid_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// IsPaid reports whether the registration has been paid.
func (r *Registration) IsPaid() bool {
	return r.PaymentStatus == PaymentStatusPaid
}
