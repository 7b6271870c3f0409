package models

import (
	"time"

	"github.com/google/uuid"
)

// Event is a bootcamp session attendees register and pay for.
type Event struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartsAt    time.Time  `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	PriceCents  int64      `json:"price_cents"`
	Currency    string     `json:"currency"`
	MeetingLink *string    `json:"meeting_link,omitempty"`
	ImageKey    *string    `json:"image_key,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Price returns the ticket price in major currency units.
func (e *Event) Price() float64 {
	return float64(e.PriceCents) / 100
}
