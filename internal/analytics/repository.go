package analytics

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ai-bootcamp/backend/pkg/database"
)

// Counts are the registration aggregates of one event.
type Counts struct {
	Total       int
	Pending     int
	Paid        int
	Failed      int
	EmailsSent  int
	RevenuePaid float64
}

// Repository aggregates registrations.
type Repository struct {
	db database.Querier
}

// NewRepository creates an analytics repository.
func NewRepository(db database.Querier) *Repository {
	return &Repository{db: db}
}

// CountByEvent aggregates the registrations of an event by payment status.
func (r *Repository) CountByEvent(ctx context.Context, eventID uuid.UUID) (Counts, error) {
	const q = `SELECT COUNT(*),
		COUNT(*) FILTER (WHERE payment_status = 'pending'),
		COUNT(*) FILTER (WHERE payment_status = 'paid'),
		COUNT(*) FILTER (WHERE payment_status = 'failed'),
		COUNT(*) FILTER (WHERE email_sent),
		COALESCE(SUM(amount_paid) FILTER (WHERE payment_status = 'paid'), 0)::float8
		FROM registrations WHERE event_id = $1`
	var c Counts
	err := r.db.QueryRow(ctx, q, eventID).Scan(&c.Total, &c.Pending, &c.Paid, &c.Failed, &c.EmailsSent, &c.RevenuePaid)
	if err != nil {
		return Counts{}, fmt.Errorf("count registrations: %w", err)
	}
	return c, nil
}
