package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ai-bootcamp/backend/internal/models"
	"github.com/ai-bootcamp/backend/pkg/database"
)

// ErrNotFound is returned when no event matches.
var ErrNotFound = errors.New("event not found")

const columns = `id, title, description, starts_at, ends_at, price_cents, currency, meeting_link, image_key, created_at, updated_at`

// Repository handles event persistence.
type Repository struct {
	db database.Querier
}

// NewRepository creates an event repository.
func NewRepository(db database.Querier) *Repository {
	return &Repository{db: db}
}

func scan(row pgx.Row) (*models.Event, error) {
	var e models.Event
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.StartsAt, &e.EndsAt, &e.PriceCents, &e.Currency,
		&e.MeetingLink, &e.ImageKey, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// Create inserts a new event.
func (r *Repository) Create(ctx context.Context, e *models.Event) error {
	const q = `INSERT INTO events (title, description, starts_at, ends_at, price_cents, currency, meeting_link)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(ctx, q, e.Title, e.Description, e.StartsAt, e.EndsAt, e.PriceCents, e.Currency, e.MeetingLink).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetByID returns an event by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	return scan(r.db.QueryRow(ctx, `SELECT `+columns+` FROM events WHERE id = $1`, id))
}

// List returns events ordered by start time. When upcomingAfter is non-nil only events
// starting after it are returned.
func (r *Repository) List(ctx context.Context, upcomingAfter *time.Time) ([]*models.Event, error) {
	q := `SELECT ` + columns + ` FROM events`
	var args []any
	if upcomingAfter != nil {
		q += ` WHERE starts_at >= $1`
		args = append(args, *upcomingAfter)
	}
	rows, err := r.db.Query(ctx, q+` ORDER BY starts_at ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*models.Event
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// SetImageKey stores the event image object key and returns the previous one, if any.
func (r *Repository) SetImageKey(ctx context.Context, id uuid.UUID, key string) (string, error) {
	const q = `UPDATE events e SET image_key = $2, updated_at = NOW()
		FROM (SELECT image_key FROM events WHERE id = $1 FOR UPDATE) prev
		WHERE e.id = $1
		RETURNING COALESCE(prev.image_key, '')`
	var previous string
	if err := r.db.QueryRow(ctx, q, id, key).Scan(&previous); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("set image key: %w", err)
	}
	return previous, nil
}
