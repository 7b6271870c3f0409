package emaillogs

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ai-bootcamp/backend/internal/models"
	"github.com/ai-bootcamp/backend/pkg/database"
)

// Repository handles email_logs persistence.
type Repository struct {
	db database.Querier
}

// NewRepository creates an email logs repository.
func NewRepository(db database.Querier) *Repository {
	return &Repository{db: db}
}

// Create inserts a send attempt.
func (r *Repository) Create(ctx context.Context, l *models.EmailLog) error {
	const q = `INSERT INTO email_logs
		(event_id, registration_id, email_type, recipient_email, subject, status, provider_message_id, sent_at, error_message)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), $8, NULLIF($9, ''))
		RETURNING id, created_at`
	err := r.db.QueryRow(ctx, q, l.EventID, l.RegistrationID, l.EmailType, l.RecipientEmail, l.Subject, l.Status,
		l.ProviderMessageID, l.SentAt, l.ErrorMessage).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert email log: %w", err)
	}
	return nil
}

// ListByEvent returns email logs for an event, newest first.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*models.EmailLog, error) {
	const q = `SELECT id, event_id, registration_id, email_type, recipient_email,
			COALESCE(subject, ''), status, COALESCE(provider_message_id, ''), sent_at, COALESCE(error_message, ''), created_at
		FROM email_logs
		WHERE event_id = $1
		ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.EmailLog
	for rows.Next() {
		var el models.EmailLog
		if err := rows.Scan(&el.ID, &el.EventID, &el.RegistrationID, &el.EmailType, &el.RecipientEmail, &el.Subject,
			&el.Status, &el.ProviderMessageID, &el.SentAt, &el.ErrorMessage, &el.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &el)
	}
	return list, rows.Err()
}
