package registrations

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

const columns = `id, event_id, name, email, auth_user_id, checkout_session_id, payment_intent_id,
	payment_status, payment_error, amount_paid::float8, email_sent, paid_at, created_at, updated_at`

// PaidUpdate carries the payment fields written when a registration is paid.
type PaidUpdate struct {
	CheckoutSessionID string // optional; kept unchanged when empty
	PaymentIntentID   string
	AmountPaid        float64
	PaidAt            time.Time
}

// FailedUpdate carries the payment fields written when a payment attempt fails.
type FailedUpdate struct {
	PaymentIntentID string
	Error           string
}

// Repository handles registration persistence.
type Repository struct {
	db database.Querier
}

// NewRepository creates a registrations repository.
func NewRepository(db database.Querier) *Repository {
	return &Repository{db: db}
}

func scan(row pgx.Row) (*models.Registration, error) {
	var reg models.Registration
	var status string
	err := row.Scan(&reg.ID, &reg.EventID, &reg.Name, &reg.Email, &reg.AuthUserID, &reg.CheckoutSessionID,
		&reg.PaymentIntentID, &status, &reg.PaymentError, &reg.AmountPaid, &reg.EmailSent, &reg.PaidAt,
		&reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	reg.PaymentStatus = models.PaymentStatus(status)
	return &reg, nil
}

// Create inserts a pending registration.
func (r *Repository) Create(ctx context.Context, reg *models.Registration) error {
	const q = `INSERT INTO registrations (event_id, name, email, auth_user_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, payment_status, created_at, updated_at`
	var status string
	err := r.db.QueryRow(ctx, q, reg.EventID, reg.Name, reg.Email, reg.AuthUserID).
		Scan(&reg.ID, &status, &reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	reg.PaymentStatus = models.PaymentStatus(status)
	return nil
}

// GetByID returns a registration by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	return scan(r.db.QueryRow(ctx, `SELECT `+columns+` FROM registrations WHERE id = $1`, id))
}

// GetByCheckoutSessionID returns the registration correlated with a checkout session.
func (r *Repository) GetByCheckoutSessionID(ctx context.Context, sessionID string) (*models.Registration, error) {
	return scan(r.db.QueryRow(ctx, `SELECT `+columns+` FROM registrations WHERE checkout_session_id = $1`, sessionID))
}

// GetByPaymentIntentID returns the registration correlated with a payment intent.
func (r *Repository) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Registration, error) {
	const q = `SELECT ` + columns + ` FROM registrations WHERE payment_intent_id = $1
		ORDER BY created_at DESC LIMIT 1`
	return scan(r.db.QueryRow(ctx, q, paymentIntentID))
}

// GetByEventAndEmail returns the most recent registration of email for an event.
func (r *Repository) GetByEventAndEmail(ctx context.Context, eventID uuid.UUID, email string) (*models.Registration, error) {
	const q = `SELECT ` + columns + ` FROM registrations WHERE event_id = $1 AND LOWER(email) = LOWER($2)
		ORDER BY created_at DESC LIMIT 1`
	return scan(r.db.QueryRow(ctx, q, eventID, email))
}

// ListByUser returns the registrations linked to an account, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Registration, error) {
	rows, err := r.db.Query(ctx, `SELECT `+columns+` FROM registrations WHERE auth_user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Registration
	for rows.Next() {
		reg, err := scan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, reg)
	}
	return list, rows.Err()
}

// SetCheckoutSession stores the hosted checkout session id on a registration.
func (r *Repository) SetCheckoutSession(ctx context.Context, id uuid.UUID, sessionID string) error {
	const q = `UPDATE registrations SET checkout_session_id = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Exec(ctx, q, id, sessionID)
	if err != nil {
		return fmt.Errorf("set checkout session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkPaid moves a registration to paid. The update only matches rows in a state that may
// transition to paid, so concurrent deliveries cannot regress the status.
func (r *Repository) MarkPaid(ctx context.Context, id uuid.UUID, u PaidUpdate) (*models.Registration, error) {
	q := `UPDATE registrations
		SET checkout_session_id = COALESCE(NULLIF($2, ''), checkout_session_id),
			payment_intent_id = $3,
			amount_paid = $4,
			payment_status = 'paid',
			payment_error = NULL,
			paid_at = $5,
			updated_at = NOW()
		WHERE id = $1 AND payment_status = ANY($6)
		RETURNING ` + columns
	reg, err := scan(r.db.QueryRow(ctx, q, id, u.CheckoutSessionID, u.PaymentIntentID, u.AmountPaid, u.PaidAt,
		sourceStates(models.PaymentStatusPaid)))
	if errors.Is(err, ErrNotFound) {
		return nil, r.explainMiss(ctx, id, models.PaymentStatusPaid)
	}
	if err != nil {
		return nil, fmt.Errorf("mark paid: %w", err)
	}
	return reg, nil
}

// MarkFailed moves a pending registration to failed and records the provider's message.
// amount_paid and paid_at are left untouched.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, u FailedUpdate) (*models.Registration, error) {
	q := `UPDATE registrations
		SET payment_intent_id = COALESCE(NULLIF($2, ''), payment_intent_id),
			payment_status = 'failed',
			payment_error = $3,
			updated_at = NOW()
		WHERE id = $1 AND payment_status = ANY($4)
		RETURNING ` + columns
	reg, err := scan(r.db.QueryRow(ctx, q, id, u.PaymentIntentID, u.Error, sourceStates(models.PaymentStatusFailed)))
	if errors.Is(err, ErrNotFound) {
		return nil, r.explainMiss(ctx, id, models.PaymentStatusFailed)
	}
	if err != nil {
		return nil, fmt.Errorf("mark failed: %w", err)
	}
	return reg, nil
}

// explainMiss resolves why a guarded update matched no row.
func (r *Repository) explainMiss(ctx context.Context, id uuid.UUID, to models.PaymentStatus) error {
	var status string
	err := r.db.QueryRow(ctx, `SELECT payment_status FROM registrations WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load payment status: %w", err)
	}
	return Transition(models.PaymentStatus(status), to)
}

// InsertPaid inserts a registration that is already paid, keyed by its checkout session.
// A second insert for the same session returns the existing row with created == false.
func (r *Repository) InsertPaid(ctx context.Context, reg *models.Registration) (bool, error) {
	if reg.CheckoutSessionID == nil || *reg.CheckoutSessionID == "" {
		return false, errors.New("insert paid registration: checkout session id required")
	}
	const q = `INSERT INTO registrations
		(event_id, name, email, auth_user_id, checkout_session_id, payment_intent_id, payment_status, amount_paid, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'paid', $7, $8)
		ON CONFLICT (checkout_session_id) DO NOTHING
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(ctx, q, reg.EventID, reg.Name, reg.Email, reg.AuthUserID, *reg.CheckoutSessionID,
		reg.PaymentIntentID, reg.AmountPaid, reg.PaidAt).Scan(&reg.ID, &reg.CreatedAt, &reg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := r.GetByCheckoutSessionID(ctx, *reg.CheckoutSessionID)
		if err != nil {
			return false, fmt.Errorf("load existing registration: %w", err)
		}
		*reg = *existing
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert paid registration: %w", err)
	}
	reg.PaymentStatus = models.PaymentStatusPaid
	return true, nil
}

// SetEmailSent flips email_sent to true. changed is false when it was already set.
func (r *Repository) SetEmailSent(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `UPDATE registrations SET email_sent = TRUE, updated_at = NOW() WHERE id = $1 AND email_sent = FALSE`
	tag, err := r.db.Exec(ctx, q, id)
	if err != nil {
		return false, fmt.Errorf("set email sent: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM registrations WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check registration: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

// LinkByEmail attaches unlinked registrations with a matching email to an account.
func (r *Repository) LinkByEmail(ctx context.Context, userID uuid.UUID, email string) (int64, error) {
	const q = `UPDATE registrations SET auth_user_id = $1, updated_at = NOW()
		WHERE auth_user_id IS NULL AND LOWER(email) = LOWER($2)`
	tag, err := r.db.Exec(ctx, q, userID, email)
	if err != nil {
		return 0, fmt.Errorf("link registrations: %w", err)
	}
	return tag.RowsAffected(), nil
}
