package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ai-bootcamp/backend/internal/models"
	"github.com/ai-bootcamp/backend/pkg/database"
)

// ErrAccountNotFound is returned when no account matches.
var ErrAccountNotFound = errors.New("account not found")

// AccountRepository reads the accounts table, a mirror of the provider's users.
type AccountRepository struct {
	db database.Querier
}

// NewAccountRepository creates an accounts repository.
func NewAccountRepository(db database.Querier) *AccountRepository {
	return &AccountRepository{db: db}
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	if err := row.Scan(&a.ID, &a.Email, &a.FullName, &a.Role, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

// GetByID returns an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	const q = `SELECT id, email, full_name, role, created_at FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRow(ctx, q, id))
}

// FindByEmail returns the account registered with email, matched case-insensitively.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	const q = `SELECT id, email, full_name, role, created_at FROM accounts WHERE LOWER(email) = LOWER($1)`
	return scanAccount(r.db.QueryRow(ctx, q, strings.TrimSpace(email)))
}

// Upsert mirrors an authenticated identity into accounts. An existing full name is kept.
func (r *AccountRepository) Upsert(ctx context.Context, id *Identity, fullName string) (*models.Account, error) {
	const q = `INSERT INTO accounts (id, email, full_name, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			full_name = CASE WHEN EXCLUDED.full_name = '' THEN accounts.full_name ELSE EXCLUDED.full_name END,
			role = EXCLUDED.role
		RETURNING id, email, full_name, role, created_at`
	return scanAccount(r.db.QueryRow(ctx, q, id.UserID, id.Email, fullName, id.Role))
}
