package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindByEmail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	now := time.Now()
	mock.ExpectQuery(`FROM accounts WHERE LOWER\(email\) = LOWER\(\$1\)`).
		WithArgs("ada@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "full_name", "role", "created_at"}).
			AddRow(id, "Ada@example.com", "Ada", "user", now))

	repo := NewAccountRepository(mock)
	a, err := repo.FindByEmail(context.Background(), "  ada@example.com ")
	require.NoError(t, err)
	assert.Equal(t, id, a.ID)
	assert.Equal(t, "Ada", a.FullName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByEmailNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM accounts`).WithArgs("nobody@example.com").WillReturnError(pgx.ErrNoRows)

	_, err = NewAccountRepository(mock).FindByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
