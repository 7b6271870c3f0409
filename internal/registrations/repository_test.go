package registrations

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-bootcamp/backend/internal/models"
)

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *Repository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewRepository(mock)
}

func TestMarkPaidExplainsMiss(t *testing.T) {
	cases := []struct {
		name    string
		current string
		want    error
	}{
		{"already paid", "paid", ErrAlreadyApplied},
		{"missing", "", ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mock, repo := newMock(t)
			id := uuid.New()
			mock.ExpectQuery(`UPDATE registrations`).
				WithArgs(id, "cs_1", "pi_1", 49.0, pgxmock.AnyArg(), []string{"pending", "failed"}).
				WillReturnError(pgx.ErrNoRows)
			status := mock.ExpectQuery(`SELECT payment_status FROM registrations WHERE id = \$1`).WithArgs(id)
			if tc.current == "" {
				status.WillReturnError(pgx.ErrNoRows)
			} else {
				status.WillReturnRows(pgxmock.NewRows([]string{"payment_status"}).AddRow(tc.current))
			}

			_, err := repo.MarkPaid(context.Background(), id, PaidUpdate{
				CheckoutSessionID: "cs_1", PaymentIntentID: "pi_1", AmountPaid: 49, PaidAt: time.Now(),
			})
			assert.ErrorIs(t, err, tc.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestMarkFailedOnPaidIsInvalid(t *testing.T) {
	mock, repo := newMock(t)
	id := uuid.New()
	mock.ExpectQuery(`UPDATE registrations`).
		WithArgs(id, "pi_1", "card declined", []string{"pending"}).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT payment_status`).WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"payment_status"}).AddRow("paid"))

	_, err := repo.MarkFailed(context.Background(), id, FailedUpdate{PaymentIntentID: "pi_1", Error: "card declined"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertPaidCreates(t *testing.T) {
	mock, repo := newMock(t)
	id := uuid.New()
	now := time.Now()
	mock.ExpectQuery(`ON CONFLICT \(checkout_session_id\) DO NOTHING`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "cs_9",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(id, now, now))

	sid, pi, amount := "cs_9", "pi_9", 49.0
	reg := &models.Registration{
		EventID:           uuid.New(),
		Email:             "ada@example.com",
		CheckoutSessionID: &sid,
		PaymentIntentID:   &pi,
		AmountPaid:        &amount,
		PaidAt:            &now,
	}
	created, err := repo.InsertPaid(context.Background(), reg)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, id, reg.ID)
	assert.Equal(t, models.PaymentStatusPaid, reg.PaymentStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertPaidRequiresSession(t *testing.T) {
	_, repo := newMock(t)
	_, err := repo.InsertPaid(context.Background(), &models.Registration{})
	assert.Error(t, err)
}

func TestSetEmailSent(t *testing.T) {
	t.Run("first time", func(t *testing.T) {
		mock, repo := newMock(t)
		id := uuid.New()
		mock.ExpectExec(`UPDATE registrations SET email_sent = TRUE`).WithArgs(id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		changed, err := repo.SetEmailSent(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("already sent", func(t *testing.T) {
		mock, repo := newMock(t)
		id := uuid.New()
		mock.ExpectExec(`UPDATE registrations SET email_sent = TRUE`).WithArgs(id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`SELECT EXISTS`).WithArgs(id).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		changed, err := repo.SetEmailSent(context.Background(), id)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("missing", func(t *testing.T) {
		mock, repo := newMock(t)
		id := uuid.New()
		mock.ExpectExec(`UPDATE registrations SET email_sent = TRUE`).WithArgs(id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`SELECT EXISTS`).WithArgs(id).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := repo.SetEmailSent(context.Background(), id)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSetCheckoutSessionNotFound(t *testing.T) {
	mock, repo := newMock(t)
	id := uuid.New()
	mock.ExpectExec(`UPDATE registrations SET checkout_session_id`).WithArgs(id, "cs_1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.SetCheckoutSession(context.Background(), id, "cs_1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkByEmail(t *testing.T) {
	mock, repo := newMock(t)
	userID := uuid.New()
	mock.ExpectExec(`SET auth_user_id = \$1`).WithArgs(userID, "ada@example.com").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := repo.LinkByEmail(context.Background(), userID, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
