package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-bootcamp/backend/internal/events"
	"github.com/ai-bootcamp/backend/internal/models"
	"github.com/ai-bootcamp/backend/internal/notifications"
	"github.com/ai-bootcamp/backend/internal/registrations/regtest"
	"github.com/ai-bootcamp/backend/pkg/queue"
)

type eventMap map[uuid.UUID]*models.Event

func (m eventMap) GetByID(_ context.Context, id uuid.UUID) (*models.Event, error) {
	if ev, ok := m[id]; ok {
		return ev, nil
	}
	return nil, events.ErrNotFound
}

type fakeSender struct {
	mu            sync.Mutex
	confirmations []notifications.ConfirmationRequest
	reminders     []notifications.ReminderRequest
	result        notifications.Result
}

func (s *fakeSender) SendRegistrationConfirmation(_ context.Context, req notifications.ConfirmationRequest) notifications.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmations = append(s.confirmations, req)
	return s.result
}

func (s *fakeSender) SendPaymentReminder(_ context.Context, req notifications.ReminderRequest) notifications.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminders = append(s.reminders, req)
	return s.result
}

func (s *fakeSender) sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.confirmations) + len(s.reminders)
}

func job(t *testing.T, p queue.EmailPayload) *queue.Job {
	t.Helper()
	j, err := queue.NewJob(queue.JobTypeEmail, p)
	require.NoError(t, err)
	return j
}

type fixture struct {
	store  *regtest.Store
	event  *models.Event
	sender *fakeSender
	p      *EmailProcessor
}

func newFixture() *fixture {
	link := "https://meet.example.com/bootcamp"
	ev := &models.Event{ID: uuid.New(), Title: "AI Bootcamp", StartsAt: time.Date(2026, 5, 1, 17, 0, 0, 0, time.UTC), MeetingLink: &link}
	store := regtest.New()
	sender := &fakeSender{result: notifications.Result{Success: true, Message: "sent"}}
	return &fixture{
		store:  store,
		event:  ev,
		sender: sender,
		p:      NewEmailProcessor(store, eventMap{ev.ID: ev}, sender, nil, nil),
	}
}

func (f *fixture) registration(status models.PaymentStatus, emailSent bool) *models.Registration {
	return f.store.Put(&models.Registration{
		EventID: f.event.ID, Name: "Ada", Email: "ada@example.com", PaymentStatus: status, EmailSent: emailSent,
	})
}

func TestProcessConfirmation(t *testing.T) {
	f := newFixture()
	reg := f.registration(models.PaymentStatusPaid, false)

	err := f.p.Process(context.Background(), job(t, queue.EmailPayload{
		EmailType: models.EmailTypeRegistrationConfirmation, RegistrationID: reg.ID, EventID: reg.EventID,
	}))
	require.NoError(t, err)
	require.Len(t, f.sender.confirmations, 1)
	req := f.sender.confirmations[0]
	assert.Equal(t, reg.ID, req.RegistrationID)
	assert.Equal(t, "AI Bootcamp", req.EventTitle)
	assert.Equal(t, "https://meet.example.com/bootcamp", req.MeetingLink)
}

func TestProcessConfirmationSkips(t *testing.T) {
	f := newFixture()
	sent := f.registration(models.PaymentStatusPaid, true)
	unpaid := f.registration(models.PaymentStatusPending, false)

	for _, id := range []uuid.UUID{sent.ID, unpaid.ID, uuid.New()} {
		err := f.p.Process(context.Background(), job(t, queue.EmailPayload{
			EmailType: models.EmailTypeRegistrationConfirmation, RegistrationID: id,
		}))
		require.NoError(t, err)
	}
	assert.Zero(t, f.sender.sent())

	// Forced resends go out even when the flag is set.
	err := f.p.Process(context.Background(), job(t, queue.EmailPayload{
		EmailType: models.EmailTypeRegistrationConfirmation, RegistrationID: sent.ID, Force: true,
	}))
	require.NoError(t, err)
	assert.Len(t, f.sender.confirmations, 1)
}

func TestProcessReminder(t *testing.T) {
	f := newFixture()
	failed := f.registration(models.PaymentStatusFailed, false)
	paid := f.registration(models.PaymentStatusPaid, false)

	for _, id := range []uuid.UUID{failed.ID, paid.ID} {
		err := f.p.Process(context.Background(), job(t, queue.EmailPayload{
			EmailType: models.EmailTypePaymentReminder, RegistrationID: id,
		}))
		require.NoError(t, err)
	}
	require.Len(t, f.sender.reminders, 1)
	assert.Equal(t, failed.ID, f.sender.reminders[0].RegistrationID)
	assert.Equal(t, "AI Bootcamp", f.sender.reminders[0].EventTitle)
}

func TestProcessFailures(t *testing.T) {
	f := newFixture()
	reg := f.registration(models.PaymentStatusPaid, false)
	confirm := queue.EmailPayload{EmailType: models.EmailTypeRegistrationConfirmation, RegistrationID: reg.ID}

	f.sender.result = notifications.Result{Success: false, Message: "failed to send confirmation", Error: "smtp: 421"}
	err := f.p.Process(context.Background(), job(t, confirm))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp: 421")

	f.store.FailNext("GetByID", errors.New("connection refused"))
	assert.Error(t, f.p.Process(context.Background(), job(t, confirm)))

	wrongType := &queue.Job{ID: "j", Type: queue.JobType("analytics"), Payload: []byte(`{}`)}
	assert.Error(t, f.p.Process(context.Background(), wrongType))

	f.sender.result = notifications.Result{Success: true}
	unknown := queue.EmailPayload{EmailType: "newsletter", RegistrationID: reg.ID}
	assert.NoError(t, f.p.Process(context.Background(), job(t, unknown)))
}

type chanQueue struct {
	jobs    chan *queue.Job
	mu      sync.Mutex
	retried []*queue.Job
}

func (q *chanQueue) Dequeue(ctx context.Context) (*queue.Job, error) {
	select {
	case j := <-q.jobs:
		return j, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return nil, nil
	}
}

func (q *chanQueue) Retry(_ context.Context, j *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j.Attempt++
	q.retried = append(q.retried, j)
	return nil
}

func (q *chanQueue) retries() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.retried)
}

func TestRun(t *testing.T) {
	f := newFixture()
	ok := f.registration(models.PaymentStatusPaid, false)
	q := &chanQueue{jobs: make(chan *queue.Job, 2)}
	f.p.queue = q
	f.p.backoff = time.Millisecond

	q.jobs <- job(t, queue.EmailPayload{EmailType: models.EmailTypeRegistrationConfirmation, RegistrationID: ok.ID})
	f.store.FailNext("GetByID", errors.New("boom"))
	failing := job(t, queue.EmailPayload{EmailType: models.EmailTypeRegistrationConfirmation, RegistrationID: ok.ID})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.p.Run(ctx) }()

	// The first job consumes the injected failure and is retried; the second succeeds.
	q.jobs <- failing
	assert.Eventually(t, func() bool { return q.retries() == 1 && f.sender.sent() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
