package queue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobRoundTripsEmailPayload(t *testing.T) {
	payload := EmailPayload{
		EmailType:      "registration_confirmation",
		EventID:        uuid.New(),
		RegistrationID: uuid.New(),
		RecipientEmail: "ada@example.com",
	}
	job, err := NewJob(JobTypeEmail, payload)
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Zero(t, job.Attempt)

	got, err := job.EmailPayload()
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestEmailPayloadRejectsOtherJobTypes(t *testing.T) {
	job := &Job{ID: "j1", Type: JobType("analytics"), Payload: []byte(`{}`)}
	_, err := job.EmailPayload()
	require.Error(t, err)
}

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewQueue(client, nil), mr
}

func TestEnqueueDequeue(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	payload := EmailPayload{EmailType: "payment_reminder", RegistrationID: uuid.New(), RecipientEmail: "ada@example.com"}

	require.NoError(t, q.EnqueueEmail(ctx, payload))
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, JobTypeEmail, job.Type)

	got, err := job.EmailPayload()
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDequeueSkipsInvalidPayload(t *testing.T) {
	q, mr := newTestQueue(t)
	_, err := mr.Push(QueueEmails, "not json")
	require.NoError(t, err)

	job, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestRetryMovesToDLQ(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()
	job, err := NewJob(JobTypeEmail, EmailPayload{EmailType: "registration_confirmation"})
	require.NoError(t, err)

	for i := 1; i < MaxRetries; i++ {
		require.NoError(t, q.Retry(ctx, job))
		assert.Equal(t, i, job.Attempt)
		list, err := mr.List(QueueEmails)
		require.NoError(t, err)
		require.Len(t, list, 1)
		_, err = mr.Lpop(QueueEmails)
		require.NoError(t, err)
	}

	require.NoError(t, q.Retry(ctx, job))
	dlq, err := mr.List(QueueDLQ)
	require.NoError(t, err)
	require.Len(t, dlq, 1)
	var dead Job
	require.NoError(t, json.Unmarshal([]byte(dlq[0]), &dead))
	assert.Equal(t, job.ID, dead.ID)
	assert.Equal(t, MaxRetries, dead.Attempt)
	assert.False(t, mr.Exists(QueueEmails))
}
