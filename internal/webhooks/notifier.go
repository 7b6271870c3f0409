package webhooks

import (
	"context"

	"github.com/ai-bootcamp/backend/internal/models"
	"github.com/ai-bootcamp/backend/pkg/queue"
)

// Notifier is told about registrations that just became paid.
type Notifier interface {
	Notify(ctx context.Context, reg *models.Registration) error
}

// Enqueuer queues email jobs.
type Enqueuer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// QueueNotifier queues a confirmation email job for the worker.
type QueueNotifier struct {
	jobs Enqueuer
}

// NewQueueNotifier creates a notifier backed by the email job queue.
func NewQueueNotifier(jobs Enqueuer) *QueueNotifier {
	return &QueueNotifier{jobs: jobs}
}

func (n *QueueNotifier) Notify(ctx context.Context, reg *models.Registration) error {
	return n.jobs.EnqueueEmail(ctx, queue.EmailPayload{
		EmailType:      models.EmailTypeRegistrationConfirmation,
		EventID:        reg.EventID,
		RegistrationID: reg.ID,
		RecipientEmail: reg.Email,
	})
}
