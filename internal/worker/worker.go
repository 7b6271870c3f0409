package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ai-bootcamp/backend/internal/events"
	"github.com/ai-bootcamp/backend/internal/models"
	"github.com/ai-bootcamp/backend/internal/notifications"
	"github.com/ai-bootcamp/backend/internal/registrations"
	"github.com/ai-bootcamp/backend/pkg/queue"
)

// RegistrationLookup loads registrations.
type RegistrationLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
}

// EventLookup loads events.
type EventLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// Sender sends notification emails.
type Sender interface {
	SendRegistrationConfirmation(ctx context.Context, req notifications.ConfirmationRequest) notifications.Result
	SendPaymentReminder(ctx context.Context, req notifications.ReminderRequest) notifications.Result
}

// JobQueue is the email job queue consumed by Run.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// EmailProcessor processes email jobs: reload the registration, check it still needs the
// email, send through the dispatcher.
type EmailProcessor struct {
	regs    RegistrationLookup
	events  EventLookup
	sender  Sender
	queue   JobQueue
	backoff time.Duration
	logger  *zap.Logger
}

// NewEmailProcessor creates an email job processor.
func NewEmailProcessor(regs RegistrationLookup, evs EventLookup, sender Sender, q JobQueue, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailProcessor{
		regs:    regs,
		events:  evs,
		sender:  sender,
		queue:   q,
		backoff: queue.RetryBackoff,
		logger:  logger.Named("worker"),
	}
}

// Process executes one email job. A returned error makes the job retry.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	payload, err := job.EmailPayload()
	if err != nil {
		return err
	}
	log := p.logger.With(
		zap.String("job_id", job.ID),
		zap.String("email_type", payload.EmailType),
		zap.String("registration_id", payload.RegistrationID.String()),
	)

	reg, err := p.regs.GetByID(ctx, payload.RegistrationID)
	if errors.Is(err, registrations.ErrNotFound) {
		log.Warn("registration not found, dropping email job")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load registration: %w", err)
	}

	switch payload.EmailType {
	case models.EmailTypeRegistrationConfirmation:
		if !reg.IsPaid() {
			log.Info("registration not paid, skipping confirmation", zap.String("payment_status", string(reg.PaymentStatus)))
			return nil
		}
		if reg.EmailSent && !payload.Force {
			log.Debug("confirmation already sent")
			return nil
		}
		ev, err := p.event(ctx, reg.EventID)
		if err != nil {
			return err
		}
		return resultErr(p.sender.SendRegistrationConfirmation(ctx, notifications.NewConfirmationRequest(reg, ev)))
	case models.EmailTypePaymentReminder:
		if reg.IsPaid() {
			log.Info("registration already paid, skipping reminder")
			return nil
		}
		ev, err := p.event(ctx, reg.EventID)
		if err != nil {
			return err
		}
		req := notifications.ReminderRequest{
			RegistrationID: reg.ID,
			EventID:        reg.EventID,
			Name:           reg.Name,
			Email:          reg.Email,
		}
		if ev != nil {
			req.EventTitle = ev.Title
			req.EventDate = ev.StartsAt
		}
		return resultErr(p.sender.SendPaymentReminder(ctx, req))
	default:
		log.Warn("unknown email type, dropping job")
		return nil
	}
}

// event loads the registration's event. A missing event still lets the email go out.
func (p *EmailProcessor) event(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	ev, err := p.events.GetByID(ctx, id)
	if errors.Is(err, events.ErrNotFound) {
		p.logger.Warn("event not found for email", zap.String("event_id", id.String()))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	return ev, nil
}

func resultErr(r notifications.Result) error {
	if r.Success {
		return nil
	}
	if r.Error != "" {
		return fmt.Errorf("%s: %s", r.Message, r.Error)
	}
	return errors.New(r.Message)
}

// Run starts the worker loop: dequeue, process, retry on error. It returns when ctx is done.
func (p *EmailProcessor) Run(ctx context.Context) error {
	p.logger.Info("email worker started")
	for {
		if ctx.Err() != nil {
			p.logger.Info("email worker stopping")
			return nil
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.wait(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(context.WithoutCancel(ctx), job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.wait(ctx)
		}
	}
}

func (p *EmailProcessor) wait(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
