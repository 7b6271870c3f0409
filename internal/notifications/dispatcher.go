package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ai-bootcamp/backend/internal/metrics"
	"github.com/ai-bootcamp/backend/internal/models"
)

// RegistrationMarker records that the confirmation email went out.
type RegistrationMarker interface {
	SetEmailSent(ctx context.Context, id uuid.UUID) (bool, error)
}

// EmailLogWriter stores the audit trail of send attempts.
type EmailLogWriter interface {
	Create(ctx context.Context, l *models.EmailLog) error
}

// Config holds dispatcher settings.
type Config struct {
	AdminEmail string // receives a copy of every confirmation; empty disables
	BaseURL    string
}

// ConfirmationRequest describes a registration confirmation email.
type ConfirmationRequest struct {
	RegistrationID uuid.UUID
	EventID        uuid.UUID
	EventTitle     string
	EventDate      time.Time
	Name           string
	Email          string
	MeetingLink    string
}

// NewConfirmationRequest builds a confirmation request from a registration and its event.
func NewConfirmationRequest(reg *models.Registration, ev *models.Event) ConfirmationRequest {
	req := ConfirmationRequest{
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		Name:           reg.Name,
		Email:          reg.Email,
	}
	if ev != nil {
		req.EventTitle = ev.Title
		req.EventDate = ev.StartsAt
		if ev.MeetingLink != nil {
			req.MeetingLink = *ev.MeetingLink
		}
	}
	return req
}

// ReminderRequest describes a payment reminder for a pending registration.
type ReminderRequest struct {
	RegistrationID uuid.UUID
	EventID        uuid.UUID
	EventTitle     string
	EventDate      time.Time
	Name           string
	Email          string
	CheckoutURL    string
}

// Result is the outcome of a send.
type Result struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

func failure(msg string, err error) Result {
	return Result{Success: false, Message: msg, Error: err.Error()}
}

// Dispatcher renders and sends notification emails and keeps the audit trail.
type Dispatcher struct {
	mailer  Mailer
	store   RegistrationMarker
	logs    EmailLogWriter
	metrics *metrics.Metrics
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
}

// NewDispatcher creates a dispatcher. logs and m may be nil.
func NewDispatcher(mailer Mailer, store RegistrationMarker, logs EmailLogWriter, m *metrics.Metrics, cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		mailer:  mailer,
		store:   store,
		logs:    logs,
		metrics: m,
		cfg:     cfg,
		logger:  logger.Named("notifications"),
		now:     time.Now,
	}
}

// SendRegistrationConfirmation emails the attendee and marks the registration's email as sent.
// The flag is only set after the mailer accepted the message, so a failure at any point leaves
// the registration eligible for another attempt. The admin copy is best effort.
func (d *Dispatcher) SendRegistrationConfirmation(ctx context.Context, req ConfirmationRequest) Result {
	log := d.logger.With(
		zap.String("registration_id", req.RegistrationID.String()),
		zap.String("event_id", req.EventID.String()),
	)
	if strings.TrimSpace(req.Email) == "" {
		return failure("confirmation email not sent", errors.New("recipient email required"))
	}
	data := templateData{
		RegistrationID: req.RegistrationID.String(),
		Name:           displayName(req.Name, req.Email),
		Email:          req.Email,
		EventTitle:     req.EventTitle,
		EventDate:      formatEventDate(req.EventDate),
		MeetingLink:    req.MeetingLink,
	}
	if d.cfg.BaseURL != "" {
		data.DashboardURL = d.cfg.BaseURL + "/dashboard"
	}
	body, err := render(confirmationTmpl, data)
	if err != nil {
		return failure("confirmation email not sent", err)
	}
	subject := fmt.Sprintf("You're registered: %s", req.EventTitle)

	messageID, err := d.mailer.Send(ctx, Message{To: []string{req.Email}, Subject: subject, HTML: body})
	if err != nil {
		log.Error("send confirmation failed", zap.Error(err))
		d.metrics.Email(models.EmailTypeRegistrationConfirmation, metrics.OutcomeFailed)
		d.record(ctx, req.EventID, req.RegistrationID, models.EmailTypeRegistrationConfirmation, req.Email, subject, "", err)
		return failure("failed to send confirmation email", err)
	}
	d.metrics.Email(models.EmailTypeRegistrationConfirmation, metrics.OutcomeSent)
	d.record(ctx, req.EventID, req.RegistrationID, models.EmailTypeRegistrationConfirmation, req.Email, subject, messageID, nil)

	changed, err := d.store.SetEmailSent(ctx, req.RegistrationID)
	if err != nil {
		log.Error("mark email sent failed", zap.Error(err), zap.String("message_id", messageID))
		return Result{
			Success:   false,
			Message:   "confirmation sent but registration not updated",
			MessageID: messageID,
			Error:     err.Error(),
		}
	}
	if !changed {
		log.Info("confirmation resent, email already marked as sent")
	}

	d.sendAdminCopy(ctx, req, data)

	log.Info("confirmation email sent", zap.String("message_id", messageID))
	return Result{Success: true, Message: "confirmation email sent", MessageID: messageID}
}

func (d *Dispatcher) sendAdminCopy(ctx context.Context, req ConfirmationRequest, data templateData) {
	if d.cfg.AdminEmail == "" {
		return
	}
	subject := fmt.Sprintf("New registration: %s - %s", req.EventTitle, data.Name)
	body, err := render(adminTmpl, data)
	if err == nil {
		var messageID string
		messageID, err = d.mailer.Send(ctx, Message{To: []string{d.cfg.AdminEmail}, Subject: subject, HTML: body})
		if err == nil {
			d.metrics.Email(models.EmailTypeAdminNotification, metrics.OutcomeSent)
			d.record(ctx, req.EventID, req.RegistrationID, models.EmailTypeAdminNotification, d.cfg.AdminEmail, subject, messageID, nil)
			return
		}
	}
	d.logger.Warn("admin copy failed", zap.Error(err), zap.String("registration_id", req.RegistrationID.String()))
	d.metrics.Email(models.EmailTypeAdminNotification, metrics.OutcomeFailed)
	d.record(ctx, req.EventID, req.RegistrationID, models.EmailTypeAdminNotification, d.cfg.AdminEmail, subject, "", err)
}

// SendPaymentReminder emails a pending registrant a link back to checkout.
func (d *Dispatcher) SendPaymentReminder(ctx context.Context, req ReminderRequest) Result {
	if strings.TrimSpace(req.Email) == "" {
		return failure("reminder not sent", errors.New("recipient email required"))
	}
	checkoutURL := req.CheckoutURL
	if checkoutURL == "" && d.cfg.BaseURL != "" {
		checkoutURL = fmt.Sprintf("%s/register?event=%s&registration=%s", d.cfg.BaseURL, req.EventID, req.RegistrationID)
	}
	body, err := render(reminderTmpl, templateData{
		RegistrationID: req.RegistrationID.String(),
		Name:           displayName(req.Name, req.Email),
		Email:          req.Email,
		EventTitle:     req.EventTitle,
		EventDate:      formatEventDate(req.EventDate),
		CheckoutURL:    checkoutURL,
	})
	if err != nil {
		return failure("reminder not sent", err)
	}
	subject := fmt.Sprintf("Complete your registration for %s", req.EventTitle)
	messageID, err := d.mailer.Send(ctx, Message{To: []string{req.Email}, Subject: subject, HTML: body})
	d.record(ctx, req.EventID, req.RegistrationID, models.EmailTypePaymentReminder, req.Email, subject, messageID, err)
	if err != nil {
		d.logger.Error("send reminder failed", zap.Error(err), zap.String("registration_id", req.RegistrationID.String()))
		d.metrics.Email(models.EmailTypePaymentReminder, metrics.OutcomeFailed)
		return failure("failed to send reminder", err)
	}
	d.metrics.Email(models.EmailTypePaymentReminder, metrics.OutcomeSent)
	return Result{Success: true, Message: "reminder sent", MessageID: messageID}
}

// record writes an email log row. Failures are logged and otherwise ignored.
func (d *Dispatcher) record(ctx context.Context, eventID, registrationID uuid.UUID, emailType, to, subject, messageID string, sendErr error) {
	if d.logs == nil {
		return
	}
	entry := &models.EmailLog{
		EmailType:         emailType,
		RecipientEmail:    to,
		Subject:           subject,
		ProviderMessageID: messageID,
	}
	if eventID != uuid.Nil {
		entry.EventID = &eventID
	}
	if registrationID != uuid.Nil {
		entry.RegistrationID = &registrationID
	}
	if sendErr != nil {
		entry.Status = models.EmailLogStatusFailed
		entry.ErrorMessage = sendErr.Error()
	} else {
		now := d.now()
		entry.Status = models.EmailLogStatusSent
		entry.SentAt = &now
	}
	if err := d.logs.Create(ctx, entry); err != nil {
		d.logger.Warn("write email log failed", zap.Error(err), zap.String("email_type", emailType))
	}
}

func displayName(name, email string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	if i := strings.Index(email, "@"); i > 0 {
		return email[:i]
	}
	return "there"
}
