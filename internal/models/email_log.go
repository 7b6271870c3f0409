package models

import (
	"time"

	"github.com/google/uuid"
)

// EmailType identifies a notification template.
const (
	EmailTypeRegistrationConfirmation = "registration_confirmation"
	EmailTypePaymentReminder          = "payment_reminder"
	EmailTypeAdminNotification        = "admin_notification"
)

// EmailLogStatus for delivery.
const (
	EmailLogStatusSent   = "sent"
	EmailLogStatusFailed = "failed"
)

// EmailLog records every notification send attempt for auditability.
type EmailLog struct {
	ID                uuid.UUID  `json:"id"`
	EventID           *uuid.UUID `json:"event_id,omitempty"`
	RegistrationID    *uuid.UUID `json:"registration_id,omitempty"`
	EmailType         string     `json:"email_type"`
	RecipientEmail    string     `json:"recipient_email"`
	Subject           string     `json:"subject,omitempty"`
	Status            string     `json:"status"`
	ProviderMessageID string     `json:"provider_message_id,omitempty"`
	SentAt            *time.Time `json:"sent_at,omitempty"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}
