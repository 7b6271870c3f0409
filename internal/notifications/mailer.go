package notifications

import (
	"context"
	"fmt"
	"mime"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Message is a single HTML email.
type Message struct {
	To      []string
	Subject string
	HTML    string
}

// Mailer delivers messages and returns the provider message id.
type Mailer interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// SMTPConfig holds SMTP relay settings.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends mail through an SMTP relay. The Message-ID it generates is
// returned as the provider message id.
type SMTPMailer struct {
	cfg  SMTPConfig
	send sendFunc
	now  func() time.Time
}

// NewSMTPMailer creates an SMTP mailer.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail, now: time.Now}
}

// Send delivers msg.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) (string, error) {
	if len(msg.To) == 0 {
		return "", fmt.Errorf("send mail: no recipients")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), m.domain())
	raw := m.build(msg, messageID)

	var a smtp.Auth
	if m.cfg.Username != "" {
		a = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	if err := m.send(addr, a, m.cfg.FromAddress, msg.To, raw); err != nil {
		return "", fmt.Errorf("send mail: %w", err)
	}
	return messageID, nil
}

func (m *SMTPMailer) domain() string {
	if i := strings.LastIndex(m.cfg.FromAddress, "@"); i >= 0 && i < len(m.cfg.FromAddress)-1 {
		return m.cfg.FromAddress[i+1:]
	}
	return "localhost"
}

func (m *SMTPMailer) build(msg Message, messageID string) []byte {
	from := mail.Address{Name: m.cfg.FromName, Address: m.cfg.FromAddress}
	var b strings.Builder
	header := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}
	header("From", from.String())
	header("To", strings.Join(msg.To, ", "))
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", m.now().Format(time.RFC1123Z))
	header("Message-ID", messageID)
	header("MIME-Version", "1.0")
	header("Content-Type", `text/html; charset="UTF-8"`)
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}

// NoopMailer logs messages instead of sending them. Used when SMTP is not configured.
type NoopMailer struct {
	logger *zap.Logger
}

// NewNoopMailer creates a mailer that only logs.
func NewNoopMailer(logger *zap.Logger) *NoopMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NoopMailer{logger: logger}
}

// Send logs msg and returns a synthetic message id.
func (m *NoopMailer) Send(_ context.Context, msg Message) (string, error) {
	id := "noop-" + uuid.NewString()
	m.logger.Info("email not sent, SMTP disabled",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("message_id", id),
	)
	return id, nil
}
