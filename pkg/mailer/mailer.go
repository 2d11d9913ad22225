package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/punch-attendance-api/pkg/config"
)

// Message is a single plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers messages. Implementations must be safe for concurrent use.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends mail through a plain SMTP relay.
type SMTPMailer struct {
	addr   string
	from   string
	auth   smtp.Auth
	send   sendFunc
	mu     sync.RWMutex
	closed bool
}

// NewSMTPMailer builds a mailer from configuration.
func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPMailer{
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		from: cfg.From,
		auth: auth,
		send: smtp.SendMail,
	}
}

// Send delivers msg. The context is only checked before dialing; net/smtp has no cancellation.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("mailer closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("mail recipient required")
	}
	if err := m.send(m.addr, m.auth, m.from, []string{msg.To}, m.render(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

// Close prevents further sends.
func (m *SMTPMailer) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *SMTPMailer) render(msg Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + m.from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(msg.Body)
	return []byte(b.String())
}

// LogMailer writes messages to the logger instead of sending them. Used when no relay is configured.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer constructs a LogMailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

// Send logs the message envelope.
func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.logger.Info("mail delivery skipped, no smtp relay configured",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}

// Close is a no-op.
func (m *LogMailer) Close() error { return nil }

// New picks the SMTP mailer when a relay host is configured.
func New(cfg config.MailConfig, logger *zap.Logger) Mailer {
	if cfg.Enabled() {
		return NewSMTPMailer(cfg)
	}
	return NewLogMailer(logger)
}
