package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"coldwatch-data/internal/config"
)

// Message is one outbound notification. Body is plain text.
type Message struct {
	Recipients []string
	Subject    string
	Body       string
}

// Sender delivers notifications. The SMTP implementation is the only real
// one; services depend on the interface so tests can capture messages.
type Sender interface {
	Send(msg *Message) error
}

type SMTPSender struct {
	cfg    *config.SMTPConfig
	logger *zap.Logger
}

func NewSMTPSender(cfg *config.SMTPConfig, logger *zap.Logger) *SMTPSender {
	return &SMTPSender{cfg: cfg, logger: logger}
}

func (s *SMTPSender) Send(msg *Message) error {
	if len(msg.Recipients) == 0 {
		return fmt.Errorf("no recipients")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.Recipients, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	if err := smtp.SendMail(s.cfg.Addr(), auth, s.cfg.From, msg.Recipients, []byte(b.String())); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}

	s.logger.Info("Notification sent",
		zap.Int("recipients", len(msg.Recipients)),
		zap.String("subject", msg.Subject),
	)
	return nil
}
