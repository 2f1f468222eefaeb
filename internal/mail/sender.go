// mail отвечает за письма со ссылками подтверждения и сброса пароля:
// рендеринг шаблонов, отправку через SMTP и фоновую очередь отправки.
package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"

	gomail "github.com/go-mail/mail"

	"github.com/pribylovaa/auth-core/internal/pkg/redact"
)

//go:generate mockgen -source=sender.go -destination=../../mocks/mail.go -package=mocks

// Message — готовое к отправке письмо.
type Message struct {
	Kind    Kind
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender отправляет письмо.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig — параметры SMTP-отправителя.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLSMode  string // "auto" | "starttls" | "ssl" | "none"
}

// SMTPSender отправляет письма через SMTP.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender создаёт SMTP-отправителя.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.TLSMode == "" {
		cfg.TLSMode = "auto"
	}

	return &SMTPSender{cfg: cfg}
}

// Send отправляет письмо multipart/alternative (text + html).
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	const op = "mail.SMTPSender.Send"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.cfg.From, s.cfg.FromName)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)

	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		m.SetBody("text/html", msg.HTML)
	default:
		m.SetBody("text/plain", msg.Text)
	}

	d := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: s.cfg.Host}

	switch s.cfg.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.StartTLSPolicy = gomail.NoStartTLS
	case "starttls":
		d.StartTLSPolicy = gomail.MandatoryStartTLS
	}

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// LogSender только пишет письма в лог. Для локального окружения.
type LogSender struct {
	log *slog.Logger
}

// NewLogSender создаёт LogSender.
func NewLogSender(log *slog.Logger) *LogSender {
	if log == nil {
		log = slog.Default()
	}

	return &LogSender{log: log}
}

// Send пишет письмо в лог на уровне Info; тело — только на Debug.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.log.LogAttrs(ctx, slog.LevelInfo, "mail_logged",
		slog.String("kind", string(msg.Kind)),
		slog.String("to", redact.Email(msg.To)),
		slog.String("subject", msg.Subject),
	)
	s.log.LogAttrs(ctx, slog.LevelDebug, "mail_body", slog.String("text", msg.Text))

	return nil
}
