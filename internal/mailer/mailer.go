package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"cashback-service/internal/config"
	"cashback-service/internal/util"
)

var ErrSendFailed = errors.New("mailer: send failed")

type Mailer interface {
	// Send delivers an HTML message and returns its Message-ID.
	Send(ctx context.Context, to, subject, htmlBody string) (string, error)
}

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
	domain string
}

func NewSMTPMailer(cfg *config.Config) *SMTPMailer {
	d := gomail.NewDialer(cfg.Mail.Host, cfg.Mail.Port, cfg.Mail.Username, cfg.Mail.Password)
	d.TLSConfig = &tls.Config{ServerName: cfg.Mail.Host, MinVersion: tls.VersionTLS12}
	d.SSL = cfg.Mail.Port == 465

	domain := "localhost"
	if at := strings.LastIndex(cfg.Mail.From, "@"); at >= 0 {
		domain = strings.TrimSuffix(cfg.Mail.From[at+1:], ">")
	}
	return &SMTPMailer{dialer: d, from: cfg.Mail.From, domain: domain}
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) (string, error) {
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), m.domain)

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetHeader("Message-ID", messageID)
	msg.SetBody("text/html", htmlBody)

	// gomail has no context support; the dial runs in the background and
	// the caller stops waiting when ctx is done.
	done := make(chan error, 1)
	go func() { done <- m.dialer.DialAndSend(msg) }()

	select {
	case err := <-done:
		if err != nil {
			util.Error("smtp send failed", zap.String("subject", subject), zap.Error(err))
			return "", fmt.Errorf("%w: %v", ErrSendFailed, err)
		}
		util.Debug("email sent", zap.String("message_id", messageID))
		return messageID, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrSendFailed, ctx.Err())
	}
}

// LogMailer writes messages to the log instead of sending them. Used in
// development when SMTP_HOST is empty.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, to, subject, htmlBody string) (string, error) {
	id := "<" + uuid.NewString() + "@localhost>"
	util.Info("email (not sent)",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("body", htmlBody),
		zap.String("message_id", id))
	return id, nil
}
