package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"storeadmin/internal/config"
)

var ErrNotConfigured = errors.New("email is not configured")

const (
	sendAttempts = 3
	sendBackoff  = 200 * time.Millisecond
)

type Sender struct {
	cfg      config.EmailConfig
	backoff  func() retry.Backoff
	transmit func(ctx context.Context, to string, msg []byte) error
}

func NewSender(cfg config.EmailConfig) *Sender {
	s := &Sender{cfg: cfg}
	s.backoff = func() retry.Backoff {
		return retry.WithMaxRetries(sendAttempts-1, retry.NewExponential(sendBackoff))
	}
	s.transmit = s.smtpSend
	return s
}

// Send delivers one HTML message, retrying transport failures with bounded
// backoff. The same message is resent on retry, so a duplicate is possible
// when the server accepted it but the reply was lost.
func (s *Sender) Send(ctx context.Context, to, subject, text, html string) error {
	if !s.cfg.Enabled() {
		return ErrNotConfigured
	}

	msg := s.buildMessage(to, subject, text, html)
	return retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		if err := s.transmit(ctx, to, msg); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (s *Sender) buildMessage(to, subject, text, html string) []byte {
	body := html
	contentType := "text/html; charset=\"UTF-8\""
	if strings.TrimSpace(body) == "" {
		body = text
		contentType = "text/plain; charset=\"UTF-8\""
	}

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", s.cfg.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString(fmt.Sprintf("Content-Type: %s\r\n\r\n", contentType))
	msg.WriteString(body)
	return []byte(msg.String())
}

func (s *Sender) smtpSend(_ context.Context, to string, msg []byte) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	if !s.cfg.Secure {
		var auth smtp.Auth
		if s.cfg.Username != "" {
			auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		}
		return smtp.SendMail(addr, auth, s.cfg.From, []string{to}, msg)
	}

	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.cfg.Host})
	if err != nil {
		return err
	}
	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer client.Close()

	if s.cfg.Username != "" {
		if err := client.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
			return err
		}
	}
	if err := client.Mail(s.cfg.From); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}
