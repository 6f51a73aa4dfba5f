// Package mailer sends the session digest over SMTP.
package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

// DefaultSubject is used when no subject template is configured.
const DefaultSubject = "{startDate} - {startTime}"

// Attachment is one file attached to a message.
type Attachment struct {
	Filename    string
	Content     []byte
	ContentType string
}

// Message is a digest email.
type Message struct {
	From        string
	To          []string
	Cc          []string
	Subject     string
	HTMLBody    string
	TextBody    string
	Attachments []Attachment
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// NopMailer discards every message.
type NopMailer struct{}

// Send implements Mailer.
func (NopMailer) Send(ctx context.Context, msg *Message) error { return nil }

// SMTPConfig configures an SMTPMailer.
type SMTPConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	InsecureSkipVerify bool
}

// SMTPMailer sends messages through an SMTP relay.
type SMTPMailer struct {
	dialer *gomail.Dialer
}

// NewSMTPMailer returns a mailer for cfg. No connection is made until Send.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.InsecureSkipVerify {
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true, ServerName: cfg.Host}
	}
	return &SMTPMailer{dialer: d}, nil
}

// Send implements Mailer. gomail has no context support, so cancellation
// abandons the in-flight dial rather than interrupting it.
func (m *SMTPMailer) Send(ctx context.Context, msg *Message) error {
	gm, err := buildMessage(msg)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- m.dialer.DialAndSend(gm) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send mail: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func buildMessage(msg *Message) (*gomail.Message, error) {
	if msg == nil {
		return nil, errors.New("message is nil")
	}
	if len(msg.To) == 0 {
		return nil, errors.New("message has no recipients")
	}

	gm := gomail.NewMessage()
	if msg.From != "" {
		gm.SetHeader("From", msg.From)
	}
	gm.SetHeader("To", msg.To...)
	if len(msg.Cc) > 0 {
		gm.SetHeader("Cc", msg.Cc...)
	}
	gm.SetHeader("Subject", msg.Subject)

	switch {
	case msg.HTMLBody != "" && msg.TextBody != "":
		gm.SetBody("text/plain", msg.TextBody)
		gm.AddAlternative("text/html", msg.HTMLBody)
	case msg.HTMLBody != "":
		gm.SetBody("text/html", msg.HTMLBody)
	default:
		gm.SetBody("text/plain", msg.TextBody)
	}

	for _, a := range msg.Attachments {
		content := a.Content
		contentType := a.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		gm.Attach(a.Filename,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(content)
				return err
			}),
			gomail.SetHeader(map[string][]string{"Content-Type": {contentType}}),
		)
	}
	return gm, nil
}

// RenderSubject resolves {startDate} and {startTime} in template against t.
// An empty template renders DefaultSubject.
func RenderSubject(template string, t time.Time) string {
	if template == "" {
		template = DefaultSubject
	}
	r := strings.NewReplacer(
		"{startDate}", FormatDate(t),
		"{startTime}", t.Format("15:04:05"),
	)
	return r.Replace(template)
}

// FormatDate renders t as "1st January 2024".
func FormatDate(t time.Time) string {
	return fmt.Sprintf("%s %s", ordinal(t.Day()), t.Format("January 2006"))
}

func ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
