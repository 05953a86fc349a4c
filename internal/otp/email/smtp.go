// Package email delivers signing OTPs by mail through an SMTP relay.
package email

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"esign-workflow/internal/otp"
)

// SendFunc matches smtp.SendMail; tests replace it.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Sender sends codes through the relay at Addr.
type Sender struct {
	Addr     string
	From     string
	Username string
	Password string
	send     SendFunc
}

// NewSender returns a Sender using smtp.SendMail. Username may be empty for unauthenticated relays.
func NewSender(addr, from, username, password string) *Sender {
	return &Sender{Addr: addr, From: from, Username: username, Password: password, send: smtp.SendMail}
}

// WithSendFunc overrides the transport.
func (s *Sender) WithSendFunc(f SendFunc) *Sender {
	s.send = f
	return s
}

// Send mails the code. net/smtp has no context support, so the call runs on a goroutine and
// Send returns early when ctx is done.
func (s *Sender) Send(ctx context.Context, d otp.Delivery) error {
	if s.Addr == "" || s.From == "" {
		return fmt.Errorf("email: SMTP relay not configured")
	}
	if !strings.Contains(d.Destination, "@") {
		return fmt.Errorf("email: invalid destination")
	}
	var auth smtp.Auth
	if s.Username != "" {
		host, _, err := net.SplitHostPort(s.Addr)
		if err != nil {
			return fmt.Errorf("email: %w", err)
		}
		auth = smtp.PlainAuth("", s.Username, s.Password, host)
	}
	msg := BuildMessage(s.From, d.Destination, d.Code, d.ExpiresAt)

	done := make(chan error, 1)
	go func() { done <- s.send(s.Addr, auth, s.From, []string{d.Destination}, msg) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BuildMessage renders the RFC 5322 message carrying the code.
func BuildMessage(from, to, code string, expiresAt time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: Your signing verification code\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString("Your verification code is " + code + ".\r\n")
	if !expiresAt.IsZero() {
		b.WriteString("It expires at " + expiresAt.UTC().Format("15:04 MST") + ".\r\n")
	}
	b.WriteString("Do not share this code with anyone.\r\n")
	return []byte(b.String())
}
