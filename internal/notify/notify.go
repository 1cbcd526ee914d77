// Package notify emails captured leads (owner and seller flows) to the
// business inbox.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultSMTPServer = "smtp.gmail.com"
	DefaultSMTPPort   = 587
)

// ErrNotConfigured is returned by Send when sender, password or receiver is
// missing. Callers treat it as "notifications disabled".
var ErrNotConfigured = errors.New("lead email not configured")

// Opts holds the SMTP settings.
type Opts struct {
	Server   string
	Port     int
	Sender   string
	Password string
	Receiver string
}

// Option configures Opts.
type Option func(*Opts)

// WithServer sets the SMTP host and port.
func WithServer(host string, port int) Option {
	return func(o *Opts) {
		if host != "" {
			o.Server = host
		}
		if port > 0 {
			o.Port = port
		}
	}
}

// WithCredentials sets the sending account.
func WithCredentials(sender, password string) Option {
	return func(o *Opts) { o.Sender, o.Password = sender, password }
}

// WithReceiver sets the inbox that receives leads.
func WithReceiver(addr string) Option {
	return func(o *Opts) { o.Receiver = addr }
}

// sendMailFunc matches smtp.SendMail.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends plain text notifications over SMTP with STARTTLS.
type Mailer struct {
	opts     Opts
	sendMail sendMailFunc
	now      func() time.Time
}

// NewMailer creates a mailer. An incomplete configuration still returns a
// mailer whose Send reports ErrNotConfigured.
func NewMailer(opts ...Option) *Mailer {
	o := Opts{Server: DefaultSMTPServer, Port: DefaultSMTPPort}
	for _, opt := range opts {
		opt(&o)
	}
	return &Mailer{opts: o, sendMail: smtp.SendMail, now: time.Now}
}

// Configured reports whether Send can deliver.
func (m *Mailer) Configured() bool {
	return m != nil && m.opts.Sender != "" && m.opts.Password != "" && m.opts.Receiver != ""
}

// Send delivers one message. smtp.SendMail has no context support, so ctx
// is only checked before dialing.
func (m *Mailer) Send(ctx context.Context, subject, body string) error {
	if !m.Configured() {
		slog.Warn("Mailer.Send: lead email not configured, skipping", "subject", subject)
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := net.JoinHostPort(m.opts.Server, strconv.Itoa(m.opts.Port))
	auth := smtp.PlainAuth("", m.opts.Sender, m.opts.Password, m.opts.Server)
	msg := buildMessage(m.opts.Sender, m.opts.Receiver, subject, body, m.now())
	if err := m.sendMail(addr, auth, m.opts.Sender, []string{m.opts.Receiver}, msg); err != nil {
		slog.Error("Mailer.Send: delivery failed", "server", addr, "subject", subject, "error", err)
		return fmt.Errorf("send lead email: %w", err)
	}
	slog.Info("Mailer.Send: lead email sent", "subject", subject)
	return nil
}

func buildMessage(from, to, subject, body string, now time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}
