package services

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	mail "gopkg.in/mail.v2"

	"smtp-mailer/config"
	"smtp-mailer/database"
)

// Message is a fully rendered email ready for the transport.
type Message struct {
	From        string
	To          string
	Subject     string
	HTML        string
	Attachments []database.Attachment
}

// Transport delivers messages over the network.
type Transport interface {
	// Send makes a single delivery attempt and returns the Message-ID.
	Send(ctx context.Context, msg Message) (string, error)
	// Verify checks that the server accepts a connection and the credentials.
	Verify(ctx context.Context) error
}

// SMTPTransport sends mail through an SMTP relay. Every dial and send runs
// under a connection deadline, so a stalled relay fails the attempt instead
// of holding it open.
type SMTPTransport struct {
	dialer *mail.Dialer
	host   string
	debug  bool
	logger *slog.Logger
}

// NewSMTPTransport builds a transport from the SMTP settings in cfg.
// Nothing is dialed until Verify or Send is called.
func NewSMTPTransport(cfg *config.Config, logger *slog.Logger) *SMTPTransport {
	d := mail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	d.SSL = cfg.SMTPSecure
	d.RetryFailure = false
	if cfg.SMTPSendTimeout > 0 {
		d.Timeout = cfg.SMTPSendTimeout
	}
	d.TLSConfig = &tls.Config{
		ServerName: cfg.SMTPHost,
		MinVersion: tls.VersionTLS12,
	}

	return &SMTPTransport{
		dialer: d,
		host:   cfg.SMTPHost,
		debug:  cfg.SMTPDebug,
		logger: logger.With(slog.String("component", "smtp")),
	}
}

// Verify dials and authenticates, then closes the connection.
func (t *SMTPTransport) Verify(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d := t.dialerFor(ctx)
	t.trace("smtp verify", slog.String("host", t.host), slog.Int("port", d.Port), slog.Bool("ssl", d.SSL))

	s, err := d.Dial()
	if err != nil {
		return err
	}
	return s.Close()
}

// Send makes one delivery attempt and returns the Message-ID it assigned.
// A failed attempt returns the relay's error as is.
func (t *SMTPTransport) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m, messageID := t.buildMessage(msg)

	t.trace("smtp send",
		slog.String("message_id", messageID),
		slog.String("to", msg.To),
		slog.Int("attachments", len(msg.Attachments)),
	)

	if err := t.dialerFor(ctx).DialAndSend(m); err != nil {
		var sendErr *mail.SendError
		if errors.As(err, &sendErr) {
			return "", sendErr.Cause
		}
		return "", err
	}

	t.trace("smtp sent", slog.String("message_id", messageID))
	return messageID, nil
}

// dialerFor returns a copy of the dialer whose connection deadline is cut
// down to whatever is left of ctx.
func (t *SMTPTransport) dialerFor(ctx context.Context) *mail.Dialer {
	d := *t.dialer
	if deadline, ok := ctx.Deadline(); ok {
		left := max(time.Until(deadline), time.Millisecond)
		if d.Timeout <= 0 || left < d.Timeout {
			d.Timeout = left
		}
	}
	return &d
}

// buildMessage assembles the MIME message and assigns its Message-ID.
func (t *SMTPTransport) buildMessage(msg Message) (*mail.Message, string) {
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), messageIDDomain(msg.From, t.host))

	m := mail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", messageID)
	m.SetDateHeader("Date", time.Now())
	m.SetBody("text/html", msg.HTML)

	for _, a := range msg.Attachments {
		m.Attach(a.Path, mail.Rename(a.Filename))
	}
	return m, messageID
}

// trace logs protocol steps when SMTP_DEBUG is on.
func (t *SMTPTransport) trace(msg string, attrs ...any) {
	if t.debug {
		t.logger.Info(msg, attrs...)
	}
}

func messageIDDomain(from, host string) string {
	if i := strings.LastIndex(from, "@"); i >= 0 && i < len(from)-1 {
		return strings.Trim(from[i+1:], "> ")
	}
	if host != "" {
		return host
	}
	return "localhost"
}

// VerifyOnStartup checks the transport once and logs the outcome.
// A failed check never stops the application; sends will fail individually.
func VerifyOnStartup(ctx context.Context, t Transport, timeout time.Duration, logger *slog.Logger) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := t.Verify(ctx); err != nil {
		logger.ErrorContext(ctx, "SMTP verify failed", slog.String("error", err.Error()))
		return
	}
	logger.InfoContext(ctx, "SMTP connection verified and ready to send.")
}
