package services

import (
	"context"
	"fmt"
	"log/slog"

	"smtp-mailer/database"
)

// PreviewLength is how many characters of the rendered HTML a log entry keeps.
const PreviewLength = 500

// LogCreator persists log entries.
type LogCreator interface {
	Create(ctx context.Context, entry database.EmailLog) (database.EmailLog, error)
}

// SendRequest is one validated form submission with its body already rendered.
type SendRequest struct {
	To          string
	Subject     string
	HTML        string
	Attachments []database.Attachment
}

// SendError reports that the transport rejected or failed the send.
// The attempt has already been logged as FAILED.
type SendError struct {
	Err error
}

// Error returns the transport error text unchanged.
func (e *SendError) Error() string { return e.Err.Error() }

// Unwrap returns the transport error.
func (e *SendError) Unwrap() error { return e.Err }

// MailService handles sending emails and logging to DB
type MailService struct {
	transport Transport
	logs      LogCreator
	from      string
	logger    *slog.Logger
}

// NewMailService creates a new MailService instance
func NewMailService(transport Transport, logs LogCreator, from string, logger *slog.Logger) *MailService {
	return &MailService{
		transport: transport,
		logs:      logs,
		from:      from,
		logger:    logger,
	}
}

// SendAndLog makes one send attempt and records exactly one log entry for it
// before returning. A transport failure is returned as *SendError; any other
// error means the outcome could not be recorded.
func (s *MailService) SendAndLog(ctx context.Context, req SendRequest) (string, error) {
	attachments := req.Attachments
	if attachments == nil {
		attachments = []database.Attachment{}
	}

	messageID, sendErr := s.transport.Send(ctx, Message{
		From:        s.from,
		To:          req.To,
		Subject:     req.Subject,
		HTML:        req.HTML,
		Attachments: attachments,
	})

	entry := database.EmailLog{
		ToEmail:     req.To,
		Subject:     req.Subject,
		Attachments: attachments,
		Status:      database.StatusSent,
	}
	if sendErr != nil {
		errText := sendErr.Error()
		entry.Status = database.StatusFailed
		entry.Error = &errText
	} else {
		entry.HTMLPreview = Preview(req.HTML)
	}

	// The request may already be cancelled; the attempt is still recorded.
	stored, err := s.logs.Create(context.WithoutCancel(ctx), entry)
	if err != nil {
		s.logger.ErrorContext(ctx, "CRITICAL: Failed to log email attempt to DB",
			slog.String("to", req.To),
			slog.String("status", string(entry.Status)),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("failed to record email log: %w", err)
	}

	if sendErr != nil {
		s.logger.ErrorContext(ctx, "Error sending email",
			slog.String("to", req.To),
			slog.String("log_id", stored.ID),
			slog.String("error", sendErr.Error()),
		)
		return "", &SendError{Err: sendErr}
	}

	s.logger.InfoContext(ctx, "Email sent successfully",
		slog.String("to", req.To),
		slog.String("message_id", messageID),
		slog.String("log_id", stored.ID),
	)
	return messageID, nil
}

// Preview returns the first PreviewLength characters of html.
func Preview(html string) string {
	runes := 0
	for i := range html {
		if runes == PreviewLength {
			return html[:i]
		}
		runes++
	}
	return html
}
