package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

var (
	ErrNotFound           = errors.New("email log not found")
	ErrUnsupportedURL     = errors.New("unsupported database url")
	ErrMissingRecipient   = errors.New("email log requires a recipient")
	ErrMissingSubject     = errors.New("email log requires a subject")
	ErrInvalidStatus      = errors.New("email log status must be SENT or FAILED")
	ErrUnexpectedError    = errors.New("sent email log must not carry an error")
	ErrTooManyAttachments = errors.New("email log has too many attachments")
)

// Store persists email log entries. Entries are never updated or deleted.
type Store interface {
	// Create stores entry and returns it with its generated ID and timestamps.
	Create(ctx context.Context, entry EmailLog) (EmailLog, error)
	// FindByID returns ErrNotFound when no entry has the given id.
	FindByID(ctx context.Context, id string) (EmailLog, error)
	// FindRecent returns up to limit entries, newest first.
	FindRecent(ctx context.Context, limit int) ([]EmailLog, error)
	Close(ctx context.Context) error
}

// Connect opens the store selected by the scheme of databaseURL and verifies
// the connection before returning.
func Connect(ctx context.Context, databaseURL string, timeout time.Duration) (Store, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	switch strings.ToLower(u.Scheme) {
	case "mongodb", "mongodb+srv":
		store, err := NewMongoStore(ctx, databaseURL, databaseName(u), timeout)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres", "postgresql":
		store, err := NewPostgresStore(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, u.Scheme)
	}
}

const defaultDatabaseName = "smtp_mailer"

// databaseName takes the database from the URL path, as mongo connection strings do.
func databaseName(u *url.URL) string {
	if name := strings.Trim(u.Path, "/"); name != "" {
		return name
	}
	return defaultDatabaseName
}
