package database

import "time"

// MaxAttachments is the most attachments a single log entry can reference.
const MaxAttachments = 5

// Status is the outcome of a send attempt.
type Status string

const (
	StatusSent   Status = "SENT"
	StatusFailed Status = "FAILED"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s == StatusSent || s == StatusFailed
}

// Attachment describes an uploaded file stored on local disk.
type Attachment struct {
	Filename string `json:"filename" bson:"filename"` // client-supplied name
	Path     string `json:"path" bson:"path"`         // server-local location
}

// EmailLog records one send attempt and its outcome.
type EmailLog struct {
	ID          string       `json:"id"`
	ToEmail     string       `json:"to_email"`
	Subject     string       `json:"subject"`
	HTMLPreview string       `json:"html_preview"`
	Attachments []Attachment `json:"attachments"`
	Status      Status       `json:"status"`
	Error       *string      `json:"error,omitempty"` // set only when Status is FAILED
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Validate checks the invariants every stored entry must satisfy.
func (e EmailLog) Validate() error {
	switch {
	case e.ToEmail == "":
		return ErrMissingRecipient
	case e.Subject == "":
		return ErrMissingSubject
	case !e.Status.Valid():
		return ErrInvalidStatus
	case e.Status == StatusSent && e.Error != nil:
		return ErrUnexpectedError
	case len(e.Attachments) > MaxAttachments:
		return ErrTooManyAttachments
	}
	return nil
}

// prepare validates e and stamps its timestamps for insertion.
func (e EmailLog) prepare(now time.Time) (EmailLog, error) {
	if err := e.Validate(); err != nil {
		return EmailLog{}, err
	}
	if e.Attachments == nil {
		e.Attachments = []Attachment{}
	}
	e.CreatedAt = now.UTC()
	e.UpdatedAt = e.CreatedAt
	return e, nil
}
