// Package web holds the templ components for the HTML pages and the email body.
package web

//go:generate templ generate

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/a-h/templ"

	"smtp-mailer/utils"
)

// DefaultName greets recipients when the form leaves the name empty.
const DefaultName = "there"

// FormPage is the state shown on the submission form.
type FormPage struct {
	Sent  string
	Error string
}

// Render renders a component to a string.
func Render(ctx context.Context, c templ.Component) (string, error) {
	var sb strings.Builder
	if err := c.Render(ctx, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Email renders the message body. An empty name becomes DefaultName.
func Email(ctx context.Context, name, message string) (string, error) {
	if name == "" {
		name = DefaultName
	}
	html, err := Render(ctx, EmailBody(name, message))
	if err != nil {
		return "", fmt.Errorf("failed to render email: %w", err)
	}
	return html, nil
}

func formatTime(t time.Time) string {
	return t.Local().Format("02 Jan 2006 15:04:05")
}

func detailURL(id string) templ.SafeURL {
	return templ.URL("/history/" + url.PathEscape(id))
}

func attachmentHint() string {
	return fmt.Sprintf("up to %d files, %d MiB each", utils.MaxAttachments, utils.MaxAttachmentSize>>20)
}
