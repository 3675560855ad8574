package handlers

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"

	"github.com/a-h/templ"
	"github.com/getsentry/sentry-go"

	"smtp-mailer/web"
)

// renderPage renders into a buffer first so a render error can still be
// answered with a clean 500.
func renderPage(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, page templ.Component) {
	var buf bytes.Buffer
	if err := page.Render(r.Context(), &buf); err != nil {
		serverError(w, r, logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		logger.WarnContext(r.Context(), "Error writing response", slog.String("error", err.Error()))
	}
}

// renderForm renders the submission form with the given state.
func renderForm(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, page web.FormPage) {
	renderPage(w, r, logger, status, web.SendForm(page))
}

// plainText sends body as text/plain with the given status.
func plainText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// notFound sends the plain 404 body.
func notFound(w http.ResponseWriter) {
	plainText(w, http.StatusNotFound, "Not found")
}

// serverError logs err, reports it to Sentry when configured and sends an
// opaque 500.
func serverError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	logger.ErrorContext(r.Context(), "Unhandled error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	sentry.CaptureException(err)
	plainText(w, http.StatusInternalServerError, "Server error")
}
