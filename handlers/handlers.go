package handlers

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"smtp-mailer/database"
	"smtp-mailer/services"
	"smtp-mailer/utils"
	"smtp-mailer/web"
)

// HistoryLimit is how many entries the history page lists.
const HistoryLimit = 200

const (
	msgRequiredFields  = `Fields "to" and "subject" are required.`
	msgAttachmentLimit = "Attachments are limited to 5 files of 10 MiB each."
	msgInvalidForm     = "The submitted form could not be read."
	msgSendFailed      = "Failed to send email. Check SMTP credentials and logs."

	multipartMemory = 32 << 20
)

// LogReader reads stored email logs.
type LogReader interface {
	FindByID(ctx context.Context, id string) (database.EmailLog, error)
	FindRecent(ctx context.Context, limit int) ([]database.EmailLog, error)
}

// Mailer sends a rendered email and records the attempt.
type Mailer interface {
	SendAndLog(ctx context.Context, req services.SendRequest) (string, error)
}

// Intake validates and stores uploaded attachments.
type Intake interface {
	Check(files []*multipart.FileHeader) error
	Save(ctx context.Context, files []*multipart.FileHeader) ([]database.Attachment, error)
}

// IndexHandler renders an empty submission form.
func IndexHandler(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		renderForm(w, r, logger, http.StatusOK, web.FormPage{})
	}
}

// HistoryHandler lists the most recent send attempts, newest first.
func HistoryHandler(logs LogReader, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := logs.FindRecent(r.Context(), HistoryLimit)
		if err != nil {
			serverError(w, r, logger, err)
			return
		}
		renderPage(w, r, logger, http.StatusOK, web.HistoryPage(entries))
	}
}

// HistoryDetailHandler shows one send attempt with its attachments.
func HistoryDetailHandler(logs LogReader, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := logs.FindByID(r.Context(), mux.Vars(r)["id"])
		if errors.Is(err, database.ErrNotFound) {
			notFound(w)
			return
		}
		if err != nil {
			serverError(w, r, logger, err)
			return
		}
		renderPage(w, r, logger, http.StatusOK, web.DetailPage(entry))
	}
}

// SendMailHandler accepts the submission form, sends the email and renders
// the outcome. Every submission that passes validation leaves exactly one
// log entry behind.
func SendMailHandler(mailer Mailer, uploads Intake, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, utils.MaxRequestSize)
		if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				renderForm(w, r, logger, http.StatusRequestEntityTooLarge, web.FormPage{Error: msgAttachmentLimit})
				return
			}
			logger.WarnContext(r.Context(), "Invalid form submission", slog.String("error", err.Error()))
			renderForm(w, r, logger, http.StatusBadRequest, web.FormPage{Error: msgInvalidForm})
			return
		}

		var files []*multipart.FileHeader
		if r.MultipartForm != nil {
			defer func() { _ = r.MultipartForm.RemoveAll() }()
			files = r.MultipartForm.File[utils.AttachmentsField]
		}

		if err := uploads.Check(files); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, utils.ErrFileTooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			logger.WarnContext(r.Context(), "Attachments rejected", slog.String("error", err.Error()))
			renderForm(w, r, logger, status, web.FormPage{Error: msgAttachmentLimit})
			return
		}

		to := r.FormValue("to")
		subject := r.FormValue("subject")
		if strings.TrimSpace(to) == "" || strings.TrimSpace(subject) == "" {
			renderForm(w, r, logger, http.StatusBadRequest, web.FormPage{Error: msgRequiredFields})
			return
		}

		html, err := web.Email(r.Context(), r.FormValue("name"), r.FormValue("message"))
		if err != nil {
			serverError(w, r, logger, err)
			return
		}

		attachments, err := uploads.Save(r.Context(), files)
		if err != nil {
			serverError(w, r, logger, err)
			return
		}

		messageID, err := mailer.SendAndLog(r.Context(), services.SendRequest{
			To:          to,
			Subject:     subject,
			HTML:        html,
			Attachments: attachments,
		})
		var sendErr *services.SendError
		switch {
		case errors.As(err, &sendErr):
			renderForm(w, r, logger, http.StatusInternalServerError, web.FormPage{Error: msgSendFailed})
		case err != nil:
			serverError(w, r, logger, err)
		default:
			renderForm(w, r, logger, http.StatusOK, web.FormPage{Sent: "Email sent: " + messageID})
		}
	}
}
