package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

// StaticPrefix is the URL prefix static assets are served under.
const StaticPrefix = "/public/"

// Deps are the services the HTTP layer is built on.
type Deps struct {
	Logs      LogReader
	Mailer    Mailer
	Uploads   Intake
	StaticDir string
	Logger    *slog.Logger
}

// NewRouter wires the routes to their handlers.
func NewRouter(d Deps) *mux.Router {
	r := mux.NewRouter()
	r.Use(RequestLogger(d.Logger), Recoverer(d.Logger))

	r.HandleFunc("/", IndexHandler(d.Logger)).Methods(http.MethodGet)
	r.HandleFunc("/history", HistoryHandler(d.Logs, d.Logger)).Methods(http.MethodGet)
	r.HandleFunc("/history/{id}", HistoryDetailHandler(d.Logs, d.Logger)).Methods(http.MethodGet)
	r.HandleFunc("/send", SendMailHandler(d.Mailer, d.Uploads, d.Logger)).Methods(http.MethodPost)

	if d.StaticDir != "" {
		r.PathPrefix(StaticPrefix).Handler(http.StripPrefix(StaticPrefix, http.FileServer(http.Dir(d.StaticDir))))
	}

	return r
}
