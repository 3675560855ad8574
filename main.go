package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"smtp-mailer/config"
	"smtp-mailer/database"
	"smtp-mailer/handlers"
	"smtp-mailer/logger"
	"smtp-mailer/services"
	"smtp-mailer/utils"
)

const serviceName = "smtp-mailer"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, net.Listen)
	stop()
	if err != nil {
		slog.Error("Fatal error", logger.Err(err))
		os.Exit(1)
	}
}

// listenFunc binds the HTTP listener; net.Listen in production.
type listenFunc func(network, address string) (net.Listener, error)

// run starts the application and blocks until ctx is done or the server
// fails. The listener is only bound once every dependency is ready.
func run(ctx context.Context, listen listenFunc) error {
	// Load configuration from .env and the environment
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	l := logger.New(cfg.AppEnv, serviceName)
	slog.SetDefault(l)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.AppEnv,
		}); err != nil {
			l.Warn("Sentry disabled", logger.Err(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize database connection; the listener is never bound without it.
	store, err := database.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseConnectTimeout)
	if err != nil {
		return fmt.Errorf("error connecting to database: %w", err)
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			l.Warn("Error closing database", logger.Err(err))
		}
	}()

	uploads, err := utils.NewUploads(cfg.UploadsDir)
	if err != nil {
		return err
	}

	transport := services.NewSMTPTransport(cfg, l)
	go services.VerifyOnStartup(ctx, transport, cfg.SMTPVerifyTimeout, l)

	mailer := services.NewMailService(transport, store, cfg.FromEmail, l)

	router := handlers.NewRouter(handlers.Deps{
		Logs:      store,
		Mailer:    mailer,
		Uploads:   uploads,
		StaticDir: cfg.StaticDir,
		Logger:    l,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	ln, err := listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("error binding %s: %w", srv.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info("Server running", slog.String("url", "http://localhost"+cfg.Addr()), slog.String("uploads", uploads.Dir()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	l.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
