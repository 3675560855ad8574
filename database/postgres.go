package database

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq" // PostgreSQL driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore keeps email logs in the email_logs table.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresStore opens the database, verifies the connection and applies
// pending migrations.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := InitDB(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := ApplyMigrations(databaseURL); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db, now: time.Now}, nil
}

// InitDB initializes the database connection
func InitDB(ctx context.Context, dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.InfoContext(ctx, "Successfully connected to PostgreSQL database")
	return db, nil
}

// ApplyMigrations applies the embedded schema migrations.
func ApplyMigrations(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		slog.Info("No database migrations to apply.")
	case err != nil:
		return fmt.Errorf("failed to apply migrations: %w", err)
	default:
		slog.Info("Database migrations applied successfully.")
	}
	return nil
}

// Create inserts entry and reads back its serial id.
func (s *PostgresStore) Create(ctx context.Context, entry EmailLog) (EmailLog, error) {
	entry, err := entry.prepare(s.now())
	if err != nil {
		return EmailLog{}, err
	}

	attachments, err := json.Marshal(entry.Attachments)
	if err != nil {
		return EmailLog{}, fmt.Errorf("failed to encode attachments: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO email_logs (to_email, subject, html_preview, attachments, status, error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		entry.ToEmail, entry.Subject, entry.HTMLPreview, string(attachments), string(entry.Status), entry.Error,
		entry.CreatedAt, entry.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return EmailLog{}, fmt.Errorf("failed to insert email log: %w", err)
	}

	entry.ID = strconv.FormatInt(id, 10)
	return entry, nil
}

const selectEmailLogs = `SELECT id, to_email, subject, html_preview, attachments, status, error, created_at, updated_at FROM email_logs`

// FindByID looks up an entry by its numeric id.
func (s *PostgresStore) FindByID(ctx context.Context, id string) (EmailLog, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return EmailLog{}, ErrNotFound
	}

	entry, err := scanEmailLog(s.db.QueryRowContext(ctx, selectEmailLogs+` WHERE id = $1`, n))
	if errors.Is(err, sql.ErrNoRows) {
		return EmailLog{}, ErrNotFound
	}
	if err != nil {
		return EmailLog{}, fmt.Errorf("failed to find email log: %w", err)
	}
	return entry, nil
}

// FindRecent orders by the serial id, which follows insertion order.
func (s *PostgresStore) FindRecent(ctx context.Context, limit int) ([]EmailLog, error) {
	rows, err := s.db.QueryContext(ctx, selectEmailLogs+` ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query email logs: %w", err)
	}
	defer rows.Close()

	logs := []EmailLog{}
	for rows.Next() {
		entry, err := scanEmailLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan email log row: %w", err)
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over email log rows: %w", err)
	}
	return logs, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close(context.Context) error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmailLog(row rowScanner) (EmailLog, error) {
	var (
		e           EmailLog
		id          int64
		status      string
		attachments []byte
		errText     sql.NullString
	)
	if err := row.Scan(&id, &e.ToEmail, &e.Subject, &e.HTMLPreview, &attachments, &status, &errText, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return EmailLog{}, err
	}

	e.ID = strconv.FormatInt(id, 10)
	e.Status = Status(status)
	if errText.Valid {
		e.Error = &errText.String
	}
	e.Attachments = []Attachment{}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &e.Attachments); err != nil {
			return EmailLog{}, fmt.Errorf("failed to decode attachments: %w", err)
		}
	}
	return e, nil
}
