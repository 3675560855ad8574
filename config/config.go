package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all application configurations
type Config struct {
	Port      int    `env:"PORT" envDefault:"3000"`
	AppEnv    string `env:"APP_ENV" envDefault:"development"`
	SentryDSN string `env:"SENTRY_DSN"`

	SMTPHost          string        `env:"SMTP_HOST"`
	SMTPPort          int           `env:"SMTP_PORT" envDefault:"587"`
	SMTPSecure        bool          `env:"SMTP_SECURE" envDefault:"false"`
	SMTPUser          string        `env:"SMTP_USER"`
	SMTPPass          string        `env:"SMTP_PASS"`
	SMTPDebug         bool          `env:"SMTP_DEBUG" envDefault:"false"`
	SMTPVerifyTimeout time.Duration `env:"SMTP_VERIFY_TIMEOUT" envDefault:"15s"`
	SMTPSendTimeout   time.Duration `env:"SMTP_SEND_TIMEOUT" envDefault:"30s"`
	FromEmail         string        `env:"FROM_EMAIL"` // falls back to SMTPUser

	DatabaseURL            string        `env:"DATABASE_URL" envDefault:"mongodb://127.0.0.1:27017/smtp_mailer"`
	DatabaseConnectTimeout time.Duration `env:"DATABASE_CONNECT_TIMEOUT" envDefault:"10s"`

	UploadsDir string `env:"UPLOADS_DIR" envDefault:"uploads"`
	StaticDir  string `env:"STATIC_DIR" envDefault:"web/static"`
}

// LoadConfig reads configuration from the environment, loading a .env file first if present.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables directly.")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.FromEmail == "" {
		cfg.FromEmail = cfg.SMTPUser
	}

	return &cfg, nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
