package main

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smtp-mailer/database"
)

func TestRun_DatabaseUnreachable(t *testing.T) {
	t.Setenv("DATABASE_URL", "mongodb://127.0.0.1:1/smtp_mailer")
	t.Setenv("DATABASE_CONNECT_TIMEOUT", "200ms")
	t.Setenv("UPLOADS_DIR", t.TempDir())
	t.Setenv("SENTRY_DSN", "")
	t.Setenv("PORT", "0")

	bound := false
	listen := func(network, address string) (net.Listener, error) {
		bound = true
		return net.Listen(network, address)
	}

	err := run(t.Context(), listen)
	require.Error(t, err)
	assert.ErrorContains(t, err, "error connecting to database")
	assert.False(t, bound, "the listener must not be bound without a database")
}

func TestRun_UnsupportedDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "mysql://127.0.0.1/smtp_mailer")
	t.Setenv("UPLOADS_DIR", t.TempDir())
	t.Setenv("SENTRY_DSN", "")

	bound := false
	err := run(t.Context(), func(network, address string) (net.Listener, error) {
		bound = true
		return net.Listen(network, address)
	})
	require.ErrorIs(t, err, database.ErrUnsupportedURL)
	assert.False(t, bound)
}
