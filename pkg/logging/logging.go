// Package logging wraps the zerolog configuration shared by the proxy
// and its admin surface.
package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup sets the global log level and installs a console writer to
// stdout, used in foreground/demo mode.
func Setup(level string) {
	setLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: zerolog.TimeFieldFormat})
}

// SetupFile sets the global log level and installs a plain JSON-lines
// writer appending to path, used in daemonized mode. If path cannot be
// opened, it falls back to stderr and returns the error so the caller
// can log a warning rather than treat it as fatal.
func SetupFile(level, path string) error {
	setLevel(level)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Logger = log.Output(os.Stderr)
		return err
	}
	log.Logger = zerolog.New(f).With().Timestamp().Logger()
	return nil
}

func setLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// NoIDTxn is the structured txn field value used before a transaction
// id has been allocated.
const NoIDTxn = "no-id"

// Txn returns a logger scoped to one transaction id, or NoIDTxn if id
// is empty.
func Txn(id string) zerolog.Logger {
	if id == "" {
		id = NoIDTxn
	}
	return log.With().Str("txn", id).Logger()
}
