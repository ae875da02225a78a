package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/zncgate/proxy/internal/config"
)

// New returns a configured zerolog.Logger for the process: console output
// at debug level in development, JSON at info level otherwise. Built once
// in the composition root and passed by value into every component.
func New(cfg *config.Config) zerolog.Logger {
	var out io.Writer = os.Stderr
	lvl := zerolog.InfoLevel
	if cfg.IsDevelopment() {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)
	return zerolog.New(out).With().Timestamp().Logger()
}
