package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Settings configure the process-wide zerolog logger.
type Settings struct {
	// Level is one of trace, debug, info, warn, error, fatal.
	Level string
	// File redirects log output away from stderr when set.
	File string
	// WithCaller annotates every line with file:line.
	WithCaller bool
}

// Init sets up the global logger: human-readable console output on a
// terminal, JSON otherwise or when writing to a file.
func Init(s Settings) error {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s.Level)))
	if err != nil {
		return errors.Wrapf(err, "parse log level %q", s.Level)
	}
	zerolog.SetGlobalLevel(level)

	var w io.Writer = os.Stderr
	if s.File != "" {
		f, err := os.OpenFile(s.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errors.Wrapf(err, "open log file %s", s.File)
		}
		w = f
	} else if isatty.IsTerminal(os.Stderr.Fd()) {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(w).With().Timestamp()
	if s.WithCaller {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()
	return nil
}
