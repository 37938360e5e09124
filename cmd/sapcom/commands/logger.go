package commands

import (
	"io"
	"os"
	"time"

	"github.com/fivetwenty-io/sapcommissions/pkg/commissions"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// zerologLogger adapts a zerolog logger to commissions.Logger.
type zerologLogger struct {
	logger zerolog.Logger
}

// NewLogger returns a console logger writing to w. Debug messages are only
// emitted when verbose is set.
func NewLogger(w io.Writer, verbose bool) commissions.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	writer := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly, NoColor: colorless(w)}

	return &zerologLogger{
		logger: zerolog.New(writer).Level(level).With().Timestamp().Logger(),
	}
}

func (l *zerologLogger) Debug(msg string, fields map[string]interface{}) {
	l.logger.Debug().Fields(fields).Msg(msg)
}

func (l *zerologLogger) Info(msg string, fields map[string]interface{}) {
	l.logger.Info().Fields(fields).Msg(msg)
}

func (l *zerologLogger) Warn(msg string, fields map[string]interface{}) {
	l.logger.Warn().Fields(fields).Msg(msg)
}

func (l *zerologLogger) Error(msg string, fields map[string]interface{}) {
	l.logger.Error().Fields(fields).Msg(msg)
}

// colorless reports whether w should receive plain text.
func colorless(w io.Writer) bool {
	if noColor() {
		return true
	}

	file, ok := w.(*os.File)

	return !ok || !term.IsTerminal(int(file.Fd())) // #nosec G115
}
