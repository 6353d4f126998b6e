package logger

import (
	"io"
	"os"
	"runtime"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// CopyLogger is a zerolog logger carrying the identifiers of one COPY stream.
type CopyLogger struct {
	zerolog.Logger
}

var Logger = &CopyLogger{
	zerolog.New(os.Stderr).With().Timestamp().Logger(),
}

// enable pretty printing for interactive terminals and json for production.
func init() {
	// for tty terminal enable pretty logs
	if isatty.IsTerminal(os.Stdout.Fd()) && runtime.GOOS != "windows" {
		Logger.Logger = Logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		// UNIX Time is faster and smaller than most timestamps
		// If you set zerolog.TimeFieldFormat to an empty string,
		// logs will write with UNIX time.
		zerolog.TimeFieldFormat = ""
	}
	// by default only log warnings and errors
	SetLogLevel(zerolog.WarnLevel)
}

// SetLogLevel sets the minimum level of the package logger.
func SetLogLevel(l zerolog.Level) {
	Logger.Logger = Logger.Level(l)
}

// SetLogOutput redirects the package logger.
func SetLogOutput(w io.Writer) {
	Logger.Logger = Logger.Output(w)
}

// WithContext returns a child logger stamping connId and corrId on every message.
func WithContext(connectionId string, correlationId string) *CopyLogger {
	ctx := Logger.With()
	if connectionId != "" {
		ctx = ctx.Str("connId", connectionId)
	}
	if correlationId != "" {
		ctx = ctx.Str("corrId", correlationId)
	}
	return &CopyLogger{ctx.Logger()}
}

func Debug() *zerolog.Event {
	return Logger.Debug()
}

func Info() *zerolog.Event {
	return Logger.Info()
}

func Warn() *zerolog.Event {
	return Logger.Warn()
}

func Error() *zerolog.Event {
	return Logger.Error()
}

func Err(err error) *zerolog.Event {
	return Logger.Err(err)
}
