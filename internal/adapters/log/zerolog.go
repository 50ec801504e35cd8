package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/exposure-kit/enlifecycle/internal/ports"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Zerolog implements ports.Logger on top of zerolog.
type Zerolog struct {
	logger zerolog.Logger
}

// NewZerolog creates a logger writing to w in the given format at level.
// An empty level means info.
func NewZerolog(w io.Writer, format, level string) (*Zerolog, error) {
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", level, err)
		}
		lvl = parsed
	}

	switch format {
	case "", FormatConsole:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	case FormatJSON:
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	logger := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return &Zerolog{logger: logger}, nil
}

// NewConsole returns an info-level console logger on stderr.
func NewConsole() *Zerolog {
	return &Zerolog{logger: zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()}
}

// Wrap adapts an existing zerolog.Logger.
func Wrap(logger zerolog.Logger) *Zerolog {
	return &Zerolog{logger: logger}
}

func (z *Zerolog) Debug(msg string, fields ...ports.Field) { emit(z.logger.Debug(), msg, fields) }
func (z *Zerolog) Info(msg string, fields ...ports.Field)  { emit(z.logger.Info(), msg, fields) }
func (z *Zerolog) Warn(msg string, fields ...ports.Field)  { emit(z.logger.Warn(), msg, fields) }
func (z *Zerolog) Error(msg string, fields ...ports.Field) { emit(z.logger.Error(), msg, fields) }

// With returns a child logger carrying fields on every event.
func (z *Zerolog) With(fields ...ports.Field) *Zerolog {
	ctx := z.logger.With()
	for _, f := range fields {
		ctx = ctx.Interface(f.Key, f.Value)
	}
	return &Zerolog{logger: ctx.Logger()}
}

// Logger returns the underlying zerolog.Logger.
func (z *Zerolog) Logger() zerolog.Logger {
	return z.logger
}

func emit(event *zerolog.Event, msg string, fields []ports.Field) {
	if event == nil {
		return
	}
	for _, f := range fields {
		event = addField(event, f)
	}
	event.Msg(msg)
}

func addField(event *zerolog.Event, f ports.Field) *zerolog.Event {
	switch v := f.Value.(type) {
	case string:
		return event.Str(f.Key, v)
	case int:
		return event.Int(f.Key, v)
	case int64:
		return event.Int64(f.Key, v)
	case uint64:
		return event.Uint64(f.Key, v)
	case float64:
		return event.Float64(f.Key, v)
	case bool:
		return event.Bool(f.Key, v)
	case time.Duration:
		return event.Dur(f.Key, v)
	case time.Time:
		return event.Time(f.Key, v)
	case error:
		return event.AnErr(f.Key, v)
	case fmt.Stringer:
		return event.Stringer(f.Key, v)
	default:
		return event.Interface(f.Key, v)
	}
}

var _ ports.Logger = (*Zerolog)(nil)
