package ingest

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/message"
	"gopkg.in/natefinch/lumberjack.v2"
)

// logBanner separates runs in the log file.
var logBanner = strings.Repeat("#", 78)

// LogTimeFormat matches the timestamp the log file has always used.
const LogTimeFormat = "02-01-2006 15:04:05"

// LogOptions configures NewLogger.
type LogOptions struct {
	Level string
	// File is the append-only log file. Empty disables file output.
	File      string
	MaxSizeMB int
	// Console defaults to stdout.
	Console io.Writer
	NoColor bool
}

// NewLogger builds the process logger writing to the console and, when
// configured, to the log file. The returned closer must be called at
// shutdown to flush and close the file.
func NewLogger(opt LogOptions) (zerolog.Logger, io.Closer) {
	var console io.Writer = os.Stdout
	if opt.Console != nil {
		console = opt.Console
	}
	writers := []io.Writer{zerolog.ConsoleWriter{Out: console, TimeFormat: LogTimeFormat, NoColor: opt.NoColor}}

	var closer io.Closer = nopCloser{}
	if strings.TrimSpace(opt.File) != "" {
		lj := &lumberjack.Logger{
			Filename: opt.File,
			MaxSize:  opt.MaxSizeMB,
		}
		writers = append(writers, zerolog.ConsoleWriter{Out: lj, TimeFormat: LogTimeFormat, NoColor: true})
		closer = lj
	}

	log := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(opt.Level)).
		With().Timestamp().Logger()
	return log, closer
}

// LogStartup writes the first line of a run.
func LogStartup(log zerolog.Logger, msgs *message.Printer, version string) {
	log.Info().Str("op", "main").Msg(msgs.Sprintf(msgStarting, version))
}

// CloseLog writes the closing line and the run separator, then closes the
// log file.
func CloseLog(log zerolog.Logger, closer io.Closer, msgs *message.Printer) error {
	log.Info().Str("op", "closeFileLog").Msg(msgs.Sprintf(msgLogClosed))
	log.Info().Str("op", "closeFileLog").Msg(logBanner)
	return closer.Close()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// recordFields attaches an event record to a log line for manual recovery.
func recordFields(e *zerolog.Event, rec EventRecord) *zerolog.Event {
	return e.Str("timestamp", rec.Timestamp).
		Str("system_time", rec.SystemTime).
		Int64("process_id", rec.ProcessID).
		Int64("thread_id", rec.ThreadID).
		Str("file", rec.SourceFile).
		Str("payload", rec.Payload)
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
