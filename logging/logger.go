package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/crytic/crossguard/logging/colors"
	"github.com/rs/zerolog"
)

// GlobalLogger is disabled until a command configures it. Each package derives its own sub-logger from it so that
// log lines can be filtered by the "module" key.
var GlobalLogger = NewLogger(zerolog.Disabled, false)

// Logger fans log events out to an optional console logger with custom coloring and to any number of io.Writer
// channels in structured or unstructured form.
type Logger struct {
	// level describes the log level
	level zerolog.Level

	// multiLogger outputs to every writer in writers.
	multiLogger zerolog.Logger

	// consoleLogger outputs unstructured, colorized lines to stdout.
	consoleLogger zerolog.Logger

	// writers describes the channels multiLogger outputs to.
	writers []io.Writer

	// context holds the key-value pairs added through NewSubLogger so that they survive AddWriter.
	context []string
}

// LogFormat describes what format to log in
type LogFormat string

const (
	// STRUCTURED describes that logging should be done in structured JSON format
	STRUCTURED LogFormat = "structured"
	// UNSTRUCTURED describes that logging should be done in an unstructured format
	UNSTRUCTURED LogFormat = "unstructured"
)

// StructuredLogInfo describes a key-value mapping that can be used to log structured data
type StructuredLogInfo map[string]any

// NewLogger creates a Logger at the given level. The Logger outputs to console if consoleEnabled is set, and to
// every provided writer.
func NewLogger(level zerolog.Level, consoleEnabled bool, writers ...io.Writer) *Logger {
	// Disabled base loggers so that events on a fresh Logger are always safe to build
	multiLogger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	consoleLogger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	if len(writers) > 0 {
		multiLogger = zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp().Logger()
	}
	if consoleEnabled {
		consoleWriter := setupDefaultFormatting(zerolog.ConsoleWriter{Out: os.Stdout}, level)
		consoleLogger = zerolog.New(consoleWriter).Level(level)
	}

	return &Logger{
		level:         level,
		multiLogger:   multiLogger,
		consoleLogger: consoleLogger,
		writers:       writers,
	}
}

// NewSubLogger creates a new Logger carrying an additional key-value pair on every event. Packages use it with the
// "module" key and one of the service constants.
func (l *Logger) NewSubLogger(key string, value string) *Logger {
	context := append(append([]string{}, l.context...), key, value)
	return &Logger{
		level:         l.level,
		multiLogger:   l.multiLogger.With().Str(key, value).Logger(),
		consoleLogger: l.consoleLogger.With().Str(key, value).Logger(),
		writers:       l.writers,
		context:       context,
	}
}

// AddWriter adds a writer to the channels where log output will be sent. Adding a writer twice is a no-op.
func (l *Logger) AddWriter(writer io.Writer, format LogFormat) {
	for _, w := range l.writers {
		if w == writer {
			return
		}
	}

	// Unstructured output gets a console writer with no ANSI coloring
	if format == UNSTRUCTURED {
		writer = zerolog.ConsoleWriter{Out: writer, NoColor: true}
	}
	l.writers = append(l.writers, writer)
	l.rebuildMultiLogger()
}

// RemoveWriter removes a writer previously added through NewLogger. Unknown writers are ignored.
func (l *Logger) RemoveWriter(writer io.Writer) {
	for i, w := range l.writers {
		if w == writer {
			l.writers = append(l.writers[:i], l.writers[i+1:]...)
			l.rebuildMultiLogger()
			return
		}
	}
}

// rebuildMultiLogger recreates the multi-writer logger after the writer list changed.
func (l *Logger) rebuildMultiLogger() {
	if len(l.writers) == 0 {
		l.multiLogger = zerolog.New(os.Stdout).Level(zerolog.Disabled)
		return
	}
	ctx := zerolog.New(zerolog.MultiLevelWriter(l.writers...)).Level(l.level).With().Timestamp()
	for i := 0; i+1 < len(l.context); i += 2 {
		ctx = ctx.Str(l.context[i], l.context[i+1])
	}
	l.multiLogger = ctx.Logger()
}

// Level returns the log level of the Logger
func (l *Logger) Level() zerolog.Level {
	return l.level
}

// SetLevel updates the log level of the Logger
func (l *Logger) SetLevel(level zerolog.Level) {
	l.level = level
	l.multiLogger = l.multiLogger.Level(level)
	l.consoleLogger = l.consoleLogger.Level(level)
}

// Trace logs a trace event
func (l *Logger) Trace(args ...any) {
	l.emit(l.consoleLogger.Trace(), l.multiLogger.Trace(), false, args...)
}

// Debug logs a debug event
func (l *Logger) Debug(args ...any) {
	l.emit(l.consoleLogger.Debug(), l.multiLogger.Debug(), false, args...)
}

// Info logs an info event
func (l *Logger) Info(args ...any) {
	l.emit(l.consoleLogger.Info(), l.multiLogger.Info(), false, args...)
}

// Warn logs a warning event
func (l *Logger) Warn(args ...any) {
	l.emit(l.consoleLogger.Warn(), l.multiLogger.Warn(), false, args...)
}

// Error logs an error event
func (l *Logger) Error(args ...any) {
	l.emit(l.consoleLogger.Error(), l.multiLogger.Error(), false, args...)
}

// Panic logs a panic event, then panics.
func (l *Logger) Panic(args ...any) {
	l.emit(l.consoleLogger.Panic(), l.multiLogger.Panic(), true, args...)
}

// emit builds both messages out of args, attaches any error and StructuredLogInfo, and sends the events. Stack
// traces are attached at debug level and below, and always for panics.
func (l *Logger) emit(consoleLog *zerolog.Event, multiLog *zerolog.Event, withStack bool, args ...any) {
	consoleMsg, multiMsg, err, info := buildMsgs(args...)

	// Err is safe to call with a nil error
	consoleLog.Err(err)
	multiLog.Err(err)
	if withStack || l.level <= zerolog.DebugLevel {
		consoleLog.Stack()
		multiLog.Stack()
	}

	if info != nil {
		consoleLog.Any("info", info)
		multiLog.Any("info", info)
	}

	// The multi logger is sent last so that a panic still reaches every writer
	defer multiLog.Msg(multiMsg)
	consoleLog.Msg(consoleMsg)
}

// buildMsgs turns a variadic list of arguments into a colorized console message and a plain message. A
// colors.ColorFunc argument switches the color applied to the arguments after it. At most one error and one
// StructuredLogInfo are picked up and returned separately.
func buildMsgs(args ...any) (string, string, error, StructuredLogInfo) {
	if len(args) == 0 {
		return "", "", nil, nil
	}

	colorCtx := colors.Reset
	consoleOutput := make([]string, 0, len(args))
	plainOutput := make([]string, 0, len(args))
	var info StructuredLogInfo
	var err error

	for _, arg := range args {
		switch t := arg.(type) {
		case colors.ColorFunc:
			colorCtx = t
		case StructuredLogInfo:
			info = t
		case error:
			err = t
		default:
			consoleOutput = append(consoleOutput, colorCtx(t))
			plainOutput = append(plainOutput, fmt.Sprintf("%v", t))
		}
	}

	return strings.Join(consoleOutput, ""), strings.Join(plainOutput, ""), err, info
}

// setupDefaultFormatting drops timestamps from console output and replaces level names with colored markers.
func setupDefaultFormatting(writer zerolog.ConsoleWriter, level zerolog.Level) zerolog.ConsoleWriter {
	writer.FormatTimestamp = func(i any) string {
		return ""
	}

	writer.FormatLevel = func(i any) string {
		s, _ := i.(string)
		parsed, err := zerolog.ParseLevel(s)
		if err != nil {
			return s
		}

		switch parsed {
		case zerolog.TraceLevel:
			return colors.CyanBold(zerolog.LevelTraceValue)
		case zerolog.DebugLevel:
			return colors.BlueBold(zerolog.LevelDebugValue)
		case zerolog.InfoLevel:
			return colors.GreenBold(colors.LEFT_ARROW)
		case zerolog.WarnLevel:
			return colors.YellowBold(zerolog.LevelWarnValue)
		case zerolog.ErrorLevel:
			return colors.RedBold(zerolog.LevelErrorValue)
		case zerolog.FatalLevel:
			return colors.RedBold(zerolog.LevelFatalValue)
		case zerolog.PanicLevel:
			return colors.RedBold(zerolog.LevelPanicValue)
		default:
			return s
		}
	}

	// Above debug level, the module key is noise on the console
	if level > zerolog.DebugLevel {
		writer.FieldsExclude = []string{"module"}
	}

	return writer
}
