package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TraceLevel sits below zap's Debug (-1) and is used for per-poll chatter.
const TraceLevel = zapcore.Level(-8)

func lowercaseLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if level == TraceLevel {
		enc.AppendString("trace")
		return
	}
	zapcore.LowercaseLevelEncoder(level, enc)
}

func colorLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if level == TraceLevel {
		enc.AppendString("\x1b[90mTRACE\x1b[0m")
		return
	}
	zapcore.CapitalColorLevelEncoder(level, enc)
}

// Logger embeds zap.Logger and adds Trace level support
type Logger struct {
	*zap.Logger
}

// SugaredLogger embeds zap.SugaredLogger and adds Trace level support
type SugaredLogger struct {
	*zap.SugaredLogger
}

// New creates a logger with the given name.
//
// Output is JSON on stdout unless LOG_FORMAT is "development" or "console".
// The level comes from KANIKO_CONTROLLER_LOG_LEVEL, falling back to LOG_LEVEL.
func New(name string) *Logger {
	logFormat := os.Getenv("LOG_FORMAT")
	isDevelopment := logFormat == "development" || logFormat == "console"

	var cfg zap.Config
	if isDevelopment {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		cfg.EncoderConfig.EncodeLevel = colorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		cfg.EncoderConfig.EncodeLevel = lowercaseLevelEncoder
	}

	logLevel := os.Getenv("KANIKO_CONTROLLER_LOG_LEVEL")
	if logLevel == "" {
		logLevel = os.Getenv("LOG_LEVEL")
	}
	if logLevel != "" {
		level, err := ParseLevel(logLevel)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to parse log level %q: %s\n", logLevel, err)
		} else {
			cfg.Level = zap.NewAtomicLevelAt(level)
		}
	}

	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	// CloudWatch friendly keys
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.LevelKey = "severity"
	cfg.EncoderConfig.NameKey = "logger"
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.StacktraceKey = "stacktrace"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	cfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	cfg.Sampling = nil

	zapLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return &Logger{Logger: zapLogger.Named(name)}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// ParseLevel parses a level name, including "trace".
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "trace":
		return TraceLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}

func (l *Logger) Sugar() *SugaredLogger {
	return &SugaredLogger{SugaredLogger: l.Logger.Sugar()}
}

func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name)}
}

func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

func (l *Logger) Trace(msg string, fields ...zap.Field) {
	l.Log(TraceLevel, msg, fields...)
}

func (s *SugaredLogger) Tracew(msg string, keysAndValues ...any) {
	s.Logw(TraceLevel, msg, keysAndValues...)
}

func (s *SugaredLogger) With(args ...any) *SugaredLogger {
	return &SugaredLogger{SugaredLogger: s.SugaredLogger.With(args...)}
}
