package loggingtest

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/replicate/kaniko-controller/internal/logging"
)

func testLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if level == logging.TraceLevel {
		enc.AppendString("TRACE")
		return
	}
	zapcore.CapitalLevelEncoder(level, enc)
}

// NewTestLogger creates a logger that writes to t.Logf, trace level included.
func NewTestLogger(t *testing.T) *logging.Logger {
	t.Helper()

	zapLogger := zaptest.NewLogger(t,
		zaptest.Level(logging.TraceLevel),
		zaptest.WrapOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
				TimeKey:        "T",
				LevelKey:       "L",
				NameKey:        "N",
				CallerKey:      "C",
				MessageKey:     "M",
				StacktraceKey:  "S",
				LineEnding:     zapcore.DefaultLineEnding,
				EncodeLevel:    testLevelEncoder,
				EncodeTime:     zapcore.ISO8601TimeEncoder,
				EncodeDuration: zapcore.StringDurationEncoder,
				EncodeCaller:   zapcore.ShortCallerEncoder,
			})
			return zapcore.NewCore(enc, zapcore.AddSync(zaptest.NewTestingWriter(t)), logging.TraceLevel)
		})),
	)
	return &logging.Logger{Logger: zapLogger}
}

// NewObservedLogger returns a logger whose entries can be asserted on.
func NewObservedLogger(t *testing.T) (*logging.Logger, *observer.ObservedLogs) {
	t.Helper()

	core, logs := observer.New(logging.TraceLevel)
	return &logging.Logger{Logger: zap.New(core)}, logs
}
