package logger

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a sugared zap logger. Warn and above are optionally mirrored
// to a Telegram ops thread so operators see problems without tailing stdout.
type Logger struct {
	ZapLogger   *zap.SugaredLogger
	atomicLevel zap.AtomicLevel
	mirrorOps   bool
}

type Config struct {
	Level          string
	Environment    string
	EnableTelegram bool
}

func NewLogger(cfg Config) (*Logger, error) {
	logLevel := zap.InfoLevel
	switch strings.ToLower(cfg.Level) {
	case "debug":
		logLevel = zap.DebugLevel
	case "info", "":
		logLevel = zap.InfoLevel
	case "warn", "warning":
		logLevel = zap.WarnLevel
	case "error":
		logLevel = zap.ErrorLevel
	default:
		fmt.Printf("WARN: invalid log level %q, defaulting to INFO\n", cfg.Level)
	}

	atomicLevel := zap.NewAtomicLevelAt(logLevel)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.LevelKey = "severity"
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Environment) == "production" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), atomicLevel)

	// AddCallerSkip(1) so the caller column points at the code calling these
	// wrapper methods, not at the wrappers.
	zapLogger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))

	mirror := cfg.EnableTelegram
	if mirror {
		if err := initOpsMirror(); err != nil {
			fmt.Printf("WARN: Telegram log mirror disabled: %v\n", err)
			mirror = false
		}
	}

	l := &Logger{
		ZapLogger:   zapLogger.Sugar(),
		atomicLevel: atomicLevel,
		mirrorOps:   mirror,
	}
	l.ZapLogger.Infof("Logger initialized. Level: %s, Telegram mirror: %t", logLevel.String(), mirror)
	return l, nil
}

// NewNop returns a logger that discards everything. Test helper.
func NewNop() *Logger {
	return &Logger{
		ZapLogger:   zap.NewNop().Sugar(),
		atomicLevel: zap.NewAtomicLevelAt(zap.InfoLevel),
	}
}

func (l *Logger) Zap() *zap.SugaredLogger {
	return l.ZapLogger
}

// formatKeyValues renders structured fields for the Telegram mirror. Values
// go in backticks; escaping is the delivery side's problem.
func formatKeyValues(keysAndValues ...interface{}) string {
	if len(keysAndValues) == 0 {
		return ""
	}
	if len(keysAndValues)%2 != 0 {
		keysAndValues = append(keysAndValues, "MISSING")
	}

	var sb strings.Builder
	sb.WriteString(" |")
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprintf("%v", keysAndValues[i])
		var val string
		if err, ok := keysAndValues[i+1].(error); ok {
			val = err.Error()
		} else {
			val = fmt.Sprintf("%v", keysAndValues[i+1])
		}
		sb.WriteString(fmt.Sprintf(" %s=`%s`", key, val))
	}
	return sb.String()
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.ZapLogger.Debugw(msg, keysAndValues...)
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.ZapLogger.Infow(msg, keysAndValues...)
}

func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.ZapLogger.Warnw(msg, keysAndValues...)
	if l.mirrorOps {
		go sendOpsMessage(fmt.Sprintf("🟡 *WARN:* %s%s", msg, formatKeyValues(keysAndValues...)))
	}
}

func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.ZapLogger.Errorw(msg, keysAndValues...)
	if l.mirrorOps {
		go sendOpsMessage(fmt.Sprintf("🔴 *ERROR:* %s%s", msg, formatKeyValues(keysAndValues...)))
	}
}

func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	if l.mirrorOps {
		// Synchronous on the fatal path; the process is about to exit.
		sendOpsMessage(fmt.Sprintf("💀 *FATAL:* %s%s", msg, formatKeyValues(keysAndValues...)))
		time.Sleep(1 * time.Second)
	}
	l.ZapLogger.Fatalw(msg, keysAndValues...)
}

func (l *Logger) SetLevel(level string) {
	logLevel := zap.InfoLevel
	switch strings.ToLower(level) {
	case "debug":
		logLevel = zap.DebugLevel
	case "info":
		logLevel = zap.InfoLevel
	case "warn", "warning":
		logLevel = zap.WarnLevel
	case "error":
		logLevel = zap.ErrorLevel
	default:
		l.ZapLogger.Warnf("invalid log level %q provided to SetLevel, level unchanged", level)
		return
	}
	l.atomicLevel.SetLevel(logLevel)
	l.ZapLogger.Infof("Logger level changed to: %s", logLevel.String())
}
