package utils

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/cppla/discussion/config"
)

var (
	// Logger is the global structured logger
	Logger = zap.NewNop()
	// Sugar is a sugared logger for convenience
	Sugar = Logger.Sugar()
)

// InitLogger installs the global logger: JSON to stdout plus a rolling file when Log.Path is set.
func InitLogger(c config.LogSection) error {
	l, err := newLogger(c.Level, c.Path, c, true)
	if err != nil {
		return err
	}
	Logger = l
	Sugar = Logger.Sugar()
	return nil
}

// NewRollingFileLogger returns a logger writing only to the rolling file at path,
// sized like the application log. Used for the gin access log.
func NewRollingFileLogger(path string, c config.LogSection) (*zap.Logger, error) {
	if path == "" {
		return Logger, nil
	}
	return newLogger(c.Level, path, c, false)
}

func newLogger(levelName, path string, c config.LogSection, console bool) (*zap.Logger, error) {
	level := parseLevel(levelName)
	enabler := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= level })
	enc := zapcore.NewJSONEncoder(encoderConfig())

	var cores []zapcore.Core
	if console {
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(os.Stdout), enabler))
	}
	if path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		lj := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    nz(c.MaxSizeMB, 100), // megabytes
			MaxBackups: nz(c.MaxBackups, 3),
			MaxAge:     nz(c.MaxAgeDays, 7), // days
			Compress:   c.Compress,
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(lj), enabler))
	}

	opts := []zap.Option{zap.AddCaller()}
	if levelName == "debug" {
		opts = append(opts, zap.Development())
	}
	return zap.New(zapcore.NewTee(cores...), opts...), nil
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     timeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05.000"))
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "silent":
		return zapcore.FatalLevel + 1
	default:
		return zapcore.InfoLevel
	}
}

func nz(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
