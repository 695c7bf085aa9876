// Package logging wires a structured logr.Logger backed by zap, matching
// the Level/Format configuration knobs used throughout the pipeline.
package logging

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Format selects the zap encoder used for log output.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Level mirrors the project config's LOG_LEVEL values.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// New builds a logr.Logger backed by zap for the given level/format pair.
// It never panics on an unrecognised value, falling back to info/text so a
// bad config field degrades logging verbosity rather than crashing startup.
func New(level Level, format Format) (logr.Logger, error) {
	zapLevel, err := parseLevel(level)
	if err != nil {
		zapLevel = zapcore.InfoLevel
	}

	var encoderCfg zapcore.EncoderConfig
	var encoder zapcore.Encoder
	if format == FormatJSON {
		encoderCfg = zap.NewProductionEncoderConfig()
		encoderCfg.TimeKey = "ts"
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(os.Stderr)), zapLevel)
	zl := zap.New(core, zap.AddCaller())
	return zapr.NewLogger(zl), nil
}

// Discard returns a logger that drops everything, for tests that don't
// care about log output.
func Discard() logr.Logger {
	return logr.Discard()
}

func parseLevel(l Level) (zapcore.Level, error) {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel, nil
	case LevelInfo, "":
		return zapcore.InfoLevel, nil
	case LevelWarn:
		return zapcore.WarnLevel, nil
	case LevelError:
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", l)
	}
}
