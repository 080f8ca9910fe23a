package logging

import (
	"strings"

	"go.uber.org/zap"

	"github.com/vocaprep-ai/vocaprep-agent/pkg/pipeline"
)

// Config selects the zap preset and verbosity for the agent.
type Config struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json", "console"
}

// ZapLogger adapts a zap SugaredLogger to the pipeline Logger interface.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

var _ pipeline.Logger = (*ZapLogger)(nil)

// New builds a ZapLogger from the given config. An unknown format falls
// back to the console preset, an unparsable level falls back to info.
func New(cfg Config) (*ZapLogger, error) {
	var zapConfig zap.Config
	switch strings.ToLower(cfg.Format) {
	case "json":
		zapConfig = zap.NewProductionConfig()
	default:
		zapConfig = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapConfig.Level = level

	logger, err := zapConfig.Build(
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zap.ErrorLevel),
	)
	if err != nil {
		return nil, err
	}
	return &ZapLogger{sugar: logger.Sugar()}, nil
}

func (l *ZapLogger) Debug(msg string, args ...interface{}) { l.sugar.Debugw(msg, args...) }
func (l *ZapLogger) Info(msg string, args ...interface{})  { l.sugar.Infow(msg, args...) }
func (l *ZapLogger) Warn(msg string, args ...interface{})  { l.sugar.Warnw(msg, args...) }
func (l *ZapLogger) Error(msg string, args ...interface{}) { l.sugar.Errorw(msg, args...) }

// Sync flushes buffered entries. Sync can fail on some platforms when
// stderr is a terminal; callers may ignore the error.
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}
