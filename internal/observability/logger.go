// Package observability builds the server's structured logger. An MCP
// server owns stdout for the protocol stream, so logs go to a rotated file
// only; stderr gets warnings and worse for interactive debugging.
package observability

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"formpilot/internal/config"
)

// NewLogger constructs the logger from config. The returned sync function
// flushes buffered entries and is safe to defer.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, func(), error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core
	if cfg.File != "" {
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), fileWriter, level))
	}

	stderrEnc := zap.NewDevelopmentEncoderConfig()
	cores = append(cores, zapcore.NewCore(
		zapcore.NewConsoleEncoder(stderrEnc),
		zapcore.Lock(os.Stderr),
		zap.WarnLevel,
	))

	logger := zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zap.ErrorLevel))
	return logger, func() { _ = logger.Sync() }, nil
}
