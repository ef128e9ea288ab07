package main

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger writes errors to stderr and everything else to stdout.
func newLogger(verbose bool) *zap.Logger {
	var minLevel = zapcore.InfoLevel
	if verbose {
		minLevel = zapcore.DebugLevel
	}
	isErrorLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})
	isInfoLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= minLevel && lvl < zapcore.ErrorLevel
	})

	config := zap.NewDevelopmentEncoderConfig()
	config.EncodeTime = zapcore.RFC3339TimeEncoder
	encoder := zapcore.NewConsoleEncoder(config)

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), isErrorLevel),
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), isInfoLevel),
	)
	return zap.New(core, zap.AddCaller())
}
