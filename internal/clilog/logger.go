// Package clilog builds the zap logger shared by every binary in this
// module. It trades zap's production JSON encoder for a console one
// since these are interactive CLI tools, not long-running services.
package clilog

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console logger. Verbose raises the level to Debug,
// which surfaces per-symbol registrations, per-function emission and
// per-file translation traces that are silenced by default.
func New(verbose bool) *zap.Logger {
	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}

	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(zapcore.AddSync(os.Stderr)), level)
	return zap.New(core)
}
