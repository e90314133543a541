// Package logging builds the zap logger shared by the service packages.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options select the logger flavor.
type Options struct {
	// Debug lowers the level to debug.
	Debug bool
	// Development switches to the console encoder with caller info.
	Development bool
	// Quiet raises the level to warn. Debug wins over Quiet.
	Quiet bool
}

// New builds a logger writing to stderr.
func New(opt Options) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if opt.Development {
		config = zap.NewDevelopmentConfig()
	}
	switch {
	case opt.Debug:
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case opt.Quiet:
		config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
