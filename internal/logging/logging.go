// Package logging builds the process logger.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

type Config struct {
	// Level is a zap level name: debug, info, warn or error. Empty means info.
	Level string `yaml:"level"`
	// Development switches to the console encoder and enables stack traces on
	// warnings.
	Development bool `yaml:"development"`
}

func New(cfg Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		lvl, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		zc.Level = lvl
	}
	return zc.Build()
}
