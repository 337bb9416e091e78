package main

import (
	"go.uber.org/zap"

	"github.com/septivank/compost-logbook/internal/config"
	"github.com/septivank/compost-logbook/internal/logging"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
}
