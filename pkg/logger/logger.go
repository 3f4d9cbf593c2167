// Package logger builds the structured loggers threaded through the
// engine's and the index builder's Config structs.
package logger

import (
	"go.uber.org/zap"
)

// New returns a sugared logger built from zap's production config,
// tagged with the owning service/component name. engine.New and
// index.New receive one of these via their Config; segment and query
// constructors take no logger.
func New(service string) *zap.SugaredLogger {
	base, err := zap.NewProduction()
	if err != nil {
		base = zap.NewNop()
	}
	return base.Sugar().With("service", service)
}

// Nop returns a logger that discards everything, used by tests that
// don't want log noise but still need a non-nil *zap.SugaredLogger.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
