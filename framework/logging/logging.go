// Package logging builds the application's structured zap logger.
package logging

import (
	"go.uber.org/zap"
)

// New returns a production logger, or a development logger when debug is
// set. Falls back to a no-op logger if construction fails.
func New(debug bool) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
