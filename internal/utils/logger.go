package utils

import "go.uber.org/zap"

// NewLogger returns a JSON production logger for EnvProduction and a
// human-readable development logger for anything else.
func NewLogger(env string) (*zap.Logger, error) {
	if env == EnvProduction {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
