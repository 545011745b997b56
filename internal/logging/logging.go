package logging

import "go.uber.org/zap"

// New builds the production logger shared by both binaries.
func New(service string) (*zap.Logger, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", service)), nil
}
