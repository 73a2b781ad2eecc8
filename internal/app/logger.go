package app

import (
	"github.com/charlesng35/teacherrate/pkg/logger"
)

// ConfigureLogging installs the process logger described by the server
// settings.
func ConfigureLogging(cfg ServerConfig) error {
	_, err := logger.Configure(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	return err
}
