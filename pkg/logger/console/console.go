package console

import (
	"os"

	"github.com/charmbracelet/log"
)

// Console writes structured log lines to stderr via charmbracelet/log.
type Console struct {
	logger *log.Logger
}

// Params configures a Console backend.
type Params struct {
	Debug bool
}

// New creates a console logging backend.
func New(params Params) *Console {
	level := log.InfoLevel
	if params.Debug {
		level = log.DebugLevel
	}
	return &Console{
		logger: log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			Level:           level,
		}),
	}
}

// Debug writes a message at DEBUG level.
func (c *Console) Debug(message string, keyvals ...any) {
	c.logger.Debug(message, keyvals...)
}

// Info writes a message at INFO level.
func (c *Console) Info(message string, keyvals ...any) {
	c.logger.Info(message, keyvals...)
}

// Warn writes a message at WARN level.
func (c *Console) Warn(message string, keyvals ...any) {
	c.logger.Warn(message, keyvals...)
}

// Error writes a message at ERROR level.
func (c *Console) Error(message string, keyvals ...any) {
	c.logger.Error(message, keyvals...)
}

// Fatal writes a message at FATAL level and terminates the program.
func (c *Console) Fatal(message string, keyvals ...any) {
	c.logger.Fatal(message, keyvals...)
}
