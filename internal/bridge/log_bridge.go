// Package bridge provides Wails Go-JS bindings.
package bridge

import (
	"context"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/netixc/agent-avatar-app/internal/logging"
)

// LogBridge exposes logging to the frontend log panel
type LogBridge struct {
	ctx    context.Context
	logger *logging.Logger
}

// NewLogBridge creates a new log bridge
func NewLogBridge(logger *logging.Logger) *LogBridge {
	return &LogBridge{logger: logger}
}

// Bind sets the Wails context and starts real-time log streaming
func (b *LogBridge) Bind(ctx context.Context) {
	b.ctx = ctx

	b.logger.SetOnLog(func(entry logging.LogEntry) {
		if b.ctx != nil {
			runtime.EventsEmit(b.ctx, "log:entry", entry)
		}
	})
}

// Log logs a message from the frontend
func (b *LogBridge) Log(level, component, message string) {
	switch level {
	case "debug":
		b.logger.Debug(component, message, nil)
	case "warn":
		b.logger.Warn(component, message, nil)
	case "error":
		b.logger.Error(component, message, nil, nil)
	default:
		b.logger.Info(component, message, nil)
	}
}

// GetLogHistory returns recent log entries
func (b *LogBridge) GetLogHistory(limit int) []logging.LogEntry {
	return b.logger.GetHistory(limit)
}

// GetLogPath returns the current log file path
func (b *LogBridge) GetLogPath() string {
	return b.logger.GetLogPath()
}
