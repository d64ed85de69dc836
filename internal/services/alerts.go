package services

import (
	"context"

	"creator-automation/backend/pkg/models"
)

// LogAlertSink writes alerts to the log.
type LogAlertSink struct {
	logger Logger
}

// NewLogAlertSink creates a new LogAlertSink.
func NewLogAlertSink(logger Logger) *LogAlertSink {
	return &LogAlertSink{logger: logger}
}

// RaiseAlert logs the alert at a level matching its severity.
func (s *LogAlertSink) RaiseAlert(_ context.Context, alert models.Alert) {
	args := []any{
		"title", alert.Title,
		"severity", string(alert.Severity),
		"source", alert.Source,
		"message", alert.Message,
	}
	if len(alert.Metadata) > 0 {
		args = append(args, "metadata", alert.Metadata)
	}

	switch alert.Severity {
	case models.SeverityCritical, models.SeverityError:
		s.logger.Error("alert raised", args...)
	case models.SeverityWarning:
		s.logger.Warn("alert raised", args...)
	default:
		s.logger.Info("alert raised", args...)
	}
}
