// filepath: internal/audit/logger_auditor.go
// Package audit records upload, delete and heartbeat events.
package audit

import (
	"context"

	"github.com/sirupsen/logrus"

	"photogallery/internal/logging"
	"photogallery/internal/services"
)

// Ensure LoggerAuditor implements services.Auditor
var _ services.Auditor = (*LoggerAuditor)(nil)

// LoggerAuditor writes audit events to the application log.
type LoggerAuditor struct {
	enabled bool
	logger  *logrus.Logger // nil means logging.Log at the time of the call
}

// NewLoggerAuditor creates a new instance of LoggerAuditor.
func NewLoggerAuditor(enabled bool) *LoggerAuditor {
	return &LoggerAuditor{enabled: enabled}
}

// WithLogger directs events to l instead of the global logger.
func (a *LoggerAuditor) WithLogger(l *logrus.Logger) *LoggerAuditor {
	a.logger = l
	return a
}

// Log records an event if auditing is enabled. Details are flattened into
// "detail.<key>" fields.
func (a *LoggerAuditor) Log(ctx context.Context, action string, actor string, resource string, details map[string]interface{}) {
	if !a.enabled {
		return
	}

	fields := logrus.Fields{
		"audit_action":   action,
		"audit_actor":    actor,
		"audit_resource": resource,
	}
	for k, v := range details {
		fields["detail."+k] = v
	}

	l := a.logger
	if l == nil {
		l = logging.Log
	}
	l.WithContext(ctx).WithFields(fields).Info("AUDIT EVENT")
}
