package audit

import (
	"context"

	"github.com/danharap/TaskManager-Backend/pkg/observability"
)

// StructuredLogger writes audit events to the application log
type StructuredLogger struct {
	logger *observability.Logger
}

var _ Logger = (*StructuredLogger)(nil)

// NewStructuredLogger creates a logger that emits one "audit event" line per event
func NewStructuredLogger(logger *observability.Logger) *StructuredLogger {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &StructuredLogger{logger: logger}
}

// Log writes the event at info level, or warn level for failures
func (l *StructuredLogger) Log(_ context.Context, event *Event) error {
	fields := map[string]interface{}{
		"audit":        true,
		"audit_id":     event.ID,
		"event_type":   string(event.Type),
		"event_status": string(event.Status),
	}
	if event.ActorID != nil {
		fields["actor_id"] = *event.ActorID
	}
	if event.TargetUserID != nil {
		fields["target_user_id"] = *event.TargetUserID
	}
	if event.Username != "" {
		fields["username"] = event.Username
	}
	if event.IPAddress != "" {
		fields["client_ip"] = event.IPAddress
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}

	entry := l.logger.WithFields(fields)
	msg := "audit event"
	if event.Message != "" {
		msg = "audit event: " + event.Message
	}
	if event.Status == StatusFailure {
		entry.Warn(msg)
	} else {
		entry.Info(msg)
	}
	return nil
}

// Close is a no-op; the application logger outlives the audit trail
func (l *StructuredLogger) Close() error {
	return nil
}
