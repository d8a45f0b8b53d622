package audit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/danharap/TaskManager-Backend/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records one event
	Log(ctx context.Context, event *Event) error
	// Close flushes and releases the sink
	Close() error
}

// NewEvent creates an event stamped with a fresh ID, the current UTC time and
// the client details of r. r may be nil.
func NewEvent(r *http.Request, eventType EventType, status EventStatus) *Event {
	event := &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Status:    status,
	}
	if r == nil {
		return event
	}

	event.IPAddress = clientIP(r)
	event.UserAgent = r.UserAgent()
	event.RequestID = contextkeys.GetRequestID(r.Context())
	return event
}

// clientIP is the remote host of r. Forwarding headers are not trusted here;
// the proxy address is what was actually observed.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// NopLogger discards every event
type NopLogger struct{}

var _ Logger = NopLogger{}

func (NopLogger) Log(context.Context, *Event) error { return nil }

func (NopLogger) Close() error { return nil }
