package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventRegister    EventType = "auth.register"
	EventLogin       EventType = "auth.login"
	EventLoginFailed EventType = "auth.login_failed"

	// Self-service account events
	EventUsernameChange EventType = "account.username_change"
	EventPasswordChange EventType = "account.password_change"
	EventAccountDelete  EventType = "account.delete"

	// Admin events
	EventAdminUsernameChange EventType = "admin.username_change"
	EventAdminUserDelete     EventType = "admin.user_delete"
	EventAdminRoleChange     EventType = "admin.role_change"
	EventAdminTaskDelete     EventType = "admin.task_delete"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	StatusSuccess EventStatus = "success"
	StatusFailure EventStatus = "failure"
)

// Event represents a single audit log entry
type Event struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// ActorID is the authenticated caller; nil for anonymous requests
	ActorID *int64 `json:"actor_id,omitempty"`
	// TargetUserID is the account acted upon when it differs from the actor
	TargetUserID *int64 `json:"target_user_id,omitempty"`
	Username     string `json:"username,omitempty"`

	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// Int64 returns a pointer to v
func Int64(v int64) *int64 {
	return &v
}
