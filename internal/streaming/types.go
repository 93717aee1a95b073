package streaming

import "time"

// EventType names the payload carried by an Event.
type EventType string

const (
	EventTypeDashboard EventType = "dashboard"
	EventTypeError     EventType = "error"
	EventTypeHeartbeat EventType = "heartbeat"
)

// Event is one message pushed to subscribers.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// ErrorEvent is the data of an error event.
type ErrorEvent struct {
	Message string `json:"message"`
}

// NewDashboardEvent wraps a dashboard payload.
func NewDashboardEvent(payload any) Event {
	return Event{Type: EventTypeDashboard, Timestamp: time.Now().UTC(), Data: payload}
}

// NewErrorEvent wraps an error message.
func NewErrorEvent(message string) Event {
	return Event{Type: EventTypeError, Timestamp: time.Now().UTC(), Data: ErrorEvent{Message: message}}
}

// NewHeartbeatEvent returns a keep-alive event.
func NewHeartbeatEvent() Event {
	return Event{Type: EventTypeHeartbeat, Timestamp: time.Now().UTC()}
}
