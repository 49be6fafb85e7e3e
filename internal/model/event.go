package model

import "time"

// EventType identifies a dispatch feed event.
type EventType string

const (
	EventCallCreated   EventType = "call.created"
	EventCallAssigned  EventType = "call.assigned"
	EventCallCompleted EventType = "call.completed"
	EventCallExpired   EventType = "call.expired"
	EventCallCancelled EventType = "call.cancelled"
	EventDutyChanged   EventType = "duty.changed"
	EventSalaryPaid    EventType = "salary.paid"
)

// Event is a single message on the live dispatch feed.
type Event struct {
	Type      EventType `json:"type"`
	CallID    int64     `json:"call_id,omitempty"`
	PlayerID  string    `json:"player_id,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
