package model

import (
	"math"
	"time"
)

// CallStatus is the lifecycle state of an emergency call.
type CallStatus string

const (
	CallPending   CallStatus = "pending"
	CallAssigned  CallStatus = "assigned"
	CallCompleted CallStatus = "completed"
	CallExpired   CallStatus = "expired"
	CallCancelled CallStatus = "cancelled"
)

// Closed reports whether the status is terminal.
func (s CallStatus) Closed() bool {
	switch s {
	case CallCompleted, CallExpired, CallCancelled:
		return true
	}
	return false
}

// CanTransition reports whether a call may move from s to next.
// pending -> assigned | expired | cancelled
// assigned -> completed | cancelled
func (s CallStatus) CanTransition(next CallStatus) bool {
	switch s {
	case CallPending:
		return next == CallAssigned || next == CallExpired || next == CallCancelled
	case CallAssigned:
		return next == CallCompleted || next == CallCancelled
	}
	return false
}

// Coords is a world position.
type Coords struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Finite reports whether every component is a real coordinate.
func (c Coords) Finite() bool {
	for _, v := range []float64{c.X, c.Y, c.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// DistanceTo returns the Euclidean distance between two positions.
func (c Coords) DistanceTo(o Coords) float64 {
	dx := c.X - o.X
	dy := c.Y - o.Y
	dz := c.Z - o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// EmergencyCall represents a 911 call on the dispatch board.
// A call has at most one assignee for its whole lifetime.
type EmergencyCall struct {
	ID          int64      `json:"id"`
	CallerName  string     `json:"caller_name"`
	Position    Coords     `json:"position"`
	Description string     `json:"description"`
	Status      CallStatus `json:"status"`
	AssigneeID  string     `json:"assignee_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	AssignedAt  *time.Time `json:"assigned_at,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

// Clone returns a copy safe to hand out across the service boundary.
func (c *EmergencyCall) Clone() *EmergencyCall {
	cp := *c
	if c.AssignedAt != nil {
		t := *c.AssignedAt
		cp.AssignedAt = &t
	}
	if c.ClosedAt != nil {
		t := *c.ClosedAt
		cp.ClosedAt = &t
	}
	return &cp
}
