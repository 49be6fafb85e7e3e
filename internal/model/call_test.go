package model

import (
	"math"
	"testing"
	"time"
)

func TestCallStatusTransitions(t *testing.T) {
	cases := []struct {
		from CallStatus
		to   CallStatus
		want bool
	}{
		{CallPending, CallAssigned, true},
		{CallPending, CallExpired, true},
		{CallPending, CallCancelled, true},
		{CallPending, CallCompleted, false},
		{CallAssigned, CallCompleted, true},
		{CallAssigned, CallCancelled, true},
		{CallAssigned, CallExpired, false},
		{CallAssigned, CallPending, false},
		{CallCompleted, CallPending, false},
		{CallExpired, CallAssigned, false},
		{CallCancelled, CallCompleted, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestCallStatusClosed(t *testing.T) {
	closed := []CallStatus{CallCompleted, CallExpired, CallCancelled}
	for _, s := range closed {
		if !s.Closed() {
			t.Errorf("%s should be closed", s)
		}
	}

	open := []CallStatus{CallPending, CallAssigned}
	for _, s := range open {
		if s.Closed() {
			t.Errorf("%s should not be closed", s)
		}
	}
}

func TestCoordsDistanceTo(t *testing.T) {
	a := Coords{X: 0, Y: 0, Z: 0}
	b := Coords{X: 3, Y: 4, Z: 0}
	if d := a.DistanceTo(b); math.Abs(d-5) > 1e-9 {
		t.Fatalf("expected distance 5, got %f", d)
	}

	c := Coords{X: 1, Y: 2, Z: 2}
	if d := a.DistanceTo(c); math.Abs(d-3) > 1e-9 {
		t.Fatalf("expected distance 3, got %f", d)
	}

	if d := a.DistanceTo(a); d != 0 {
		t.Fatalf("expected zero distance, got %f", d)
	}
}

func TestCallClone(t *testing.T) {
	assigned := time.Now()
	call := &EmergencyCall{
		ID:         7,
		Status:     CallAssigned,
		AssigneeID: "unit-1",
		AssignedAt: &assigned,
	}

	cp := call.Clone()
	*cp.AssignedAt = cp.AssignedAt.Add(time.Hour)
	cp.Status = CallCompleted

	if call.Status != CallAssigned {
		t.Fatalf("clone mutated original status")
	}
	if !call.AssignedAt.Equal(assigned) {
		t.Fatalf("clone mutated original timestamp")
	}
}
