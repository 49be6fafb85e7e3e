package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"ems-dispatch-api/internal/model"
)

func newTestDispatch(t *testing.T) (*DispatchService, *RosterService, *captureBroadcaster) {
	t.Helper()
	bc := &captureBroadcaster{}
	roster := NewRosterService(nil, nil, bc)
	dispatch := NewDispatchService(roster, nil, bc, DefaultDispatchConfig())
	return dispatch, roster, bc
}

func connectOnDuty(t *testing.T, roster *RosterService, name string, pos model.Coords) *model.Player {
	t.Helper()
	ctx := context.Background()
	player, err := roster.Connect(ctx, name, "ems", pos)
	if err != nil {
		t.Fatalf("connect %s: %v", name, err)
	}
	player, err = roster.SetDuty(ctx, player.ID, true, pos)
	if err != nil {
		t.Fatalf("set duty %s: %v", name, err)
	}
	return player
}

func TestCreateCall(t *testing.T) {
	ctx := context.Background()
	dispatch, _, bc := newTestDispatch(t)

	call, err := dispatch.CreateCall(ctx, "Caller", model.Coords{X: 1, Y: 2, Z: 3}, "chest pains")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if call.ID != 1 {
		t.Fatalf("expected id 1, got %d", call.ID)
	}
	if call.Status != model.CallPending {
		t.Fatalf("expected pending, got %s", call.Status)
	}

	second, _ := dispatch.CreateCall(ctx, "Caller", model.Coords{}, "vehicle crash")
	if second.ID != 2 {
		t.Fatalf("ids must increment, got %d", second.ID)
	}

	if events := bc.byType(model.EventCallCreated); len(events) != 2 {
		t.Fatalf("expected 2 created events, got %d", len(events))
	}

	t.Run("validation", func(t *testing.T) {
		if _, err := dispatch.CreateCall(ctx, "x", model.Coords{}, "   "); !errors.Is(err, ErrEmptyDescription) {
			t.Fatalf("expected ErrEmptyDescription, got %v", err)
		}
		long := strings.Repeat("a", 300)
		if _, err := dispatch.CreateCall(ctx, "x", model.Coords{}, long); !errors.Is(err, ErrDescriptionTooLong) {
			t.Fatalf("expected ErrDescriptionTooLong, got %v", err)
		}
		bad := model.Coords{X: math.NaN(), Y: 1, Z: 1}
		if _, err := dispatch.CreateCall(ctx, "x", bad, "hurt"); !errors.Is(err, ErrInvalidPosition) {
			t.Fatalf("expected ErrInvalidPosition, got %v", err)
		}
		if _, err := dispatch.CreateCall(ctx, "x", model.Coords{Z: math.Inf(1)}, "hurt"); !errors.Is(err, ErrInvalidPosition) {
			t.Fatalf("expected ErrInvalidPosition, got %v", err)
		}
	})

	t.Run("anonymous caller", func(t *testing.T) {
		call, err := dispatch.CreateCall(ctx, "", model.Coords{}, "unconscious person")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if call.CallerName != "anonymous" {
			t.Fatalf("expected anonymous caller, got %q", call.CallerName)
		}
	})
}

func TestAssignCall(t *testing.T) {
	ctx := context.Background()
	dispatch, roster, bc := newTestDispatch(t)

	medic := connectOnDuty(t, roster, "Medic", model.Coords{})
	call, _ := dispatch.CreateCall(ctx, "Caller", model.Coords{}, "fall from height")

	assigned, err := dispatch.AssignCall(ctx, call.ID, medic.ID)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if assigned.Status != model.CallAssigned {
		t.Fatalf("expected assigned, got %s", assigned.Status)
	}
	if assigned.AssigneeID != medic.ID {
		t.Fatalf("wrong assignee")
	}
	if assigned.AssignedAt == nil {
		t.Fatalf("assigned_at not set")
	}

	if events := bc.byType(model.EventCallAssigned); len(events) != 1 {
		t.Fatalf("expected 1 assigned event, got %d", len(events))
	}

	t.Run("at most one assignee", func(t *testing.T) {
		other := connectOnDuty(t, roster, "Other", model.Coords{})
		if _, err := dispatch.AssignCall(ctx, call.ID, other.ID); !errors.Is(err, ErrCallNotPending) {
			t.Fatalf("expected ErrCallNotPending, got %v", err)
		}

		got, _ := dispatch.GetCall(call.ID)
		if got.AssigneeID != medic.ID {
			t.Fatalf("assignee must not change")
		}
	})

	t.Run("off-duty player rejected", func(t *testing.T) {
		off, _ := roster.Connect(ctx, "OffDuty", "ems", model.Coords{})
		pending, _ := dispatch.CreateCall(ctx, "Caller", model.Coords{}, "overdose")
		if _, err := dispatch.AssignCall(ctx, pending.ID, off.ID); !errors.Is(err, ErrOffDuty) {
			t.Fatalf("expected ErrOffDuty, got %v", err)
		}
	})

	t.Run("unknown call", func(t *testing.T) {
		if _, err := dispatch.AssignCall(ctx, 999, medic.ID); !errors.Is(err, ErrCallNotFound) {
			t.Fatalf("expected ErrCallNotFound, got %v", err)
		}
	})

	t.Run("unknown player", func(t *testing.T) {
		pending, _ := dispatch.CreateCall(ctx, "Caller", model.Coords{}, "allergic reaction")
		if _, err := dispatch.AssignCall(ctx, pending.ID, "missing"); !errors.Is(err, ErrPlayerNotFound) {
			t.Fatalf("expected ErrPlayerNotFound, got %v", err)
		}
	})
}

func TestAssignNearest(t *testing.T) {
	ctx := context.Background()
	dispatch, roster, _ := newTestDispatch(t)

	connectOnDuty(t, roster, "Far", model.Coords{X: 500})
	near := connectOnDuty(t, roster, "Near", model.Coords{X: 10})

	call, _ := dispatch.CreateCall(ctx, "Caller", model.Coords{}, "cardiac arrest")

	assigned, unit, err := dispatch.AssignNearest(ctx, call.ID)
	if err != nil {
		t.Fatalf("assign nearest: %v", err)
	}
	if unit.ID != near.ID {
		t.Fatalf("expected nearest unit, got %s", unit.Name)
	}
	if assigned.AssigneeID != near.ID {
		t.Fatalf("call not assigned to nearest unit")
	}

	t.Run("no units", func(t *testing.T) {
		empty := NewDispatchService(NewRosterService(nil, nil, nil), nil, nil, DefaultDispatchConfig())
		call, _ := empty.CreateCall(ctx, "Caller", model.Coords{}, "stab wound")
		if _, _, err := empty.AssignNearest(ctx, call.ID); !errors.Is(err, ErrNoUnitsInService) {
			t.Fatalf("expected ErrNoUnitsInService, got %v", err)
		}
	})
}

func TestCompleteCall(t *testing.T) {
	ctx := context.Background()
	dispatch, roster, bc := newTestDispatch(t)

	medic := connectOnDuty(t, roster, "Medic", model.Coords{})
	call, _ := dispatch.CreateCall(ctx, "Caller", model.Coords{}, "burn injury")
	dispatch.AssignCall(ctx, call.ID, medic.ID)

	done, err := dispatch.CompleteCall(ctx, call.ID, medic.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != model.CallCompleted {
		t.Fatalf("expected completed, got %s", done.Status)
	}
	if done.ClosedAt == nil {
		t.Fatalf("closed_at not set")
	}

	// Rank 1 reward credited
	updated, _ := roster.Get(medic.ID)
	if want := model.Ranks[1].CallReward; updated.Earnings != want {
		t.Fatalf("expected reward %d, got %d", want, updated.Earnings)
	}
	if updated.CallsCompleted != 1 {
		t.Fatalf("call count not incremented")
	}

	if events := bc.byType(model.EventCallCompleted); len(events) != 1 {
		t.Fatalf("expected 1 completed event, got %d", len(events))
	}

	t.Run("only assignee may complete", func(t *testing.T) {
		other := connectOnDuty(t, roster, "Other", model.Coords{})
		c, _ := dispatch.CreateCall(ctx, "Caller", model.Coords{}, "seizure")
		dispatch.AssignCall(ctx, c.ID, medic.ID)
		if _, err := dispatch.CompleteCall(ctx, c.ID, other.ID); !errors.Is(err, ErrNotAssignee) {
			t.Fatalf("expected ErrNotAssignee, got %v", err)
		}
	})

	t.Run("pending call cannot be completed", func(t *testing.T) {
		c, _ := dispatch.CreateCall(ctx, "Caller", model.Coords{}, "broken leg")
		if _, err := dispatch.CompleteCall(ctx, c.ID, medic.ID); !errors.Is(err, ErrNotAssignee) {
			t.Fatalf("expected ErrNotAssignee for unassigned call, got %v", err)
		}
	})

	t.Run("closed call stays closed", func(t *testing.T) {
		if _, err := dispatch.CompleteCall(ctx, call.ID, medic.ID); !errors.Is(err, ErrCallClosed) {
			t.Fatalf("expected ErrCallClosed, got %v", err)
		}
	})
}

func TestCancelCall(t *testing.T) {
	ctx := context.Background()
	dispatch, roster, _ := newTestDispatch(t)

	medic := connectOnDuty(t, roster, "Medic", model.Coords{})
	supervisor := connectOnDuty(t, roster, "Boss", model.Coords{})
	roster.SetRank(ctx, "", supervisor.ID, 4)

	t.Run("caller cancels own call", func(t *testing.T) {
		call, _ := dispatch.CreateCall(ctx, "Dave", model.Coords{}, "minor cut")
		cancelled, err := dispatch.CancelCall(ctx, call.ID, "", "Dave")
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if cancelled.Status != model.CallCancelled {
			t.Fatalf("expected cancelled, got %s", cancelled.Status)
		}
	})

	t.Run("assignee cancels", func(t *testing.T) {
		call, _ := dispatch.CreateCall(ctx, "Dave", model.Coords{}, "false alarm")
		dispatch.AssignCall(ctx, call.ID, medic.ID)
		if _, err := dispatch.CancelCall(ctx, call.ID, medic.ID, ""); err != nil {
			t.Fatalf("assignee cancel: %v", err)
		}
	})

	t.Run("supervisor cancels someone else's call", func(t *testing.T) {
		call, _ := dispatch.CreateCall(ctx, "Dave", model.Coords{}, "prank call")
		if _, err := dispatch.CancelCall(ctx, call.ID, supervisor.ID, ""); err != nil {
			t.Fatalf("supervisor cancel: %v", err)
		}
	})

	t.Run("rank-and-file cannot cancel others' calls", func(t *testing.T) {
		call, _ := dispatch.CreateCall(ctx, "Dave", model.Coords{}, "choking")
		if _, err := dispatch.CancelCall(ctx, call.ID, medic.ID, ""); !errors.Is(err, ErrNotSupervisor) {
			t.Fatalf("expected ErrNotSupervisor, got %v", err)
		}
	})

	t.Run("wrong caller name rejected", func(t *testing.T) {
		call, _ := dispatch.CreateCall(ctx, "Dave", model.Coords{}, "drowning")
		if _, err := dispatch.CancelCall(ctx, call.ID, "", "Mallory"); !errors.Is(err, ErrNotSupervisor) {
			t.Fatalf("expected ErrNotSupervisor, got %v", err)
		}
	})
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	bc := &captureBroadcaster{}
	roster := NewRosterService(nil, nil, bc)

	cfg := DefaultDispatchConfig()
	cfg.CallExpiry = time.Minute
	cfg.CallRetention = time.Minute
	dispatch := NewDispatchService(roster, nil, bc, cfg)

	stale, _ := dispatch.CreateCall(ctx, "Caller", model.Coords{}, "old call")
	fresh, _ := dispatch.CreateCall(ctx, "Caller", model.Coords{}, "new call")

	// Backdate the first call past the expiry window
	dispatch.mu.Lock()
	dispatch.calls[stale.ID].CreatedAt = time.Now().Add(-2 * time.Minute)
	dispatch.mu.Unlock()

	expired, pruned := dispatch.Sweep(ctx)
	if expired != 1 || pruned != 0 {
		t.Fatalf("expected 1 expired, 0 pruned, got %d, %d", expired, pruned)
	}

	got, err := dispatch.GetCall(stale.ID)
	if err != nil {
		t.Fatalf("expired call should stay on board during retention: %v", err)
	}
	if got.Status != model.CallExpired {
		t.Fatalf("expected expired, got %s", got.Status)
	}

	if f, _ := dispatch.GetCall(fresh.ID); f.Status != model.CallPending {
		t.Fatalf("fresh call must stay pending")
	}

	if events := bc.byType(model.EventCallExpired); len(events) != 1 {
		t.Fatalf("expected 1 expired event, got %d", len(events))
	}

	t.Run("prune after retention", func(t *testing.T) {
		dispatch.mu.Lock()
		closed := time.Now().Add(-2 * time.Minute)
		dispatch.calls[stale.ID].ClosedAt = &closed
		dispatch.mu.Unlock()

		expired, pruned := dispatch.Sweep(ctx)
		if expired != 0 || pruned != 1 {
			t.Fatalf("expected 0 expired, 1 pruned, got %d, %d", expired, pruned)
		}

		if _, err := dispatch.GetCall(stale.ID); !errors.Is(err, ErrCallNotFound) {
			t.Fatalf("expected ErrCallNotFound after prune, got %v", err)
		}
	})
}

func TestActiveCallsOrdering(t *testing.T) {
	ctx := context.Background()
	dispatch, _, _ := newTestDispatch(t)

	for i := 0; i < 5; i++ {
		dispatch.CreateCall(ctx, "Caller", model.Coords{}, "incident")
	}

	calls := dispatch.ActiveCalls()
	if len(calls) != 5 {
		t.Fatalf("expected 5 calls, got %d", len(calls))
	}
	for i := 1; i < len(calls); i++ {
		if calls[i].ID <= calls[i-1].ID {
			t.Fatalf("calls not ordered by id")
		}
	}
}
