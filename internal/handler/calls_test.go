package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"ems-dispatch-api/internal/handler"
	"ems-dispatch-api/internal/model"
	"ems-dispatch-api/internal/router"
	"ems-dispatch-api/internal/service"

	"github.com/go-chi/chi/v5"
)

// envelope mirrors the response wrapper used by every endpoint.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    *struct {
		Page  int   `json:"page"`
		Limit int   `json:"limit"`
		Total int64 `json:"total"`
	} `json:"meta"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()

	roster := service.NewRosterService(nil, nil, nil)
	dispatch := service.NewDispatchService(roster, nil, nil, service.DefaultDispatchConfig())

	return router.New(router.Config{
		Handler:        handler.New("test"),
		SessionHandler: handler.NewSessionHandler(roster, nil),
		RosterHandler:  handler.NewRosterHandler(roster),
		CallHandler:    handler.NewCallHandler(dispatch),
	})
}

func doJSON(t *testing.T, mux *chi.Mux, method, path string, body interface{}) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	} else {
		buf.WriteString("{}")
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode response %q: %v", method, path, rec.Body.String(), err)
	}
	return rec.Code, env
}

// connectOnDuty registers a player and toggles them on duty, returning the id.
func connectOnDuty(t *testing.T, mux *chi.Mux, name string) string {
	t.Helper()

	status, env := doJSON(t, mux, http.MethodPost, "/api/v1/session", map[string]interface{}{
		"name": name,
		"job":  "ems",
	})
	if status != http.StatusCreated {
		t.Fatalf("connect %s: status %d", name, status)
	}

	var resp struct {
		Player model.Player `json:"player"`
	}
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode connect response: %v", err)
	}

	status, _ = doJSON(t, mux, http.MethodPost, "/api/v1/roster/"+resp.Player.ID+"/duty", map[string]interface{}{
		"on_duty": true,
	})
	if status != http.StatusOK {
		t.Fatalf("duty toggle: status %d", status)
	}
	return resp.Player.ID
}

func TestCallLifecycleOverHTTP(t *testing.T) {
	mux := newTestRouter(t)
	medicID := connectOnDuty(t, mux, "Medic One")

	// Create
	status, env := doJSON(t, mux, http.MethodPost, "/api/v1/calls", map[string]interface{}{
		"caller_name": "Civilian",
		"description": "injured pedestrian on Vinewood Blvd",
		"position":    map[string]float64{"x": 100, "y": 200, "z": 30},
	})
	if status != http.StatusCreated || !env.Success {
		t.Fatalf("create call: status %d, env %+v", status, env)
	}

	var call model.EmergencyCall
	if err := json.Unmarshal(env.Data, &call); err != nil {
		t.Fatalf("decode call: %v", err)
	}
	if call.ID != 1 || call.Status != model.CallPending {
		t.Fatalf("unexpected new call: %+v", call)
	}

	// Respond
	status, env = doJSON(t, mux, http.MethodPost, fmt.Sprintf("/api/v1/calls/%d/respond", call.ID), map[string]string{
		"player_id": medicID,
	})
	if status != http.StatusOK {
		t.Fatalf("respond: status %d", status)
	}
	if err := json.Unmarshal(env.Data, &call); err != nil {
		t.Fatalf("decode assigned call: %v", err)
	}
	if call.Status != model.CallAssigned || call.AssigneeID != medicID {
		t.Fatalf("call not assigned to responder: %+v", call)
	}

	// Complete
	status, env = doJSON(t, mux, http.MethodPost, fmt.Sprintf("/api/v1/calls/%d/complete", call.ID), map[string]string{
		"player_id": medicID,
	})
	if status != http.StatusOK {
		t.Fatalf("complete: status %d", status)
	}
	if err := json.Unmarshal(env.Data, &call); err != nil {
		t.Fatalf("decode completed call: %v", err)
	}
	if call.Status != model.CallCompleted {
		t.Fatalf("call not completed: %+v", call)
	}

	// Responder got the rank 1 completion reward
	status, env = doJSON(t, mux, http.MethodGet, "/api/v1/roster/"+medicID, nil)
	if status != http.StatusOK {
		t.Fatalf("get player: status %d", status)
	}
	var got struct {
		Player model.Player `json:"player"`
	}
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("decode player: %v", err)
	}
	if got.Player.Earnings != model.Ranks[1].CallReward {
		t.Fatalf("expected reward %d, got %d", model.Ranks[1].CallReward, got.Player.Earnings)
	}
	if got.Player.CallsCompleted != 1 {
		t.Fatalf("expected 1 completed call, got %d", got.Player.CallsCompleted)
	}
}

func TestCallErrorsOverHTTP(t *testing.T) {
	mux := newTestRouter(t)
	medicID := connectOnDuty(t, mux, "Medic One")
	otherID := connectOnDuty(t, mux, "Medic Two")

	status, env := doJSON(t, mux, http.MethodPost, "/api/v1/calls", map[string]interface{}{
		"description": "chest pains",
	})
	if status != http.StatusCreated {
		t.Fatalf("create call: status %d", status)
	}
	var call model.EmergencyCall
	if err := json.Unmarshal(env.Data, &call); err != nil {
		t.Fatalf("decode call: %v", err)
	}

	t.Run("unknown call is 404", func(t *testing.T) {
		status, env := doJSON(t, mux, http.MethodGet, "/api/v1/calls/999", nil)
		if status != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", status)
		}
		if env.Success || env.Error == nil || env.Error.Code != "NOT_FOUND" {
			t.Fatalf("unexpected error envelope: %+v", env)
		}
	})

	t.Run("bad call id is 400", func(t *testing.T) {
		status, env := doJSON(t, mux, http.MethodGet, "/api/v1/calls/abc", nil)
		if status != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", status)
		}
		if env.Error == nil || env.Error.Code != "BAD_REQUEST" {
			t.Fatalf("unexpected error envelope: %+v", env)
		}
	})

	t.Run("empty description is 400", func(t *testing.T) {
		status, _ := doJSON(t, mux, http.MethodPost, "/api/v1/calls", map[string]interface{}{
			"description": "   ",
		})
		if status != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", status)
		}
	})

	t.Run("second responder gets conflict", func(t *testing.T) {
		status, _ := doJSON(t, mux, http.MethodPost, fmt.Sprintf("/api/v1/calls/%d/respond", call.ID), map[string]string{
			"player_id": medicID,
		})
		if status != http.StatusOK {
			t.Fatalf("first respond: status %d", status)
		}

		status, env := doJSON(t, mux, http.MethodPost, fmt.Sprintf("/api/v1/calls/%d/respond", call.ID), map[string]string{
			"player_id": otherID,
		})
		if status != http.StatusConflict {
			t.Fatalf("expected 409, got %d", status)
		}
		if env.Error == nil || env.Error.Code != "CALL_NOT_PENDING" {
			t.Fatalf("unexpected error envelope: %+v", env)
		}
	})

	t.Run("only assignee may complete", func(t *testing.T) {
		status, env := doJSON(t, mux, http.MethodPost, fmt.Sprintf("/api/v1/calls/%d/complete", call.ID), map[string]string{
			"player_id": otherID,
		})
		if status != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", status)
		}
		if env.Error == nil || env.Error.Code != "FORBIDDEN" {
			t.Fatalf("unexpected error envelope: %+v", env)
		}
	})
}

func TestAssignNearestOverHTTP(t *testing.T) {
	mux := newTestRouter(t)

	nearID := connectOnDuty(t, mux, "Near Medic")
	farID := connectOnDuty(t, mux, "Far Medic")

	doJSON(t, mux, http.MethodPost, "/api/v1/roster/"+nearID+"/position", map[string]interface{}{
		"position": map[string]float64{"x": 10, "y": 10, "z": 0},
	})
	doJSON(t, mux, http.MethodPost, "/api/v1/roster/"+farID+"/position", map[string]interface{}{
		"position": map[string]float64{"x": 5000, "y": 5000, "z": 0},
	})

	status, env := doJSON(t, mux, http.MethodPost, "/api/v1/calls", map[string]interface{}{
		"description": "vehicle collision",
		"position":    map[string]float64{"x": 0, "y": 0, "z": 0},
	})
	if status != http.StatusCreated {
		t.Fatalf("create call: status %d", status)
	}
	var call model.EmergencyCall
	if err := json.Unmarshal(env.Data, &call); err != nil {
		t.Fatalf("decode call: %v", err)
	}

	// Empty player_id dispatches the closest on-duty unit
	status, env = doJSON(t, mux, http.MethodPost, fmt.Sprintf("/api/v1/calls/%d/assign", call.ID), map[string]string{})
	if status != http.StatusOK {
		t.Fatalf("assign nearest: status %d", status)
	}

	var resp struct {
		Call model.EmergencyCall `json:"call"`
		Unit model.Player        `json:"unit"`
	}
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode assign response: %v", err)
	}
	if resp.Unit.ID != nearID {
		t.Fatalf("expected nearest unit %s, got %s", nearID, resp.Unit.ID)
	}
	if resp.Call.Status != model.CallAssigned || resp.Call.AssigneeID != nearID {
		t.Fatalf("call not assigned to nearest unit: %+v", resp.Call)
	}
}

func TestRosterRanksOverHTTP(t *testing.T) {
	mux := newTestRouter(t)

	status, env := doJSON(t, mux, http.MethodGet, "/api/v1/roster/ranks", nil)
	if status != http.StatusOK {
		t.Fatalf("ranks: status %d", status)
	}

	var ranks map[string]model.Rank
	if err := json.Unmarshal(env.Data, &ranks); err != nil {
		t.Fatalf("decode ranks: %v", err)
	}
	if len(ranks) != 5 {
		t.Fatalf("expected 5 ranks, got %d", len(ranks))
	}
}
