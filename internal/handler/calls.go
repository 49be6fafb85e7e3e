package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"ems-dispatch-api/internal/model"
	"ems-dispatch-api/internal/service"
	"ems-dispatch-api/pkg/apierror"
	"ems-dispatch-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// CallHandler handles emergency-call HTTP requests.
type CallHandler struct {
	dispatch *service.DispatchService
}

// NewCallHandler creates a new call handler.
func NewCallHandler(dispatch *service.DispatchService) *CallHandler {
	return &CallHandler{dispatch: dispatch}
}

// CreateCallRequest represents the request body for a new 911 call.
type CreateCallRequest struct {
	CallerName  string       `json:"caller_name"`
	Position    model.Coords `json:"position"`
	Description string       `json:"description"`
}

// Create handles POST /api/v1/calls
func (h *CallHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	call, err := h.dispatch.CreateCall(r.Context(), req.CallerName, req.Position, req.Description)
	if err != nil {
		response.Error(w, serviceError(err))
		return
	}

	response.Created(w, call)
}

// List handles GET /api/v1/calls
func (h *CallHandler) List(w http.ResponseWriter, r *http.Request) {
	calls := h.dispatch.ActiveCalls()
	response.OK(w, map[string]interface{}{
		"calls": calls,
		"count": len(calls),
	})
}

// Get handles GET /api/v1/calls/{call_id}
func (h *CallHandler) Get(w http.ResponseWriter, r *http.Request) {
	callID, ok := h.callID(w, r)
	if !ok {
		return
	}

	call, err := h.dispatch.GetCall(callID)
	if err != nil {
		response.Error(w, serviceError(err))
		return
	}

	response.OK(w, call)
}

// AssignRequest represents the request body for a manual assignment.
type AssignRequest struct {
	PlayerID string `json:"player_id"`
}

// Assign handles POST /api/v1/calls/{call_id}/assign
// With an empty player_id the closest on-duty unit is dispatched.
func (h *CallHandler) Assign(w http.ResponseWriter, r *http.Request) {
	callID, ok := h.callID(w, r)
	if !ok {
		return
	}

	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	if req.PlayerID == "" {
		call, unit, err := h.dispatch.AssignNearest(r.Context(), callID)
		if err != nil {
			response.Error(w, serviceError(err))
			return
		}
		response.OK(w, map[string]interface{}{
			"call": call,
			"unit": unit,
		})
		return
	}

	call, err := h.dispatch.AssignCall(r.Context(), callID, req.PlayerID)
	if err != nil {
		response.Error(w, serviceError(err))
		return
	}

	response.OK(w, call)
}

// RespondRequest represents the request body for a self-assignment.
type RespondRequest struct {
	PlayerID string `json:"player_id"`
}

// Respond handles POST /api/v1/calls/{call_id}/respond
func (h *CallHandler) Respond(w http.ResponseWriter, r *http.Request) {
	callID, ok := h.callID(w, r)
	if !ok {
		return
	}

	var req RespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	if req.PlayerID == "" {
		response.Error(w, apierror.BadRequest("player_id is required"))
		return
	}

	call, err := h.dispatch.Respond(r.Context(), callID, req.PlayerID)
	if err != nil {
		response.Error(w, serviceError(err))
		return
	}

	response.OK(w, call)
}

// CompleteRequest represents the request body for call completion.
type CompleteRequest struct {
	PlayerID string `json:"player_id"`
}

// Complete handles POST /api/v1/calls/{call_id}/complete
func (h *CallHandler) Complete(w http.ResponseWriter, r *http.Request) {
	callID, ok := h.callID(w, r)
	if !ok {
		return
	}

	var req CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	if req.PlayerID == "" {
		response.Error(w, apierror.BadRequest("player_id is required"))
		return
	}

	call, err := h.dispatch.CompleteCall(r.Context(), callID, req.PlayerID)
	if err != nil {
		response.Error(w, serviceError(err))
		return
	}

	response.OK(w, call)
}

// CancelRequest represents the request body for call cancellation.
type CancelRequest struct {
	PlayerID   string `json:"player_id"`
	CallerName string `json:"caller_name"`
}

// Cancel handles POST /api/v1/calls/{call_id}/cancel
func (h *CallHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	callID, ok := h.callID(w, r)
	if !ok {
		return
	}

	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	call, err := h.dispatch.CancelCall(r.Context(), callID, req.PlayerID, req.CallerName)
	if err != nil {
		response.Error(w, serviceError(err))
		return
	}

	response.OK(w, call)
}

func (h *CallHandler) callID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "call_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		response.Error(w, apierror.BadRequest("call_id must be a positive integer"))
		return 0, false
	}
	return id, true
}
