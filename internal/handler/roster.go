package handler

import (
	"encoding/json"
	"net/http"

	"ems-dispatch-api/internal/model"
	"ems-dispatch-api/internal/service"
	"ems-dispatch-api/pkg/apierror"
	"ems-dispatch-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// RosterHandler handles roster-related HTTP requests.
type RosterHandler struct {
	roster *service.RosterService
}

// NewRosterHandler creates a new roster handler.
func NewRosterHandler(roster *service.RosterService) *RosterHandler {
	return &RosterHandler{roster: roster}
}

// List handles GET /api/v1/roster
// ?on_duty=true filters to on-duty players only.
func (h *RosterHandler) List(w http.ResponseWriter, r *http.Request) {
	var players []model.Player
	if r.URL.Query().Get("on_duty") == "true" {
		players = h.roster.OnDuty()
	} else {
		players = h.roster.All()
	}

	response.OK(w, map[string]interface{}{
		"players": players,
		"count":   len(players),
	})
}

// Get handles GET /api/v1/roster/{player_id}
func (h *RosterHandler) Get(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "player_id")

	player, err := h.roster.Get(playerID)
	if err != nil {
		response.Error(w, serviceError(err))
		return
	}

	resp := map[string]interface{}{
		"player": player,
		"rank":   model.Ranks[player.Rank],
	}
	if career, err := h.roster.Career(r.Context(), player.Name); err == nil && career != nil {
		resp["career"] = career
	}

	response.OK(w, resp)
}

// DutyRequest represents the request body for a duty toggle.
type DutyRequest struct {
	OnDuty   bool         `json:"on_duty"`
	Position model.Coords `json:"position"`
}

// SetDuty handles POST /api/v1/roster/{player_id}/duty
func (h *RosterHandler) SetDuty(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "player_id")

	var req DutyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	player, err := h.roster.SetDuty(r.Context(), playerID, req.OnDuty, req.Position)
	if err != nil {
		response.Error(w, serviceError(err))
		return
	}

	response.OK(w, player)
}

// RankRequest represents the request body for a rank change.
type RankRequest struct {
	ActorID string `json:"actor_id"`
	Rank    int    `json:"rank"`
}

// SetRank handles POST /api/v1/roster/{player_id}/rank
func (h *RosterHandler) SetRank(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "player_id")

	var req RankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	// Empty actor_id is the trusted dispatch console
	player, err := h.roster.SetRank(r.Context(), req.ActorID, playerID, req.Rank)
	if err != nil {
		response.Error(w, serviceError(err))
		return
	}

	response.OK(w, player)
}

// PositionRequest represents the request body for a position update.
type PositionRequest struct {
	Position model.Coords `json:"position"`
}

// SetPosition handles POST /api/v1/roster/{player_id}/position
func (h *RosterHandler) SetPosition(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "player_id")

	var req PositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	if err := h.roster.UpdatePosition(playerID, req.Position); err != nil {
		response.Error(w, serviceError(err))
		return
	}

	response.OK(w, map[string]string{"status": "updated"})
}

// Ranks handles GET /api/v1/roster/ranks - the fixed rank table.
func (h *RosterHandler) Ranks(w http.ResponseWriter, r *http.Request) {
	response.OK(w, model.Ranks)
}
