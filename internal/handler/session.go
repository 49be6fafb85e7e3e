package handler

import (
	"encoding/json"
	"net/http"

	"ems-dispatch-api/internal/model"
	"ems-dispatch-api/internal/service"
	"ems-dispatch-api/pkg/apierror"
	"ems-dispatch-api/pkg/response"
)

// SessionHandler handles player connect/disconnect.
type SessionHandler struct {
	roster       *service.RosterService
	tokenService *service.TokenService // optional
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(roster *service.RosterService, tokenService *service.TokenService) *SessionHandler {
	return &SessionHandler{
		roster:       roster,
		tokenService: tokenService,
	}
}

// ConnectRequest represents the request body for player connect.
type ConnectRequest struct {
	Name     string       `json:"name"`
	Job      string       `json:"job"`
	Position model.Coords `json:"position"`
}

// ConnectResponse represents the response for player connect.
type ConnectResponse struct {
	Player *model.Player      `json:"player"`
	Career *model.CareerStats `json:"career,omitempty"`
	Token  string             `json:"token,omitempty"`
}

// Connect handles POST /api/v1/session
func (h *SessionHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	if req.Name == "" {
		response.Error(w, apierror.ValidationError("validation failed",
			apierror.FieldError{Field: "name", Message: "name is required"}))
		return
	}

	player, err := h.roster.Connect(r.Context(), req.Name, req.Job, req.Position)
	if err != nil {
		response.Error(w, apierror.BadRequest(err.Error()))
		return
	}

	resp := ConnectResponse{Player: player}

	// Career totals survive reconnects when MySQL is configured
	if career, err := h.roster.Career(r.Context(), player.Name); err == nil && career != nil {
		resp.Career = career
	}

	if h.tokenService != nil {
		token, err := h.tokenService.GenerateToken(r.Context(), model.SessionData{
			PlayerID:      player.ID,
			CharacterName: player.Name,
			Job:           player.Job,
			Rank:          player.Rank,
		})
		if err != nil {
			response.Error(w, apierror.InternalError("failed to issue session token"))
			return
		}
		resp.Token = token
	}

	response.Created(w, resp)
}

// Disconnect handles DELETE /api/v1/session
func (h *SessionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string `json:"player_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	if req.PlayerID == "" {
		response.Error(w, apierror.BadRequest("player_id is required"))
		return
	}

	if err := h.roster.Disconnect(r.Context(), req.PlayerID); err != nil {
		response.Error(w, serviceError(err))
		return
	}

	if h.tokenService != nil {
		if token := r.Header.Get("X-Token"); token != "" {
			_ = h.tokenService.RevokeToken(r.Context(), token)
		}
	}

	response.NoContent(w)
}
