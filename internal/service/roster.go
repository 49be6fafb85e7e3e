package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"ems-dispatch-api/internal/cache"
	"ems-dispatch-api/internal/model"
	"ems-dispatch-api/internal/repository"
	"ems-dispatch-api/pkg/uid"
)

// RosterService tracks connected EMS players for the lifetime of their
// session. Records are created on connect and discarded on disconnect;
// only career totals survive via the stat buffer.
type RosterService struct {
	mu      sync.RWMutex
	players map[string]*model.Player

	careerRepo  repository.CareerRepository // optional
	statBuffer  cache.StatBuffer            // optional
	broadcaster Broadcaster                 // optional
}

// NewRosterService creates a roster service. careerRepo, statBuffer and
// broadcaster may each be nil.
func NewRosterService(careerRepo repository.CareerRepository, statBuffer cache.StatBuffer, broadcaster Broadcaster) *RosterService {
	return &RosterService{
		players:     make(map[string]*model.Player),
		careerRepo:  careerRepo,
		statBuffer:  statBuffer,
		broadcaster: broadcaster,
	}
}

// Connect registers a new player session. New players start at rank 1 and
// off duty.
func (s *RosterService) Connect(ctx context.Context, name, job string, pos model.Coords) (*model.Player, error) {
	if name == "" {
		return nil, fmt.Errorf("character name is required")
	}
	if job == "" {
		job = "ems"
	}

	player := &model.Player{
		ID:          uid.New(),
		Name:        name,
		Job:         job,
		Rank:        1,
		Position:    pos,
		ConnectedAt: time.Now(),
	}

	s.mu.Lock()
	s.players[player.ID] = player
	s.mu.Unlock()

	log.Printf("[RosterService] %s connected (id=%s, job=%s)", name, player.ID, job)
	return s.snapshot(player.ID)
}

// Disconnect removes a player session and records the last-seen time
// in the career stats when persistence is available.
func (s *RosterService) Disconnect(ctx context.Context, playerID string) error {
	s.mu.Lock()
	player, ok := s.players[playerID]
	if ok {
		delete(s.players, playerID)
	}
	s.mu.Unlock()

	if !ok {
		return ErrPlayerNotFound
	}

	if s.statBuffer != nil {
		err := s.statBuffer.Add(ctx, model.CareerDelta{
			CharacterName: player.Name,
			UpdatedAt:     time.Now(),
		})
		if err != nil {
			log.Printf("[RosterService] Failed to buffer last-seen for %s: %v", player.Name, err)
		}
	}

	log.Printf("[RosterService] %s disconnected (id=%s)", player.Name, playerID)
	return nil
}

// Get returns a copy of the player record.
func (s *RosterService) Get(playerID string) (*model.Player, error) {
	return s.snapshot(playerID)
}

// All returns copies of every connected player.
func (s *RosterService) All() []model.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()

	players := make([]model.Player, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, *p)
	}
	return players
}

// OnDuty returns copies of every on-duty player.
func (s *RosterService) OnDuty() []model.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()

	players := make([]model.Player, 0)
	for _, p := range s.players {
		if p.OnDuty {
			players = append(players, *p)
		}
	}
	return players
}

// SetDuty toggles the on-duty flag and updates the player's position.
func (s *RosterService) SetDuty(ctx context.Context, playerID string, onDuty bool, pos model.Coords) (*model.Player, error) {
	s.mu.Lock()
	player, ok := s.players[playerID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrPlayerNotFound
	}
	player.OnDuty = onDuty
	player.Position = pos
	name := player.Name
	s.mu.Unlock()

	state := "off duty"
	if onDuty {
		state = "on duty"
	}
	s.publish(model.Event{
		Type:     model.EventDutyChanged,
		PlayerID: playerID,
		Message:  fmt.Sprintf("%s is now %s", name, state),
	})

	return s.snapshot(playerID)
}

// SetRank changes a player's rank. The actor must hold supervisor rank;
// an empty actorID is the trusted dispatch console (API-key auth) and
// bypasses the check. The target rank must be a key of the rank table.
func (s *RosterService) SetRank(ctx context.Context, actorID, targetID string, rank int) (*model.Player, error) {
	if !model.ValidRank(rank) {
		return nil, ErrInvalidRank
	}

	s.mu.Lock()
	actorName := "console"
	if actorID != "" {
		actor, ok := s.players[actorID]
		if !ok {
			s.mu.Unlock()
			return nil, ErrPlayerNotFound
		}
		if !model.IsSupervisor(actor.Rank) {
			s.mu.Unlock()
			return nil, ErrNotSupervisor
		}
		actorName = actor.Name
	}

	target, ok := s.players[targetID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrPlayerNotFound
	}
	target.Rank = rank
	s.mu.Unlock()

	log.Printf("[RosterService] %s set rank of %s to %d (%s)",
		actorName, target.Name, rank, model.Ranks[rank].Name)
	return s.snapshot(targetID)
}

// UpdatePosition records a player's latest world position.
func (s *RosterService) UpdatePosition(playerID string, pos model.Coords) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	player, ok := s.players[playerID]
	if !ok {
		return ErrPlayerNotFound
	}
	player.Position = pos
	return nil
}

// NearestOnDuty returns the on-duty player closest to pos, excluding
// excludeID. Returns ErrNoUnitsInService when nobody qualifies.
func (s *RosterService) NearestOnDuty(pos model.Coords, excludeID string) (*model.Player, float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var nearest *model.Player
	var best float64
	for _, p := range s.players {
		if !p.OnDuty || p.ID == excludeID {
			continue
		}
		d := p.Position.DistanceTo(pos)
		if nearest == nil || d < best {
			nearest = p
			best = d
		}
	}
	if nearest == nil {
		return nil, 0, ErrNoUnitsInService
	}

	cp := *nearest
	return &cp, best, nil
}

// Credit pays a player and buffers the increment for career persistence.
// Session earnings and call counts are updated in memory either way.
func (s *RosterService) Credit(ctx context.Context, playerID string, amount int64, callsCompleted int) error {
	s.mu.Lock()
	player, ok := s.players[playerID]
	if !ok {
		s.mu.Unlock()
		return ErrPlayerNotFound
	}
	player.Earnings += amount
	player.CallsCompleted += callsCompleted
	name := player.Name
	s.mu.Unlock()

	if s.statBuffer != nil {
		err := s.statBuffer.Add(ctx, model.CareerDelta{
			CharacterName:  name,
			Earnings:       amount,
			CallsCompleted: int64(callsCompleted),
			UpdatedAt:      time.Now(),
		})
		if err != nil {
			log.Printf("[RosterService] Failed to buffer credit for %s: %v", name, err)
		}
	}
	return nil
}

// Career returns lifetime totals for a character, or nil when career
// persistence is disabled or no record exists.
func (s *RosterService) Career(ctx context.Context, characterName string) (*model.CareerStats, error) {
	if s.careerRepo == nil {
		return nil, nil
	}
	return s.careerRepo.GetCareer(ctx, characterName)
}

func (s *RosterService) snapshot(playerID string) (*model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	player, ok := s.players[playerID]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	cp := *player
	return &cp, nil
}

func (s *RosterService) publish(event model.Event) {
	if s.broadcaster == nil {
		return
	}
	event.Timestamp = time.Now()
	s.broadcaster.Publish(event)
}
