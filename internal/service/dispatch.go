package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"ems-dispatch-api/internal/model"
	"ems-dispatch-api/internal/repository"
)

// DispatchConfig holds timing settings for the dispatch board.
type DispatchConfig struct {
	// CallExpiry is how long a pending call waits before expiring.
	CallExpiry time.Duration

	// CallRetention is how long closed calls stay visible on the board.
	CallRetention time.Duration

	// SweepInterval is how often the janitor scans the board.
	SweepInterval time.Duration

	// ArchivePurgeInterval is how often old archive rows are purged.
	ArchivePurgeInterval time.Duration

	// ArchiveRetention is how long archived calls are kept.
	ArchiveRetention time.Duration

	// MaxDescription bounds the call description length.
	MaxDescription int
}

// DefaultDispatchConfig returns default dispatch timing.
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		CallExpiry:           10 * time.Minute,
		CallRetention:        2 * time.Minute,
		SweepInterval:        15 * time.Second,
		ArchivePurgeInterval: 1 * time.Hour,
		ArchiveRetention:     30 * 24 * time.Hour,
		MaxDescription:       280,
	}
}

// DispatchService owns the emergency call board. All state lives in
// memory for the process lifetime; closed calls are archived to SQLite
// before being pruned.
type DispatchService struct {
	mu     sync.Mutex
	calls  map[int64]*model.EmergencyCall
	nextID int64

	roster      *RosterService
	archive     repository.CallArchive // optional
	broadcaster Broadcaster            // optional
	config      DispatchConfig

	sweepTicker *time.Ticker
	purgeTicker *time.Ticker
	stopCh      chan struct{}
	stopOnce    sync.Once
	running     bool
}

// NewDispatchService creates the dispatch service. archive and
// broadcaster may be nil.
func NewDispatchService(roster *RosterService, archive repository.CallArchive, broadcaster Broadcaster, config DispatchConfig) *DispatchService {
	if config.CallExpiry <= 0 {
		config.CallExpiry = 10 * time.Minute
	}
	if config.CallRetention <= 0 {
		config.CallRetention = 2 * time.Minute
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = 15 * time.Second
	}
	if config.ArchivePurgeInterval <= 0 {
		config.ArchivePurgeInterval = 1 * time.Hour
	}
	if config.ArchiveRetention <= 0 {
		config.ArchiveRetention = 30 * 24 * time.Hour
	}
	if config.MaxDescription <= 0 {
		config.MaxDescription = 280
	}

	return &DispatchService{
		calls:       make(map[int64]*model.EmergencyCall),
		roster:      roster,
		archive:     archive,
		broadcaster: broadcaster,
		config:      config,
		stopCh:      make(chan struct{}),
	}
}

// CreateCall places a new 911 call on the board.
func (s *DispatchService) CreateCall(ctx context.Context, callerName string, pos model.Coords, description string) (*model.EmergencyCall, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, ErrEmptyDescription
	}
	if len(description) > s.config.MaxDescription {
		return nil, ErrDescriptionTooLong
	}
	if !pos.Finite() {
		return nil, ErrInvalidPosition
	}
	if callerName == "" {
		callerName = "anonymous"
	}

	s.mu.Lock()
	s.nextID++
	call := &model.EmergencyCall{
		ID:          s.nextID,
		CallerName:  callerName,
		Position:    pos,
		Description: description,
		Status:      model.CallPending,
		CreatedAt:   time.Now(),
	}
	s.calls[call.ID] = call
	snapshot := call.Clone()
	s.mu.Unlock()

	log.Printf("[DispatchService] Call #%d created by %s: %s", call.ID, callerName, description)
	s.publish(model.Event{
		Type:    model.EventCallCreated,
		CallID:  snapshot.ID,
		Message: fmt.Sprintf("911 call #%d: %s", snapshot.ID, snapshot.Description),
	})
	return snapshot, nil
}

// GetCall returns a copy of one call.
func (s *DispatchService) GetCall(callID int64) (*model.EmergencyCall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	call, ok := s.calls[callID]
	if !ok {
		return nil, ErrCallNotFound
	}
	return call.Clone(), nil
}

// ActiveCalls returns all calls currently on the board, oldest first.
// Closed calls remain visible until the retention window elapses.
func (s *DispatchService) ActiveCalls() []model.EmergencyCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	calls := make([]model.EmergencyCall, 0, len(s.calls))
	for _, c := range s.calls {
		calls = append(calls, *c.Clone())
	}
	sort.Slice(calls, func(i, j int) bool { return calls[i].ID < calls[j].ID })
	return calls
}

// AssignCall assigns a pending call to an on-duty player.
// A call has at most one assignee for its whole lifetime.
func (s *DispatchService) AssignCall(ctx context.Context, callID int64, playerID string) (*model.EmergencyCall, error) {
	player, err := s.roster.Get(playerID)
	if err != nil {
		return nil, err
	}
	if !player.OnDuty {
		return nil, ErrOffDuty
	}

	s.mu.Lock()
	call, ok := s.calls[callID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrCallNotFound
	}
	if call.Status != model.CallPending {
		s.mu.Unlock()
		return nil, ErrCallNotPending
	}

	now := time.Now()
	call.Status = model.CallAssigned
	call.AssigneeID = playerID
	call.AssignedAt = &now
	snapshot := call.Clone()
	s.mu.Unlock()

	log.Printf("[DispatchService] Call #%d assigned to %s", callID, player.Name)
	s.publish(model.Event{
		Type:     model.EventCallAssigned,
		CallID:   callID,
		PlayerID: playerID,
		Message:  fmt.Sprintf("Call #%d assigned to %s", callID, player.Name),
	})
	return snapshot, nil
}

// Respond self-assigns a call to the responding player.
func (s *DispatchService) Respond(ctx context.Context, callID int64, playerID string) (*model.EmergencyCall, error) {
	return s.AssignCall(ctx, callID, playerID)
}

// AssignNearest assigns a pending call to the closest on-duty unit.
func (s *DispatchService) AssignNearest(ctx context.Context, callID int64) (*model.EmergencyCall, *model.Player, error) {
	call, err := s.GetCall(callID)
	if err != nil {
		return nil, nil, err
	}
	if call.Status != model.CallPending {
		return nil, nil, ErrCallNotPending
	}

	unit, distance, err := s.roster.NearestOnDuty(call.Position, "")
	if err != nil {
		return nil, nil, err
	}

	assigned, err := s.AssignCall(ctx, callID, unit.ID)
	if err != nil {
		return nil, nil, err
	}

	log.Printf("[DispatchService] Call #%d dispatched to nearest unit %s (%.1f away)",
		callID, unit.Name, distance)
	return assigned, unit, nil
}

// CompleteCall marks an assigned call completed. Only the assignee may
// complete it; the reward for their rank is credited.
func (s *DispatchService) CompleteCall(ctx context.Context, callID int64, playerID string) (*model.EmergencyCall, error) {
	player, err := s.roster.Get(playerID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	call, ok := s.calls[callID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrCallNotFound
	}
	if call.Status.Closed() {
		s.mu.Unlock()
		return nil, ErrCallClosed
	}
	if call.AssigneeID != playerID {
		s.mu.Unlock()
		return nil, ErrNotAssignee
	}
	if !call.Status.CanTransition(model.CallCompleted) {
		s.mu.Unlock()
		return nil, ErrCallNotPending
	}

	now := time.Now()
	call.Status = model.CallCompleted
	call.ClosedAt = &now
	snapshot := call.Clone()
	s.mu.Unlock()

	reward := model.Ranks[player.Rank].CallReward
	if err := s.roster.Credit(ctx, playerID, reward, 1); err != nil {
		log.Printf("[DispatchService] Failed to credit %s for call #%d: %v", player.Name, callID, err)
	}

	s.archiveCall(ctx, snapshot)

	log.Printf("[DispatchService] Call #%d completed by %s (reward: $%d)", callID, player.Name, reward)
	s.publish(model.Event{
		Type:     model.EventCallCompleted,
		CallID:   callID,
		PlayerID: playerID,
		Message:  fmt.Sprintf("Call #%d completed by %s", callID, player.Name),
	})
	return snapshot, nil
}

// CancelCall cancels a pending or assigned call. The caller may cancel
// their own call by name; otherwise the actor must be the assignee or
// hold supervisor rank.
func (s *DispatchService) CancelCall(ctx context.Context, callID int64, actorID, callerName string) (*model.EmergencyCall, error) {
	s.mu.Lock()
	call, ok := s.calls[callID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrCallNotFound
	}
	if call.Status.Closed() {
		s.mu.Unlock()
		return nil, ErrCallClosed
	}

	allowed := callerName != "" && callerName == call.CallerName
	if !allowed && actorID != "" {
		if actorID == call.AssigneeID {
			allowed = true
		} else if actor, err := s.roster.Get(actorID); err == nil && model.IsSupervisor(actor.Rank) {
			allowed = true
		}
	}
	if !allowed {
		s.mu.Unlock()
		return nil, ErrNotSupervisor
	}

	now := time.Now()
	call.Status = model.CallCancelled
	call.ClosedAt = &now
	snapshot := call.Clone()
	s.mu.Unlock()

	s.archiveCall(ctx, snapshot)

	log.Printf("[DispatchService] Call #%d cancelled", callID)
	s.publish(model.Event{
		Type:    model.EventCallCancelled,
		CallID:  callID,
		Message: fmt.Sprintf("Call #%d cancelled", callID),
	})
	return snapshot, nil
}

// Start begins the background janitor: expiring stale pending calls,
// pruning closed calls after retention, purging the archive.
func (s *DispatchService) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.sweepTicker = time.NewTicker(s.config.SweepInterval)
	s.purgeTicker = time.NewTicker(s.config.ArchivePurgeInterval)
	s.mu.Unlock()

	log.Printf("[DispatchService] Janitor started - sweep: %v, expiry: %v, retention: %v",
		s.config.SweepInterval, s.config.CallExpiry, s.config.CallRetention)

	go s.run()
}

func (s *DispatchService) run() {
	for {
		select {
		case <-s.sweepTicker.C:
			s.Sweep(context.Background())
		case <-s.purgeTicker.C:
			s.purgeArchive()
		case <-s.stopCh:
			log.Printf("[DispatchService] Janitor stopped")
			return
		}
	}
}

// Sweep expires stale pending calls and prunes closed calls past the
// retention window. Exposed for tests and the admin endpoint.
func (s *DispatchService) Sweep(ctx context.Context) (expired, pruned int) {
	now := time.Now()

	s.mu.Lock()
	var toExpire []*model.EmergencyCall
	for id, call := range s.calls {
		switch {
		case call.Status == model.CallPending && now.Sub(call.CreatedAt) > s.config.CallExpiry:
			call.Status = model.CallExpired
			closed := now
			call.ClosedAt = &closed
			toExpire = append(toExpire, call.Clone())
			expired++
		case call.Status.Closed() && call.ClosedAt != nil && now.Sub(*call.ClosedAt) > s.config.CallRetention:
			delete(s.calls, id)
			pruned++
		}
	}
	s.mu.Unlock()

	for _, call := range toExpire {
		s.archiveCall(ctx, call)
		log.Printf("[DispatchService] Call #%d expired after %v", call.ID, s.config.CallExpiry)
		s.publish(model.Event{
			Type:    model.EventCallExpired,
			CallID:  call.ID,
			Message: fmt.Sprintf("Call #%d expired with no response", call.ID),
		})
	}
	return expired, pruned
}

func (s *DispatchService) purgeArchive() {
	if s.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := s.archive.PurgeOlderThan(ctx, s.config.ArchiveRetention); err != nil {
		log.Printf("[DispatchService] Archive purge failed: %v", err)
	}
}

// Stop stops the background janitor.
func (s *DispatchService) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.sweepTicker != nil {
			s.sweepTicker.Stop()
		}
		if s.purgeTicker != nil {
			s.purgeTicker.Stop()
		}
		close(s.stopCh)
		s.running = false
	})
}

func (s *DispatchService) archiveCall(ctx context.Context, call *model.EmergencyCall) {
	if s.archive == nil {
		return
	}
	if err := s.archive.ArchiveCall(ctx, call); err != nil {
		log.Printf("[DispatchService] Failed to archive call #%d: %v", call.ID, err)
	}
}

func (s *DispatchService) publish(event model.Event) {
	if s.broadcaster == nil {
		return
	}
	event.Timestamp = time.Now()
	s.broadcaster.Publish(event)
}
