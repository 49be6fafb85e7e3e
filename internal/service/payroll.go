package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"ems-dispatch-api/internal/model"
)

// PayrollConfig holds configuration for the salary scheduler.
type PayrollConfig struct {
	// Interval is how often on-duty players are paid.
	Interval time.Duration
}

// DefaultPayrollConfig returns the default payout interval.
func DefaultPayrollConfig() PayrollConfig {
	return PayrollConfig{Interval: 10 * time.Minute}
}

// PayrollService pays on-duty players their per-rank salary on a fixed
// interval. The timer is process-local and does not survive a restart.
type PayrollService struct {
	roster      *RosterService
	broadcaster Broadcaster // optional
	config      PayrollConfig

	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
}

// NewPayrollService creates a payroll service.
func NewPayrollService(roster *RosterService, broadcaster Broadcaster, config PayrollConfig) *PayrollService {
	if config.Interval <= 0 {
		config.Interval = 10 * time.Minute
	}
	return &PayrollService{
		roster:      roster,
		broadcaster: broadcaster,
		config:      config,
		stopCh:      make(chan struct{}),
	}
}

// Start begins the payout scheduler.
func (s *PayrollService) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.Interval)
	s.mu.Unlock()

	log.Printf("[PayrollService] Started - Interval: %v", s.config.Interval)
	go s.run()
}

func (s *PayrollService) run() {
	for {
		select {
		case <-s.ticker.C:
			s.runPayout()
		case <-s.stopCh:
			log.Printf("[PayrollService] Stopped")
			return
		}
	}
}

func (s *PayrollService) runPayout() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	paid, total := s.Pay(ctx)
	if paid > 0 {
		log.Printf("[PayrollService] Paid %d on-duty players a total of $%d", paid, total)
	}
}

// Pay credits every on-duty player their per-rank salary, returning the
// number of players paid and the total amount.
func (s *PayrollService) Pay(ctx context.Context) (int, int64) {
	var paid int
	var total int64

	for _, player := range s.roster.OnDuty() {
		rank, ok := model.Ranks[player.Rank]
		if !ok {
			log.Printf("[PayrollService] Skipping %s: rank %d not in rank table", player.Name, player.Rank)
			continue
		}

		if err := s.roster.Credit(ctx, player.ID, rank.Salary, 0); err != nil {
			log.Printf("[PayrollService] Failed to pay %s: %v", player.Name, err)
			continue
		}
		paid++
		total += rank.Salary

		if s.broadcaster != nil {
			s.broadcaster.Publish(model.Event{
				Type:      model.EventSalaryPaid,
				PlayerID:  player.ID,
				Message:   fmt.Sprintf("%s received $%d salary (%s)", player.Name, rank.Salary, rank.Name),
				Timestamp: time.Now(),
			})
		}
	}
	return paid, total
}

// Stop stops the payout scheduler.
func (s *PayrollService) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
	})
}

// RunNow triggers an immediate payout cycle.
func (s *PayrollService) RunNow() (int, int64) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return s.Pay(ctx)
}
