package repository

import (
	"context"
	"time"

	"ems-dispatch-api/internal/model"
)

// CallArchive defines storage for closed emergency calls.
type CallArchive interface {
	// ArchiveCall persists a closed call before it is pruned from the board.
	ArchiveCall(ctx context.Context, call *model.EmergencyCall) error

	// RecentCalls returns the most recently closed calls, newest first.
	RecentCalls(ctx context.Context, limit int) ([]model.EmergencyCall, error)

	// PurgeOlderThan deletes archived calls closed before the retention window.
	PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error)

	// GetStats returns statistics about the archive database.
	GetStats(ctx context.Context) (map[string]interface{}, error)

	// Close closes the repository connection.
	Close() error
}

// CareerRepository defines persistent career stat access for characters.
type CareerRepository interface {
	// ApplyDeltas folds a batch of stat increments into career totals.
	ApplyDeltas(ctx context.Context, deltas []model.CareerDelta) error

	// GetCareer retrieves lifetime totals for a character name.
	GetCareer(ctx context.Context, characterName string) (*model.CareerStats, error)
}
