package repository

import (
	"context"
	"database/sql"
	"fmt"

	"ems-dispatch-api/internal/model"
)

// MySQLCareerRepository implements CareerRepository using MySQL.
type MySQLCareerRepository struct {
	db *sql.DB
}

// NewMySQLCareerRepository creates a new MySQL career repository and
// bootstraps the career_stats table.
func NewMySQLCareerRepository(db *sql.DB) (*MySQLCareerRepository, error) {
	query := `
		CREATE TABLE IF NOT EXISTS career_stats (
			character_name VARCHAR(64) PRIMARY KEY,
			total_earnings BIGINT NOT NULL DEFAULT 0,
			calls_completed BIGINT NOT NULL DEFAULT 0,
			last_seen DATETIME NOT NULL
		)`
	if _, err := db.Exec(query); err != nil {
		return nil, fmt.Errorf("failed to create career_stats table: %w", err)
	}
	return &MySQLCareerRepository{db: db}, nil
}

// ApplyDeltas folds a batch of stat increments into career totals.
func (r *MySQLCareerRepository) ApplyDeltas(ctx context.Context, deltas []model.CareerDelta) error {
	if len(deltas) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO career_stats (character_name, total_earnings, calls_completed, last_seen)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			total_earnings = total_earnings + VALUES(total_earnings),
			calls_completed = calls_completed + VALUES(calls_completed),
			last_seen = VALUES(last_seen)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, d := range deltas {
		_, err := stmt.ExecContext(ctx, d.CharacterName, d.Earnings, d.CallsCompleted, d.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to apply delta for %s: %w", d.CharacterName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetCareer retrieves lifetime totals for a character name.
// Returns nil without error when no record exists yet.
func (r *MySQLCareerRepository) GetCareer(ctx context.Context, characterName string) (*model.CareerStats, error) {
	query := `SELECT character_name, total_earnings, calls_completed, last_seen
		FROM career_stats WHERE character_name = ? LIMIT 1`

	var stats model.CareerStats
	err := r.db.QueryRowContext(ctx, query, characterName).Scan(
		&stats.CharacterName,
		&stats.TotalEarnings,
		&stats.CallsCompleted,
		&stats.LastSeen,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get career stats: %w", err)
	}

	return &stats, nil
}

// Ensure MySQLCareerRepository implements CareerRepository
var _ CareerRepository = (*MySQLCareerRepository)(nil)
