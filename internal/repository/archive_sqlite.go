package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"ems-dispatch-api/internal/model"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteCallArchive implements CallArchive using SQLite.
// Thread-safe with WAL mode for high-concurrency reads.
type SQLiteCallArchive struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteCallArchive opens (or creates) the archive database.
// dbPath is the path to the SQLite database file (e.g., "./data/calls.db")
func NewSQLiteCallArchive(dbPath string) (*SQLiteCallArchive, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createArchiveTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[SQLiteCallArchive] Initialized with database: %s", dbPath)
	return &SQLiteCallArchive{db: db}, nil
}

func createArchiveTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS call_archive (
		id INTEGER PRIMARY KEY,
		caller_name TEXT NOT NULL,
		pos_x REAL NOT NULL,
		pos_y REAL NOT NULL,
		pos_z REAL NOT NULL,
		description TEXT NOT NULL,
		status TEXT NOT NULL,
		assignee_id TEXT,
		created_at DATETIME NOT NULL,
		assigned_at DATETIME,
		closed_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_archive_closed_at ON call_archive(closed_at);
	CREATE INDEX IF NOT EXISTS idx_archive_status ON call_archive(status);
	`
	_, err := db.Exec(query)
	return err
}

// ArchiveCall persists a closed call. Re-archiving the same id replaces the row.
func (r *SQLiteCallArchive) ArchiveCall(ctx context.Context, call *model.EmergencyCall) error {
	if call.ClosedAt == nil {
		return fmt.Errorf("cannot archive call %d: not closed", call.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	query := `
		INSERT INTO call_archive (id, caller_name, pos_x, pos_y, pos_z, description, status, assignee_id, created_at, assigned_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			assignee_id = excluded.assignee_id,
			closed_at = excluded.closed_at`

	var assignedAt interface{}
	if call.AssignedAt != nil {
		assignedAt = *call.AssignedAt
	}
	var assignee interface{}
	if call.AssigneeID != "" {
		assignee = call.AssigneeID
	}

	_, err := r.db.ExecContext(ctx, query,
		call.ID, call.CallerName,
		call.Position.X, call.Position.Y, call.Position.Z,
		call.Description, string(call.Status), assignee,
		call.CreatedAt, assignedAt, *call.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to archive call %d: %w", call.ID, err)
	}
	return nil
}

// RecentCalls returns the most recently closed calls, newest first.
func (r *SQLiteCallArchive) RecentCalls(ctx context.Context, limit int) ([]model.EmergencyCall, error) {
	if limit <= 0 {
		limit = 50
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `
		SELECT id, caller_name, pos_x, pos_y, pos_z, description, status, assignee_id, created_at, assigned_at, closed_at
		FROM call_archive ORDER BY closed_at DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %w", err)
	}
	defer rows.Close()

	calls := []model.EmergencyCall{}
	for rows.Next() {
		var c model.EmergencyCall
		var status string
		var assignee sql.NullString
		var assignedAt, closedAt sql.NullTime

		err := rows.Scan(&c.ID, &c.CallerName,
			&c.Position.X, &c.Position.Y, &c.Position.Z,
			&c.Description, &status, &assignee,
			&c.CreatedAt, &assignedAt, &closedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan archived call: %w", err)
		}

		c.Status = model.CallStatus(status)
		if assignee.Valid {
			c.AssigneeID = assignee.String
		}
		if assignedAt.Valid {
			t := assignedAt.Time
			c.AssignedAt = &t
		}
		if closedAt.Valid {
			t := closedAt.Time
			c.ClosedAt = &t
		}
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

// PurgeOlderThan deletes archived calls closed before the retention window.
func (r *SQLiteCallArchive) PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-retention)

	result, err := r.db.ExecContext(ctx, `DELETE FROM call_archive WHERE closed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge archive: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		log.Printf("[SQLiteCallArchive] Purged %d archived calls (retention: %v)", deleted, retention)
	}
	return deleted, nil
}

// GetStats returns statistics about the archive database.
func (r *SQLiteCallArchive) GetStats(ctx context.Context) (map[string]interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]interface{})

	var count int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM call_archive").Scan(&count); err != nil {
		return nil, err
	}
	stats["archived_calls"] = count

	// Per-status breakdown
	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM call_archive GROUP BY status")
	if err == nil {
		byStatus := make(map[string]int64)
		for rows.Next() {
			var status string
			var n int64
			if err := rows.Scan(&status, &n); err == nil {
				byStatus[status] = n
			}
		}
		rows.Close()
		stats["by_status"] = byStatus
	}

	var lastClosed sql.NullTime
	if err := r.db.QueryRowContext(ctx, "SELECT MAX(closed_at) FROM call_archive").Scan(&lastClosed); err == nil && lastClosed.Valid {
		stats["last_closed"] = lastClosed.Time
	}

	var pageCount, pageSize int64
	r.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	r.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
	stats["db_size_bytes"] = pageCount * pageSize

	return stats, nil
}

// Close closes the database connection.
func (r *SQLiteCallArchive) Close() error {
	return r.db.Close()
}

// Ensure SQLiteCallArchive implements CallArchive
var _ CallArchive = (*SQLiteCallArchive)(nil)
