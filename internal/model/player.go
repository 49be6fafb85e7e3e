package model

import "time"

// Player represents a connected EMS character. Records live for the duration
// of the session: created on connect, discarded on disconnect.
type Player struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Job            string    `json:"job"`
	Rank           int       `json:"rank"`
	OnDuty         bool      `json:"on_duty"`
	Earnings       int64     `json:"earnings"`
	CallsCompleted int       `json:"calls_completed"`
	Position       Coords    `json:"position"`
	ConnectedAt    time.Time `json:"connected_at"`
}

// CareerStats holds lifetime totals for a character, persisted across
// sessions when the career repository is available.
type CareerStats struct {
	CharacterName  string    `json:"character_name"`
	TotalEarnings  int64     `json:"total_earnings"`
	CallsCompleted int64     `json:"calls_completed"`
	LastSeen       time.Time `json:"last_seen"`
}

// CareerDelta is a pending stat increment for a character.
type CareerDelta struct {
	CharacterName  string    `json:"character_name"`
	Earnings       int64     `json:"earnings"`
	CallsCompleted int64     `json:"calls_completed"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Merge folds another delta for the same character into this one.
func (d *CareerDelta) Merge(other CareerDelta) {
	d.Earnings += other.Earnings
	d.CallsCompleted += other.CallsCompleted
	if other.UpdatedAt.After(d.UpdatedAt) {
		d.UpdatedAt = other.UpdatedAt
	}
}
