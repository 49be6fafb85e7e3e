package model

import "time"

// SessionData contains the data stored with a session token.
type SessionData struct {
	PlayerID      string    `json:"player_id"`
	CharacterName string    `json:"character_name"`
	Job           string    `json:"job"`
	Rank          int       `json:"rank"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}
