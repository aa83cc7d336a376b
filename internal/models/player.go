package models

import (
	"time"
)

// Player represents a participant in a room's roster
type Player struct {
	// UserID is the randomly generated identity of the player
	UserID string `json:"userId"`

	// Username is the display name of the player
	Username string `json:"username"`

	// JoinedAt is when the player published itself to the roster
	JoinedAt time.Time `json:"joinedAt"`
}

// Valid reports whether the record carries the fields consumers rely on
func (p *Player) Valid() bool {
	return p != nil && p.UserID != ""
}
