package models

import (
	"time"
)

// Session is the shared turn state of a room
type Session struct {
	// CurrentDrawer is the user ID of the drawing player, empty before the first round
	CurrentDrawer string `json:"currentDrawer,omitempty"`

	// CurrentWord is the word being drawn
	CurrentWord string `json:"currentWord,omitempty"`

	// Round counts the rounds started in the room
	Round int `json:"round"`

	// Version increases by one with every accepted write
	Version int64 `json:"version"`

	// StartedAt is when the current round began
	StartedAt time.Time `json:"startedAt"`

	// WinnerID and WinnerName name who guessed PreviousWord and so ended
	// the previous round. Empty when the round changed without a guess.
	WinnerID     string `json:"winnerId,omitempty"`
	WinnerName   string `json:"winnerName,omitempty"`
	PreviousWord string `json:"previousWord,omitempty"`
}

// EndedByGuess reports whether the round before this one was won by a guess
func (s *Session) EndedByGuess() bool {
	return s != nil && s.WinnerID != "" && s.PreviousWord != ""
}

// Started reports whether a drawer has been elected
func (s *Session) Started() bool {
	return s != nil && s.CurrentDrawer != ""
}

// Valid reports whether the record satisfies the session invariants
func (s *Session) Valid() bool {
	if s == nil || s.Version < 1 {
		return false
	}
	return s.CurrentDrawer == "" || s.CurrentWord != ""
}
