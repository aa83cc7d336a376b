package models

import (
	"time"
)

// ChatMessage is one entry of the append-only room chat
type ChatMessage struct {
	// ID is the collection child ID assigned by the store
	ID string `json:"-"`

	// UserID is the author of the message
	UserID string `json:"userId"`

	// Username is the display name of the author
	Username string `json:"username"`

	// Message is the chat text, also evaluated as a guess
	Message string `json:"message"`

	// Timestamp is when the author sent the message
	Timestamp time.Time `json:"timestamp"`
}

// Valid reports whether the record carries an author and a text
func (m *ChatMessage) Valid() bool {
	return m != nil && m.UserID != "" && m.Message != ""
}
