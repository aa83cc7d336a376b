package ws

import (
	"encoding/json"
	"time"

	"github.com/KirkDiggler/doodle/internal/models"
	"github.com/KirkDiggler/doodle/internal/services/roster"
	"github.com/KirkDiggler/doodle/internal/services/stroke"
)

// Frame types sent by the browser
const (
	FrameStroke = "stroke"
	FrameClear  = "clear"
	FrameChat   = "chat"
)

// Frame types sent to the browser
const (
	FrameWelcome  = "welcome"
	FrameSegment  = "segment"
	FrameRoster   = "roster"
	FrameStatus   = "status"
	FrameRoundWon = "round_won"
	FrameError    = "error"
)

// ClientMessage is a frame sent by the browser
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ServerMessage is a frame sent to the browser
type ServerMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// StrokeData is a segment in display coordinates
type StrokeData struct {
	X0    float64 `json:"x0"`
	Y0    float64 `json:"y0"`
	X1    float64 `json:"x1"`
	Y1    float64 `json:"y1"`
	Color string  `json:"color"`
	Size  float64 `json:"size"`

	// Viewport maps display to canvas pixels, no scaling when zero
	Viewport stroke.Viewport `json:"viewport"`
}

// Segment returns the segment still in display coordinates
func (d StrokeData) Segment() models.StrokeSegment {
	return models.StrokeSegment{
		X0:    d.X0,
		Y0:    d.Y0,
		X1:    d.X1,
		Y1:    d.Y1,
		Color: d.Color,
		Size:  d.Size,
	}
}

// ChatData is a chat line typed by the user
type ChatData struct {
	Message string `json:"message"`
}

// WelcomeData tells the browser who it is
type WelcomeData struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Room     string `json:"room"`
}

// ChatMessageData is one rendered chat line
type ChatMessageData struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Own       bool      `json:"own"`
}

// RosterData is the whole roster
type RosterData struct {
	Players []roster.Entry `json:"players"`
}

// ErrorData explains a rejected action
type ErrorData struct {
	Message string `json:"message"`
}
