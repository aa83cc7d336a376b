package models

import (
	"encoding/json"
	"errors"
)

// ErrMalformedDrawEvent is returned when a draw record is neither a clear nor a full segment
var ErrMalformedDrawEvent = errors.New("malformed draw event")

// StrokeSegment is one line segment of a freehand stroke in canvas pixels
type StrokeSegment struct {
	X0    float64 `json:"x0"`
	Y0    float64 `json:"y0"`
	X1    float64 `json:"x1"`
	Y1    float64 `json:"y1"`
	Color string  `json:"color"`
	Size  float64 `json:"size"`
}

// DrawEvent is a record of the draw stream: either a clear or a segment
type DrawEvent struct {
	// Clear blanks every canvas
	Clear bool

	// Segment is set when Clear is false
	Segment *StrokeSegment

	// Origin tags the publishing peer so it can skip its own echo
	Origin string

	// Round is the session round the event belongs to. A clear opens its
	// round; segments of older rounds are stale.
	Round int
}

// drawWire is the flat form shared by segments and clears on the wire
type drawWire struct {
	Clear  bool     `json:"clear,omitempty"`
	X0     *float64 `json:"x0,omitempty"`
	Y0     *float64 `json:"y0,omitempty"`
	X1     *float64 `json:"x1,omitempty"`
	Y1     *float64 `json:"y1,omitempty"`
	Color  string   `json:"color,omitempty"`
	Size   float64  `json:"size,omitempty"`
	Origin string   `json:"origin,omitempty"`
	Round  int      `json:"round,omitempty"`
}

// MarshalJSON flattens the event
func (e DrawEvent) MarshalJSON() ([]byte, error) {
	w := drawWire{Clear: e.Clear, Origin: e.Origin, Round: e.Round}
	if !e.Clear {
		if e.Segment == nil {
			return nil, ErrMalformedDrawEvent
		}
		seg := *e.Segment
		w.X0, w.Y0, w.X1, w.Y1 = &seg.X0, &seg.Y0, &seg.X1, &seg.Y1
		w.Color = seg.Color
		w.Size = seg.Size
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts a clear or a segment with all four coordinates
func (e *DrawEvent) UnmarshalJSON(data []byte) error {
	var w drawWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*e = DrawEvent{Origin: w.Origin, Round: w.Round}
	if w.Clear {
		e.Clear = true
		return nil
	}

	if w.X0 == nil || w.Y0 == nil || w.X1 == nil || w.Y1 == nil {
		return ErrMalformedDrawEvent
	}

	e.Segment = &StrokeSegment{
		X0:    *w.X0,
		Y0:    *w.Y0,
		X1:    *w.X1,
		Y1:    *w.Y1,
		Color: w.Color,
		Size:  w.Size,
	}
	return nil
}
