package turn

import (
	"context"
	"time"

	"github.com/KirkDiggler/doodle/internal/common/clock"
	"github.com/KirkDiggler/doodle/internal/models"
	"github.com/KirkDiggler/doodle/internal/repositories/store"
	"github.com/KirkDiggler/doodle/internal/services/messaging"
	"github.com/KirkDiggler/doodle/internal/services/session"
	"github.com/KirkDiggler/doodle/internal/words"
)

// DefaultBootstrapDelay is how long Start waits before electing a first drawer
const DefaultBootstrapDelay = time.Second

// Phase is where the room is in its turn cycle, as seen by this peer
type Phase int

const (
	// PhaseUninitialized is before Start
	PhaseUninitialized Phase = iota

	// PhaseAwaitingFirstDrawer is after Start while no drawer is known
	PhaseAwaitingFirstDrawer

	// PhaseRoundInProgress is any time a drawer is known
	PhaseRoundInProgress
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseAwaitingFirstDrawer:
		return "awaiting_first_drawer"
	case PhaseRoundInProgress:
		return "round_in_progress"
	default:
		return "unknown"
	}
}

// Status is what a peer shows above its canvas
type Status struct {
	Started    bool   `json:"started"`
	Drawing    bool   `json:"drawing"`
	DrawerID   string `json:"drawerId,omitempty"`
	DrawerName string `json:"drawerName,omitempty"`

	// Word is only filled in for the drawer
	Word string `json:"word,omitempty"`

	Round   int    `json:"round"`
	Message string `json:"message"`
}

// StatusView shows the turn status of one peer
type StatusView interface {
	ShowStatus(status Status)
}

// Resetter blanks every canvas of the room at round change
type Resetter interface {
	Reset(ctx context.Context) error
}

// Renderer redraws the roster when the drawer changes
type Renderer interface {
	Render()
}

// WinAnnouncer is told about every accepted round change that a correct
// guess caused, exactly once per peer
type WinAnnouncer interface {
	AnnounceWin(ctx context.Context, sess models.Session)
}

// Config holds the dependencies of the coordinator
type Config struct {
	Store store.Store
	State *session.State

	// Key is the session record of the room
	Key string

	Picker    words.Picker
	Clock     clock.Clock
	Messaging messaging.Service
	Canvas    Resetter
	View      StatusView

	// Roster and Announcer are optional
	Roster    Renderer
	Announcer WinAnnouncer

	// BootstrapDelay defaults to DefaultBootstrapDelay
	BootstrapDelay time.Duration
}

// StartNewRoundOutput is the result of StartNewRound
type StartNewRoundOutput struct {
	// Session is the record this peer tried to write
	Session models.Session

	// Advanced is false when another peer won the write for this version
	Advanced bool
}
