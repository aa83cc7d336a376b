package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/KirkDiggler/doodle/internal/common/clock"
	"github.com/KirkDiggler/doodle/internal/models"
	"github.com/KirkDiggler/doodle/internal/repositories/store"
	"github.com/KirkDiggler/doodle/internal/services/session"
	"github.com/rs/zerolog/log"
)

var (
	ErrNilConfig = errors.New("config cannot be nil")
	ErrNilStore  = errors.New("store cannot be nil")
	ErrNilState  = errors.New("session state cannot be nil")
	ErrNilClock  = errors.New("clock cannot be nil")
	ErrNilBoard  = errors.New("board cannot be nil")
)

// Entry is one line of the rendered roster
type Entry struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Drawing  bool   `json:"drawing"`
	Local    bool   `json:"local"`
}

// Board shows the roster of one peer
type Board interface {
	ShowRoster(entries []Entry)
}

// Config holds the dependencies of the roster manager
type Config struct {
	Store store.Store
	State *session.State

	// Key is the players collection of the room
	Key string

	Clock clock.Clock
	Board Board
}

// Service publishes the local player and tracks everyone else
type Service struct {
	store store.Store
	state *session.State
	key   string
	clock clock.Clock
	board Board
}

// New creates a roster manager
func New(cfg *Config) (*Service, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if cfg.Store == nil {
		return nil, ErrNilStore
	}
	if cfg.State == nil {
		return nil, ErrNilState
	}
	if cfg.Clock == nil {
		return nil, ErrNilClock
	}
	if cfg.Board == nil {
		return nil, ErrNilBoard
	}

	key := cfg.Key
	if key == "" {
		key = models.StreamsFor("").Players
	}

	return &Service{
		store: cfg.Store,
		state: cfg.State,
		key:   key,
		clock: cfg.Clock,
		board: cfg.Board,
	}, nil
}

// Join publishes the local player to the roster
func (s *Service) Join(ctx context.Context) error {
	player := s.state.LocalPlayer(s.clock.Now())

	data, err := json.Marshal(player)
	if err != nil {
		return fmt.Errorf("failed to marshal player: %w", err)
	}

	if _, err := s.store.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("failed to join roster: %w", err)
	}

	log.Info().
		Str("key", s.key).
		Str("user_id", player.UserID).
		Str("username", player.Username).
		Msg("roster: joined")

	return nil
}

// Subscribe tracks existing and new players
func (s *Service) Subscribe(ctx context.Context) (store.Subscription, error) {
	return s.store.MapOn(ctx, s.key, s.Handle)
}

// Handle records one roster child
func (s *Service) Handle(childID string, value []byte) {
	var player models.Player
	if err := json.Unmarshal(value, &player); err != nil || !player.Valid() {
		log.Debug().Str("key", s.key).Str("child", childID).Msg("roster: dropping malformed player")
		return
	}

	// Already known
	if !s.state.AddPlayer(player) {
		return
	}

	s.Render()
}

// Entries lists the roster in join order with the drawer flagged
func (s *Service) Entries() []Entry {
	snap := s.state.Snapshot()

	entries := make([]Entry, 0, len(snap.Players))
	for _, p := range snap.Players {
		entries = append(entries, Entry{
			UserID:   p.UserID,
			Username: p.Username,
			Drawing:  p.UserID == snap.Session.CurrentDrawer,
			Local:    p.UserID == snap.LocalUserID,
		})
	}
	return entries
}

// Render pushes the current roster to the board
func (s *Service) Render() {
	s.board.ShowRoster(s.Entries())
}
