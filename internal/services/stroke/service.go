package stroke

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/KirkDiggler/doodle/internal/models"
	"github.com/KirkDiggler/doodle/internal/repositories/store"
	"github.com/KirkDiggler/doodle/internal/services/session"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNotDrawer is returned when someone other than the current drawer draws or clears
	ErrNotDrawer = errors.New("only the current drawer may draw")

	ErrNilConfig = errors.New("config cannot be nil")
	ErrNilStore  = errors.New("store cannot be nil")
	ErrNilState  = errors.New("session state cannot be nil")
	ErrNilCanvas = errors.New("canvas cannot be nil")
)

// Canvas renders the draw stream for one peer
type Canvas interface {
	// DrawSegment renders a round-capped line
	DrawSegment(seg models.StrokeSegment)

	// Clear blanks the canvas
	Clear()
}

// Config holds the dependencies of the replicator
type Config struct {
	Store store.Store
	State *session.State

	// Key is the draw stream of the room
	Key string

	Canvas Canvas
}

// Service replicates strokes and clears through the draw stream
type Service struct {
	store  store.Store
	state  *session.State
	key    string
	canvas Canvas

	// mu orders canvas updates against floor, the newest round opened by a clear
	mu    sync.Mutex
	floor int
}

// New creates a stroke replicator
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
	if cfg.Canvas == nil {
		return nil, ErrNilCanvas
	}

	key := cfg.Key
	if key == "" {
		key = models.StreamsFor("").Draw
	}

	return &Service{
		store:  cfg.Store,
		state:  cfg.State,
		key:    key,
		canvas: cfg.Canvas,
	}, nil
}

// EmitSegment draws locally, then publishes. Only the drawer may emit, and
// only while no newer round has been opened.
func (s *Service) EmitSegment(ctx context.Context, seg models.StrokeSegment) error {
	sess, err := s.authorize()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.floor > sess.Round {
		s.mu.Unlock()
		return ErrNotDrawer
	}
	s.canvas.DrawSegment(seg)
	s.mu.Unlock()

	return s.publish(ctx, models.DrawEvent{Segment: &seg, Round: sess.Round})
}

// EmitClear blanks locally, then publishes a clear. Only the drawer may clear.
func (s *Service) EmitClear(ctx context.Context) error {
	sess, err := s.authorize()
	if err != nil {
		return err
	}

	s.mu.Lock()
	stale := s.floor > sess.Round
	s.mu.Unlock()
	if stale {
		return ErrNotDrawer
	}

	return s.Reset(ctx)
}

// Reset blanks every canvas without the drawer check; used between rounds.
// The clear opens the local session round, so strokes of earlier rounds
// arriving afterwards are dropped.
func (s *Service) Reset(ctx context.Context) error {
	round := s.state.Session().Round

	s.mu.Lock()
	s.floor = max(s.floor, round)
	s.canvas.Clear()
	s.mu.Unlock()

	return s.publish(ctx, models.DrawEvent{Clear: true, Round: round})
}

// authorize returns the session when the local user is its drawer
func (s *Service) authorize() (models.Session, error) {
	sess := s.state.Session()
	if !sess.Started() || sess.CurrentDrawer != s.state.LocalUserID() {
		return sess, ErrNotDrawer
	}
	return sess, nil
}

func (s *Service) publish(ctx context.Context, event models.DrawEvent) error {
	event.Origin = s.state.LocalUserID()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal draw event: %w", err)
	}

	if err := s.store.Put(ctx, s.key, data); err != nil {
		return fmt.Errorf("failed to publish draw event: %w", err)
	}

	return nil
}

// Subscribe starts applying the draw stream. Strokes drawn before the
// subscription are not replayed.
func (s *Service) Subscribe(ctx context.Context) (store.Subscription, error) {
	return s.store.On(ctx, s.key, s.Apply)
}

// Apply renders one draw stream record
func (s *Service) Apply(value []byte) {
	var event models.DrawEvent
	if err := json.Unmarshal(value, &event); err != nil {
		log.Debug().Err(err).Str("key", s.key).Msg("stroke: dropping malformed draw event")
		return
	}

	// Already rendered before publishing
	if event.Origin != "" && event.Origin == s.state.LocalUserID() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := max(s.floor, s.state.Session().Round)
	if event.Round < current {
		log.Debug().
			Str("key", s.key).
			Str("origin", event.Origin).
			Int("round", event.Round).
			Int("current", current).
			Msg("stroke: dropping draw event of an earlier round")
		return
	}

	if event.Clear {
		s.floor = event.Round
		s.canvas.Clear()
		return
	}

	s.canvas.DrawSegment(*event.Segment)
}
