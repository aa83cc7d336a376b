package peer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/KirkDiggler/doodle/internal/common/clock"
	"github.com/KirkDiggler/doodle/internal/common/uuid"
	"github.com/KirkDiggler/doodle/internal/models"
	"github.com/KirkDiggler/doodle/internal/repositories/store"
	"github.com/KirkDiggler/doodle/internal/services/chat"
	"github.com/KirkDiggler/doodle/internal/services/messaging"
	"github.com/KirkDiggler/doodle/internal/services/roster"
	"github.com/KirkDiggler/doodle/internal/services/session"
	"github.com/KirkDiggler/doodle/internal/services/stroke"
	"github.com/KirkDiggler/doodle/internal/services/turn"
	"github.com/KirkDiggler/doodle/internal/words"
	"github.com/rs/zerolog/log"
)

var (
	ErrNilConfig      = errors.New("config cannot be nil")
	ErrNilStore       = errors.New("store cannot be nil")
	ErrNilView        = errors.New("view cannot be nil")
	ErrAlreadyStarted = errors.New("peer already started")
)

// View is everything a peer renders for its user
type View interface {
	stroke.Canvas
	chat.Feed
	roster.Board
	turn.StatusView
}

// Config holds configuration for one peer
type Config struct {
	Store store.Store

	// Room defaults to models.DefaultRoom
	Room string

	// UserID is generated when empty
	UserID string

	// Username defaults to PlayerNNN
	Username string

	View View

	// Optional, defaults are used when nil
	Picker    words.Picker
	Clock     clock.Clock
	UUID      uuid.UUID
	Messaging messaging.Service

	BootstrapDelay time.Duration

	// RoundTone styles round-won announcements
	RoundTone messaging.MessageTone
}

// Peer is one user's participation in one room
type Peer struct {
	room    string
	streams models.Streams
	state   *session.State

	strokes *stroke.Service
	turns   *turn.Coordinator
	chat    *chat.Service
	roster  *roster.Service

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	subs    []store.Subscription
}

// New assembles the components of one peer
func New(cfg *Config) (*Peer, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if cfg.Store == nil {
		return nil, ErrNilStore
	}
	if cfg.View == nil {
		return nil, ErrNilView
	}

	clk := cfg.Clock
	if clk == nil {
		clk = &clock.DefaultClock{}
	}

	gen := cfg.UUID
	if gen == nil {
		gen = uuid.New()
	}

	picker := cfg.Picker
	if picker == nil {
		p, err := words.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create word picker: %w", err)
		}
		picker = p
	}

	msgService := cfg.Messaging
	if msgService == nil {
		m, err := messaging.NewService(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create messaging service: %w", err)
		}
		msgService = m
	}

	room := cfg.Room
	if room == "" {
		room = models.DefaultRoom
	}

	userID := cfg.UserID
	if userID == "" {
		userID = gen.NewUUID()
	}

	username := cfg.Username
	if username == "" {
		username = fmt.Sprintf("Player%d", rand.Intn(1000))
	}

	state := session.New(userID, username)
	streams := models.StreamsFor(room)

	rosterService, err := roster.New(&roster.Config{
		Store: cfg.Store,
		State: state,
		Key:   streams.Players,
		Clock: clk,
		Board: cfg.View,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create roster: %w", err)
	}

	strokeService, err := stroke.New(&stroke.Config{
		Store:  cfg.Store,
		State:  state,
		Key:    streams.Draw,
		Canvas: cfg.View,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create stroke replicator: %w", err)
	}

	// The coordinator ends rounds for chat and chat announces them for the
	// coordinator, so chat reaches it through a func bound below
	var coordinator *turn.Coordinator

	chatService, err := chat.New(&chat.Config{
		Store:     cfg.Store,
		State:     state,
		Key:       streams.Chat,
		Clock:     clk,
		Messaging: msgService,
		Feed:      cfg.View,
		RoundEnder: chat.RoundEnderFunc(func(ctx context.Context, winner models.ChatMessage) error {
			return coordinator.EndRound(ctx, winner)
		}),
		RoundTone: cfg.RoundTone,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}

	coordinator, err = turn.New(&turn.Config{
		Store:          cfg.Store,
		State:          state,
		Key:            streams.GameState,
		Picker:         picker,
		Clock:          clk,
		Messaging:      msgService,
		Canvas:         strokeService,
		View:           cfg.View,
		Roster:         rosterService,
		Announcer:      chatService,
		BootstrapDelay: cfg.BootstrapDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create turn coordinator: %w", err)
	}

	return &Peer{
		room:    room,
		streams: streams,
		state:   state,
		strokes: strokeService,
		turns:   coordinator,
		chat:    chatService,
		roster:  rosterService,
	}, nil
}

// Start subscribes the roster, joins it, starts the turn coordinator, then
// subscribes chat and draw. Everything stops when ctx ends or Close is called.
func (p *Peer) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	if err := p.start(ctx); err != nil {
		p.Close()
		return err
	}

	log.Info().
		Str("room", p.room).
		Str("user_id", p.state.LocalUserID()).
		Str("username", p.state.LocalUsername()).
		Msg("peer: started")

	return nil
}

func (p *Peer) start(ctx context.Context) error {
	sub, err := p.roster.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to roster: %w", err)
	}
	p.track(sub)

	if err := p.roster.Join(ctx); err != nil {
		return err
	}

	if err := p.turns.Start(ctx); err != nil {
		return err
	}

	sub, err = p.chat.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to chat: %w", err)
	}
	p.track(sub)

	sub, err = p.strokes.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to draw stream: %w", err)
	}
	p.track(sub)

	return nil
}

func (p *Peer) track(sub store.Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = append(p.subs, sub)
}

// Close cancels every subscription and the bootstrap timer
func (p *Peer) Close() {
	p.mu.Lock()
	cancel, subs := p.cancel, p.subs
	p.cancel, p.subs = nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			log.Debug().Err(err).Str("room", p.room).Msg("peer: closing subscription")
		}
	}
	if err := p.turns.Close(); err != nil {
		log.Debug().Err(err).Str("room", p.room).Msg("peer: closing session subscription")
	}
}

// Draw normalizes a segment from display to canvas coordinates and emits it
func (p *Peer) Draw(ctx context.Context, seg models.StrokeSegment, vp stroke.Viewport) error {
	seg.X0, seg.Y0 = stroke.Normalize(seg.X0, seg.Y0, vp)
	seg.X1, seg.Y1 = stroke.Normalize(seg.X1, seg.Y1, vp)

	return p.strokes.EmitSegment(ctx, seg)
}

// Clear blanks the canvas of every peer in the room
func (p *Peer) Clear(ctx context.Context) error {
	return p.strokes.EmitClear(ctx)
}

// Say sends a chat message, which doubles as a guess
func (p *Peer) Say(ctx context.Context, text string) (*models.ChatMessage, error) {
	return p.chat.SendMessage(ctx, text)
}

// Identity returns the local user
func (p *Peer) Identity() (userID, username string) {
	return p.state.LocalUserID(), p.state.LocalUsername()
}

// Room returns the room name
func (p *Peer) Room() string {
	return p.room
}

// State exposes the session state for read access
func (p *Peer) State() *session.State {
	return p.state
}

// Status returns the current status line of the local user
func (p *Peer) Status() turn.Status {
	return p.turns.Status()
}

// Roster returns the roster as last known by this peer
func (p *Peer) Roster() []roster.Entry {
	return p.roster.Entries()
}

// Phase reports where the room is in its turn cycle
func (p *Peer) Phase() turn.Phase {
	return p.turns.Phase()
}
