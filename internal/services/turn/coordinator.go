package turn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KirkDiggler/doodle/internal/common/clock"
	"github.com/KirkDiggler/doodle/internal/models"
	"github.com/KirkDiggler/doodle/internal/repositories/store"
	"github.com/KirkDiggler/doodle/internal/services/messaging"
	"github.com/KirkDiggler/doodle/internal/services/session"
	"github.com/KirkDiggler/doodle/internal/words"
	"github.com/rs/zerolog/log"
)

// Coordinator elects drawers and advances rounds through the session record
type Coordinator struct {
	store          store.Store
	state          *session.State
	key            string
	picker         words.Picker
	clock          clock.Clock
	messaging      messaging.Service
	canvas         Resetter
	view           StatusView
	roster         Renderer
	announcer      WinAnnouncer
	bootstrapDelay time.Duration

	mu      sync.Mutex
	started bool
	ctx     context.Context
	sub     store.Subscription
	timer   clock.Timer
}

// New creates a turn coordinator
func New(cfg *Config) (*Coordinator, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if cfg.Store == nil {
		return nil, ErrNilStore
	}
	if cfg.State == nil {
		return nil, ErrNilState
	}
	if cfg.Picker == nil {
		return nil, ErrNilPicker
	}
	if cfg.Clock == nil {
		return nil, ErrNilClock
	}
	if cfg.Messaging == nil {
		return nil, ErrNilMessaging
	}
	if cfg.Canvas == nil {
		return nil, ErrNilCanvas
	}
	if cfg.View == nil {
		return nil, ErrNilView
	}

	key := cfg.Key
	if key == "" {
		key = models.StreamsFor("").GameState
	}

	delay := cfg.BootstrapDelay
	if delay <= 0 {
		delay = DefaultBootstrapDelay
	}

	return &Coordinator{
		store:          cfg.Store,
		state:          cfg.State,
		key:            key,
		picker:         cfg.Picker,
		clock:          cfg.Clock,
		messaging:      cfg.Messaging,
		canvas:         cfg.Canvas,
		view:           cfg.View,
		roster:         cfg.Roster,
		announcer:      cfg.Announcer,
		bootstrapDelay: delay,
	}, nil
}

// Start subscribes to the session record, then adopts it or, when the room
// has none, tries to elect the local user. It arms the bootstrap timer.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.ctx = ctx
	c.mu.Unlock()

	// Subscribe before reading so no write falls between the two
	sub, err := c.store.On(ctx, c.key, c.HandleSession)
	if err != nil {
		return fmt.Errorf("failed to subscribe to session: %w", err)
	}

	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()

	value, err := c.store.Get(ctx, c.key)
	switch {
	case err == nil:
		c.HandleSession(value)
	case errors.Is(err, store.ErrNotFound):
		if err := c.electSelf(ctx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("failed to get session: %w", err)
	}

	c.render()

	timer := c.clock.AfterFunc(c.bootstrapDelay, c.bootstrap)

	c.mu.Lock()
	c.timer = timer
	c.mu.Unlock()

	return nil
}

// electSelf writes the first session of the room with the local user drawing
func (c *Coordinator) electSelf(ctx context.Context) error {
	first := models.Session{
		CurrentDrawer: c.state.LocalUserID(),
		CurrentWord:   c.picker.Pick(),
		Round:         1,
		Version:       1,
		StartedAt:     c.clock.Now(),
	}

	won, err := c.write(ctx, 0, first)
	if err != nil {
		return err
	}

	if !won {
		log.Debug().Str("key", c.key).Msg("turn: another peer initialized the session")
	}

	return nil
}

// bootstrap runs once after Start; no retry
func (c *Coordinator) bootstrap() {
	if len(c.state.PlayerIDs()) == 0 || c.state.CurrentDrawer() != "" {
		return
	}

	if _, err := c.StartNewRound(c.context()); err != nil {
		log.Warn().Err(err).Str("key", c.key).Msg("turn: bootstrap round failed")
	}
}

// StartNewRound hands the turn to the next player with a fresh word.
// Losing the write to another peer is not an error.
func (c *Coordinator) StartNewRound(ctx context.Context) (*StartNewRoundOutput, error) {
	return c.advance(ctx, nil)
}

// advance writes the next round; winner is set when a guess ended the current one
func (c *Coordinator) advance(ctx context.Context, winner *models.ChatMessage) (*StartNewRoundOutput, error) {
	order := c.state.PlayerIDs()
	if len(order) == 0 {
		return nil, ErrNoPlayers
	}

	current := c.state.Session()
	next := models.Session{
		CurrentDrawer: NextDrawer(order, current.CurrentDrawer),
		CurrentWord:   c.picker.Pick(),
		Round:         current.Round + 1,
		Version:       current.Version + 1,
		StartedAt:     c.clock.Now(),
	}
	if winner != nil {
		next.WinnerID = winner.UserID
		next.WinnerName = c.displayName(*winner)
		next.PreviousWord = current.CurrentWord
	}

	won, err := c.write(ctx, current.Version, next)
	if err != nil {
		return nil, err
	}

	output := &StartNewRoundOutput{
		Session:  next,
		Advanced: won,
	}

	if !won {
		log.Debug().
			Str("key", c.key).
			Int64("version", current.Version).
			Msg("turn: lost round change to another peer")
		return output, nil
	}

	log.Info().
		Str("key", c.key).
		Str("drawer", next.CurrentDrawer).
		Int("round", next.Round).
		Msg("turn: new round")

	if err := c.canvas.Reset(ctx); err != nil {
		return output, fmt.Errorf("failed to clear canvas for new round: %w", err)
	}

	return output, nil
}

// EndRound closes the round won by winner's message and starts the next one
func (c *Coordinator) EndRound(ctx context.Context, winner models.ChatMessage) error {
	log.Info().
		Str("key", c.key).
		Str("winner", winner.UserID).
		Str("word", c.state.CurrentWord()).
		Msg("turn: word guessed")

	if _, err := c.advance(ctx, &winner); err != nil {
		return fmt.Errorf("failed to start next round: %w", err)
	}

	return nil
}

// write publishes next if the stored version still equals expected
func (c *Coordinator) write(ctx context.Context, expected int64, next models.Session) (bool, error) {
	data, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("failed to marshal session: %w", err)
	}

	won, err := c.store.PutVersioned(ctx, c.key, expected, data)
	if err != nil {
		return false, fmt.Errorf("failed to write session: %w", err)
	}

	if won {
		c.accept(next)
	}

	return won, nil
}

// accept applies sess and renders it. A round change caused by a guess is
// announced, unless this peer only just adopted the room.
func (c *Coordinator) accept(sess models.Session) {
	prev := c.state.Session()
	if !c.state.ApplySession(sess) {
		return
	}

	c.render()

	if c.announcer != nil && prev.Round > 0 && sess.Round > prev.Round && sess.EndedByGuess() {
		c.announcer.AnnounceWin(c.context(), sess)
	}
}

func (c *Coordinator) context() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

func (c *Coordinator) displayName(msg models.ChatMessage) string {
	if msg.Username != "" {
		return msg.Username
	}
	if p, ok := c.state.Player(msg.UserID); ok {
		return p.Username
	}
	return msg.UserID
}

// HandleSession applies one session record delivered by the store
func (c *Coordinator) HandleSession(value []byte) {
	var sess models.Session
	if err := json.Unmarshal(value, &sess); err != nil || !sess.Valid() {
		log.Debug().Str("key", c.key).Msg("turn: dropping malformed session")
		return
	}

	c.accept(sess)
}

// Status builds the status line of the local user
func (c *Coordinator) Status() Status {
	snap := c.state.Snapshot()

	status := Status{
		Started:    snap.Session.Started(),
		Drawing:    snap.Drawing(),
		DrawerID:   snap.Session.CurrentDrawer,
		DrawerName: snap.DrawerName(),
		Round:      snap.Session.Round,
	}
	if status.Drawing {
		status.Word = snap.Session.CurrentWord
	}

	out, err := c.messaging.GetStatusMessage(context.Background(), &messaging.GetStatusMessageInput{
		Started:    status.Started,
		Drawing:    status.Drawing,
		DrawerName: status.DrawerName,
		Word:       status.Word,
	})
	if err != nil {
		log.Warn().Err(err).Msg("turn: failed to build status message")
	} else {
		status.Message = out.Message
	}

	return status
}

func (c *Coordinator) render() {
	c.view.ShowStatus(c.Status())
	if c.roster != nil {
		c.roster.Render()
	}
}

// Phase reports where the room is in its turn cycle
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()

	switch {
	case !started:
		return PhaseUninitialized
	case c.state.CurrentDrawer() == "":
		return PhaseAwaitingFirstDrawer
	default:
		return PhaseRoundInProgress
	}
}

// Close stops the bootstrap timer and the session subscription
func (c *Coordinator) Close() error {
	c.mu.Lock()
	timer, sub := c.timer, c.sub
	c.timer, c.sub = nil, nil
	c.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if sub != nil {
		return sub.Close()
	}
	return nil
}
