package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/KirkDiggler/doodle/internal/common/clock"
	"github.com/KirkDiggler/doodle/internal/models"
	"github.com/KirkDiggler/doodle/internal/repositories/store"
	"github.com/KirkDiggler/doodle/internal/services/messaging"
	"github.com/KirkDiggler/doodle/internal/services/session"
	"github.com/rs/zerolog/log"
)

var (
	// ErrEmptyMessage is returned for blank chat input; nothing is published
	ErrEmptyMessage = errors.New("message cannot be empty")

	ErrNilConfig     = errors.New("config cannot be nil")
	ErrNilStore      = errors.New("store cannot be nil")
	ErrNilState      = errors.New("session state cannot be nil")
	ErrNilClock      = errors.New("clock cannot be nil")
	ErrNilMessaging  = errors.New("messaging service cannot be nil")
	ErrNilFeed       = errors.New("feed cannot be nil")
	ErrNilRoundEnder = errors.New("round ender cannot be nil")
)

// RoundWon announces a correct guess
type RoundWon struct {
	WinnerID   string                `json:"winnerId"`
	WinnerName string                `json:"winnerName"`
	Word       string                `json:"word"`
	Title      string                `json:"title"`
	Message    string                `json:"message"`
	Tone       messaging.MessageTone `json:"tone"`
}

// Feed shows the chat of one peer
type Feed interface {
	// ShowMessage renders one message; own is true for the local user's messages
	ShowMessage(msg models.ChatMessage, own bool)

	ShowRoundWon(won RoundWon)
}

// RoundEnder moves the room on once the word is guessed
type RoundEnder interface {
	EndRound(ctx context.Context, winner models.ChatMessage) error
}

// RoundEnderFunc adapts a function to RoundEnder
type RoundEnderFunc func(ctx context.Context, winner models.ChatMessage) error

// EndRound calls f
func (f RoundEnderFunc) EndRound(ctx context.Context, winner models.ChatMessage) error {
	return f(ctx, winner)
}

// Config holds the dependencies of the chat service
type Config struct {
	Store store.Store
	State *session.State

	// Key is the chat collection of the room
	Key string

	Clock      clock.Clock
	Messaging  messaging.Service
	Feed       Feed
	RoundEnder RoundEnder

	// RoundTone styles round-won announcements, celebration when empty
	RoundTone messaging.MessageTone
}

// Service sends chat messages and evaluates them as guesses
type Service struct {
	store     store.Store
	state     *session.State
	key       string
	clock     clock.Clock
	messaging messaging.Service
	feed      Feed
	ender     RoundEnder
	tone      messaging.MessageTone

	mu   sync.Mutex
	ctx  context.Context
	seen map[string]struct{}
}

// New creates a chat service
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
	if cfg.Messaging == nil {
		return nil, ErrNilMessaging
	}
	if cfg.Feed == nil {
		return nil, ErrNilFeed
	}
	if cfg.RoundEnder == nil {
		return nil, ErrNilRoundEnder
	}

	key := cfg.Key
	if key == "" {
		key = models.StreamsFor("").Chat
	}

	return &Service{
		store:     cfg.Store,
		state:     cfg.State,
		key:       key,
		clock:     cfg.Clock,
		messaging: cfg.Messaging,
		feed:      cfg.Feed,
		ender:     cfg.RoundEnder,
		tone:      cfg.RoundTone,
		ctx:       context.Background(),
		seen:      make(map[string]struct{}),
	}, nil
}

// SendMessage publishes text as the local user
func (s *Service) SendMessage(ctx context.Context, text string) (*models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	msg := models.ChatMessage{
		UserID:    s.state.LocalUserID(),
		Username:  s.state.LocalUsername(),
		Message:   text,
		Timestamp: s.clock.Now(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat message: %w", err)
	}

	id, err := s.store.Set(ctx, s.key, data)
	if err != nil {
		return nil, fmt.Errorf("failed to send chat message: %w", err)
	}
	msg.ID = id

	return &msg, nil
}

// Subscribe renders existing and new chat messages
func (s *Service) Subscribe(ctx context.Context) (store.Subscription, error) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	return s.store.MapOnce(ctx, s.key, s.Handle)
}

// Handle renders one chat child and checks it against the current word
func (s *Service) Handle(childID string, value []byte) {
	var msg models.ChatMessage
	if err := json.Unmarshal(value, &msg); err != nil || !msg.Valid() {
		log.Debug().Str("key", s.key).Str("child", childID).Msg("chat: dropping malformed message")
		return
	}
	msg.ID = childID

	s.mu.Lock()
	if _, ok := s.seen[childID]; ok {
		s.mu.Unlock()
		return
	}
	s.seen[childID] = struct{}{}
	ctx := s.ctx
	s.mu.Unlock()

	s.feed.ShowMessage(msg, msg.UserID == s.state.LocalUserID())

	if _, ok := s.IsCorrectGuess(msg); !ok {
		return
	}

	// The announcement follows once the next round is accepted
	if err := s.ender.EndRound(ctx, msg); err != nil {
		log.Warn().Err(err).Str("key", s.key).Msg("chat: failed to end round")
	}
}

// IsCorrectGuess reports whether msg names the current word. The drawer
// cannot guess, and messages sent before the round began never count.
func (s *Service) IsCorrectGuess(msg models.ChatMessage) (string, bool) {
	sess := s.state.Session()

	if !sess.Started() || msg.UserID == sess.CurrentDrawer {
		return "", false
	}
	if msg.Timestamp.Before(sess.StartedAt) {
		return "", false
	}
	if strings.ToLower(strings.TrimSpace(msg.Message)) != strings.ToLower(sess.CurrentWord) {
		return "", false
	}

	return sess.CurrentWord, true
}

// AnnounceWin shows the round-won notification for a session that a
// correct guess brought about
func (s *Service) AnnounceWin(ctx context.Context, sess models.Session) {
	if !sess.EndedByGuess() {
		return
	}

	won := RoundWon{
		WinnerID:   sess.WinnerID,
		WinnerName: sess.WinnerName,
		Word:       sess.PreviousWord,
	}

	out, err := s.messaging.GetRoundWonMessage(ctx, &messaging.GetRoundWonMessageInput{
		WinnerName:    sess.WinnerName,
		Word:          sess.PreviousWord,
		IsLocalWinner: sess.WinnerID == s.state.LocalUserID(),
		PreferredTone: s.tone,
	})
	if err != nil {
		log.Warn().Err(err).Msg("chat: failed to build round won message")
	} else {
		won.Title = out.Title
		won.Message = out.Message
		won.Tone = out.Tone
	}

	s.feed.ShowRoundWon(won)
}
