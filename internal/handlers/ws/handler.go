package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/KirkDiggler/doodle/internal/common/clock"
	"github.com/KirkDiggler/doodle/internal/repositories/store"
	"github.com/KirkDiggler/doodle/internal/services/messaging"
	"github.com/KirkDiggler/doodle/internal/services/peer"
	"github.com/KirkDiggler/doodle/internal/words"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var (
	ErrNilConfig    = errors.New("config cannot be nil")
	ErrNilStore     = errors.New("store cannot be nil")
	ErrNilMessaging = errors.New("messaging service cannot be nil")
)

// Config holds configuration for the WebSocket gateway
type Config struct {
	Store     store.Store
	Messaging messaging.Service

	// Optional, peers fall back to their defaults
	Picker         words.Picker
	Clock          clock.Clock
	BootstrapDelay time.Duration

	// MessageRate limits inbound frames per second per connection, 0 disables
	MessageRate  float64
	MessageBurst int

	// RoundTone styles round-won announcements
	RoundTone messaging.MessageTone

	// CheckOrigin allows every origin when nil
	CheckOrigin func(r *http.Request) bool
}

// Handler upgrades requests and runs one peer per connection
type Handler struct {
	store          store.Store
	messaging      messaging.Service
	picker         words.Picker
	clock          clock.Clock
	bootstrapDelay time.Duration
	messageRate    float64
	messageBurst   int
	roundTone      messaging.MessageTone
	upgrader       websocket.Upgrader
}

// New creates the gateway
func New(cfg *Config) (*Handler, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if cfg.Store == nil {
		return nil, ErrNilStore
	}
	if cfg.Messaging == nil {
		return nil, ErrNilMessaging
	}

	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	burst := cfg.MessageBurst
	if burst <= 0 {
		burst = 1
	}

	return &Handler{
		store:          cfg.Store,
		messaging:      cfg.Messaging,
		picker:         cfg.Picker,
		clock:          cfg.Clock,
		bootstrapDelay: cfg.BootstrapDelay,
		messageRate:    cfg.MessageRate,
		messageBurst:   burst,
		roundTone:      cfg.RoundTone,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}, nil
}

// ServeHTTP handles GET /ws?room=R&username=U
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	username := r.URL.Query().Get("username")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the request
		log.Debug().Err(err).Msg("ws: upgrade failed")
		return
	}

	var limiter *rate.Limiter
	if h.messageRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(h.messageRate), h.messageBurst)
	}

	client := newClient(conn, limiter, h.messaging)

	p, err := peer.New(&peer.Config{
		Store:          h.store,
		Room:           room,
		Username:       username,
		View:           client,
		Picker:         h.picker,
		Clock:          h.clock,
		Messaging:      h.messaging,
		BootstrapDelay: h.bootstrapDelay,
		RoundTone:      h.roundTone,
	})
	if err != nil {
		log.Error().Err(err).Msg("ws: failed to create peer")
		_ = conn.Close()
		return
	}
	client.peer = p

	go client.writePump()
	defer client.close()

	userID, name := p.Identity()
	client.enqueue(FrameWelcome, WelcomeData{
		UserID:   userID,
		Username: name,
		Room:     p.Room(),
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := p.Start(ctx); err != nil {
		log.Error().Err(err).Str("room", p.Room()).Msg("ws: failed to start peer")
		return
	}
	defer p.Close()

	log.Info().
		Str("room", p.Room()).
		Str("user_id", userID).
		Str("username", name).
		Str("remote", r.RemoteAddr).
		Msg("ws: connected")

	client.readPump(ctx)

	log.Info().
		Str("room", p.Room()).
		Str("user_id", userID).
		Msg("ws: disconnected")
}
