package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/KirkDiggler/doodle/internal/repositories/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

var (
	ErrNilConfig    = errors.New("config cannot be nil")
	ErrNilStore     = errors.New("store cannot be nil")
	ErrNilWebSocket = errors.New("websocket handler cannot be nil")
)

// Config holds the dependencies of the HTTP API
type Config struct {
	Store store.Store

	// WebSocket serves /ws
	WebSocket http.Handler

	// PublicURL is the base of join links, derived from the request when empty
	PublicURL string

	// Health reports backend reachability, always healthy when nil
	Health func(ctx context.Context) error
}

// SetupRoutes builds the router
func SetupRoutes(cfg *Config) (http.Handler, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if cfg.Store == nil {
		return nil, ErrNilStore
	}
	if cfg.WebSocket == nil {
		return nil, ErrNilWebSocket
	}

	h := &handlers{
		store:     cfg.Store,
		publicURL: cfg.PublicURL,
		health:    cfg.Health,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", h.index)
	r.Get("/healthz", h.healthz)
	r.Handle("/ws", cfg.WebSocket)

	r.Route("/rooms/{room}", func(r chi.Router) {
		r.Get("/qr.png", h.qr)
		r.Get("/players", h.players)
	})

	return r, nil
}
