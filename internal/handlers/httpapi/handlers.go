package httpapi

import (
	"context"
	_ "embed"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/KirkDiggler/doodle/internal/models"
	"github.com/KirkDiggler/doodle/internal/repositories/store"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320

//go:embed static/index.html
var indexHTML []byte

type handlers struct {
	store     store.Store
	publicURL string
	health    func(ctx context.Context) error
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			log.Warn().Err(err).Msg("httpapi: health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// qr serves a PNG QR code of the room join link
func (h *handlers) qr(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")

	png, err := qrcode.Encode(h.joinURL(r, room), qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (h *handlers) joinURL(r *http.Request, room string) string {
	base := strings.TrimSuffix(h.publicURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}

	return base + "/?room=" + url.QueryEscape(room)
}

// PlayersResponse is the body of /rooms/{room}/players
type PlayersResponse struct {
	Room    string          `json:"room"`
	Players []models.Player `json:"players"`
}

// players lists the roster straight from the store, in publish order
func (h *handlers) players(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")

	children, err := h.store.Children(r.Context(), models.StreamsFor(room).Players)
	if err != nil {
		log.Error().Err(err).Str("room", room).Msg("httpapi: failed to list players")
		http.Error(w, "failed to list players", http.StatusInternalServerError)
		return
	}

	seen := make(map[string]struct{}, len(children))
	players := make([]models.Player, 0, len(children))
	for _, c := range children {
		var p models.Player
		if err := json.Unmarshal(c.Value, &p); err != nil || !p.Valid() {
			continue
		}
		if _, ok := seen[p.UserID]; ok {
			continue
		}
		seen[p.UserID] = struct{}{}
		players = append(players, p)
	}

	writeJSON(w, http.StatusOK, PlayersResponse{Room: room, Players: players})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
