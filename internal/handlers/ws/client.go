package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/KirkDiggler/doodle/internal/models"
	"github.com/KirkDiggler/doodle/internal/services/chat"
	"github.com/KirkDiggler/doodle/internal/services/messaging"
	"github.com/KirkDiggler/doodle/internal/services/peer"
	"github.com/KirkDiggler/doodle/internal/services/roster"
	"github.com/KirkDiggler/doodle/internal/services/stroke"
	"github.com/KirkDiggler/doodle/internal/services/turn"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
	sendBuffer     = 256
)

// Client is one browser connection. It renders its peer's view as frames.
type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	limiter   *rate.Limiter
	messaging messaging.Service

	peer *peer.Peer
}

func newClient(conn *websocket.Conn, limiter *rate.Limiter, msgService messaging.Service) *Client {
	return &Client{
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
		limiter:   limiter,
		messaging: msgService,
	}
}

// DrawSegment sends a segment frame
func (c *Client) DrawSegment(seg models.StrokeSegment) {
	c.enqueue(FrameSegment, seg)
}

// Clear sends a clear frame
func (c *Client) Clear() {
	c.enqueue(FrameClear, nil)
}

// ShowMessage sends a chat frame
func (c *Client) ShowMessage(msg models.ChatMessage, own bool) {
	c.enqueue(FrameChat, ChatMessageData{
		ID:        msg.ID,
		UserID:    msg.UserID,
		Username:  msg.Username,
		Message:   msg.Message,
		Timestamp: msg.Timestamp,
		Own:       own,
	})
}

// ShowRoundWon sends a round_won frame
func (c *Client) ShowRoundWon(won chat.RoundWon) {
	c.enqueue(FrameRoundWon, won)
}

// ShowRoster sends a roster frame
func (c *Client) ShowRoster(entries []roster.Entry) {
	c.enqueue(FrameRoster, RosterData{Players: entries})
}

// ShowStatus sends a status frame
func (c *Client) ShowStatus(status turn.Status) {
	c.enqueue(FrameStatus, status)
}

func (c *Client) enqueue(frameType string, data any) {
	payload, err := json.Marshal(ServerMessage{Type: frameType, Data: data})
	if err != nil {
		log.Error().Err(err).Str("frame", frameType).Msg("ws: failed to marshal frame")
		return
	}

	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- payload:
	default:
		// A stuck browser loses the connection, never single frames
		log.Warn().Str("frame", frameType).Msg("ws: send buffer full, closing connection")
		c.close()
	}
}

func (c *Client) sendError(ctx context.Context, errorType string) {
	out, err := c.messaging.GetErrorMessage(ctx, &messaging.GetErrorMessageInput{ErrorType: errorType})
	if err != nil {
		log.Warn().Err(err).Msg("ws: failed to build error message")
		return
	}
	c.enqueue(FrameError, ErrorData{Message: out.Message})
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// readPump dispatches browser frames until the connection fails
func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("ws: read failed")
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.sendError(ctx, messaging.ErrorTypeRateLimit)
			continue
		}

		c.dispatch(ctx, data)
	}
}

func (c *Client) dispatch(ctx context.Context, data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Debug().Err(err).Msg("ws: dropping malformed frame")
		return
	}

	var err error
	switch msg.Type {
	case FrameStroke:
		var in StrokeData
		if err := json.Unmarshal(msg.Data, &in); err != nil {
			log.Debug().Err(err).Msg("ws: dropping malformed stroke")
			return
		}
		err = c.peer.Draw(ctx, in.Segment(), in.Viewport)
	case FrameClear:
		err = c.peer.Clear(ctx)
	case FrameChat:
		var in ChatData
		if err := json.Unmarshal(msg.Data, &in); err != nil {
			log.Debug().Err(err).Msg("ws: dropping malformed chat")
			return
		}
		_, err = c.peer.Say(ctx, in.Message)
	default:
		log.Debug().Str("type", msg.Type).Msg("ws: unknown frame type")
		return
	}

	switch {
	case err == nil, errors.Is(err, chat.ErrEmptyMessage):
	case errors.Is(err, stroke.ErrNotDrawer):
		c.sendError(ctx, messaging.ErrorTypeNotDrawer)
	default:
		log.Warn().Err(err).Str("type", msg.Type).Msg("ws: action failed")
		c.sendError(ctx, messaging.ErrorTypeSendFailed)
	}
}

// writePump owns every write to the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
