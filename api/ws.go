package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hazyhaar/recwatch/events"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	// wsSendBuffer is per client; a client that cannot drain this many
	// events is disconnected rather than allowed to stall the hub.
	wsSendBuffer = 64
)

// Hub relays engine events to WebSocket clients, one room per session.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	rooms map[string]map[*wsClient]struct{}
}

// NewHub creates an empty hub. Wire it to the engine with
// bus.Subscribe(hub.HandleEvent).
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The recorder UI runs on a different origin in development.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		rooms: make(map[string]map[*wsClient]struct{}),
	}
}

// HandleEvent is an events.Handler: it fans the event out to every client
// subscribed to its session.
func (h *Hub) HandleEvent(_ context.Context, ev events.Event) error {
	msg, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.rooms[ev.SessionID]))
	for c := range h.rooms[ev.SessionID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- msg:
		case <-c.done:
		default:
			// slow consumer; disconnect it so the rest of the room keeps up
			h.drop(c)
		}
	}
	return nil
}

func (h *Hub) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "session", sessionID, "error", err)
		return
	}
	c := &wsClient{
		hub:       h,
		sessionID: sessionID,
		conn:      conn,
		send:      make(chan []byte, wsSendBuffer),
		done:      make(chan struct{}),
	}
	h.mu.Lock()
	room, ok := h.rooms[sessionID]
	if !ok {
		room = make(map[*wsClient]struct{})
		h.rooms[sessionID] = room
	}
	room[c] = struct{}{}
	h.mu.Unlock()

	go c.writePump()
	go c.readPump()
}

// drop removes the client from its room and signals its pumps to exit.
// The send channel is never closed: HandleEvent may still hold a snapshot
// that includes this client, so teardown goes through done instead.
func (h *Hub) drop(c *wsClient) {
	h.mu.Lock()
	room := h.rooms[c.sessionID]
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, c.sessionID)
	}
	h.mu.Unlock()
	c.closeOnce.Do(func() { close(c.done) })
}

// ClientCount reports the number of clients subscribed to a session.
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}

type wsClient struct {
	hub       *Hub
	sessionID string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// readPump discards inbound frames; the stream is one-way. It exists to
// notice the close handshake and pong replies.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.drop(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
