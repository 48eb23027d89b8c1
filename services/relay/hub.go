package relaysvc

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/appointment"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

var errHubClosed = errors.New("relay hub closed")

type (
	// Hub fans out published payloads to the websocket clients of a room.
	// A client whose buffer is full is dropped: delivery is at most once.
	Hub struct {
		upgrader   websocket.Upgrader
		rooms      map[string]map[*client]bool
		broadcast  chan envelope
		register   chan *client
		unregister chan *client
		done       chan struct{}
		mu         sync.RWMutex // guards rooms for readers outside of Run
		logger     core.Logger
	}

	envelope struct {
		room    string
		payload []byte
	}

	client struct {
		hub  *Hub
		conn *websocket.Conn
		room string
		send chan []byte
	}
)

var _ appointment.Relay = (*Hub)(nil) // interface compliance check

func NewHub(logger core.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		rooms:      make(map[string]map[*client]bool),
		broadcast:  make(chan envelope),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run dispatches registrations and payloads until ctx is done; every client is then disconnected.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		h.mu.Lock()
		for room, clients := range h.rooms {
			for c := range clients {
				close(c.send)
			}
			delete(h.rooms, room)
		}
		h.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.mu.Lock()
			if h.rooms[c.room] == nil {
				h.rooms[c.room] = make(map[*client]bool)
			}
			h.rooms[c.room][c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			h.remove(c)
			h.mu.Unlock()

		case env := <-h.broadcast:
			h.mu.Lock()
			for c := range h.rooms[env.room] {
				select {
				case c.send <- env.payload:
				default:
					h.remove(c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove must be called with mu held.
func (h *Hub) remove(c *client) {
	clients, ok := h.rooms[c.room]
	if !ok || !clients[c] {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.rooms, c.room)
	}
}

// Publish sends payload to every client of room connected to this Hub.
func (h *Hub) Publish(ctx context.Context, room string, payload []byte) error {
	select {
	case h.broadcast <- envelope{room: room, payload: payload}:
		return nil
	case <-h.done:
		return errHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RoomSize returns the number of clients connected to room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ServeWS upgrades the request to a websocket listening to room.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, room string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return errors.Wrap(err, "upgrading connection")
	}

	c := &client{hub: h, conn: conn, room: room, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return errHubClosed
	}

	go c.writePump()
	go c.readPump()
	return nil
}

// readPump only watches the connection: messages are posted through the API, not the socket.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn(fmt.Sprintf("relay: unexpected websocket close: %v", err), err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
