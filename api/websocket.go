package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Message types pushed to dashboard clients.
const (
	MsgProgress         = "progress"
	MsgAnalysisComplete = "analysis_complete"
	MsgBatchEntry       = "batch_entry"
	MsgWelcome          = "welcome"
	MsgPong             = "pong"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the dashboard is served from the same binary
	},
}

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	sendBuffer = 256
)

// WSMessage is the JSON frame exchanged with dashboard clients.
type WSMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// WSClient is one connected browser. send is owned by the hub, which
// closes it on drop or shutdown; pong is never closed and only the write
// pump reads it.
type WSClient struct {
	id   string
	hub  *WSHub
	send chan WSMessage
	pong chan struct{}
}

func newWSClient(hub *WSHub, buffer int) *WSClient {
	return &WSClient{
		id:   uuid.New().String(),
		hub:  hub,
		send: make(chan WSMessage, buffer),
		pong: make(chan struct{}, 1),
	}
}

// WSHub fans pipeline progress out to every connected client. Slow
// clients whose buffer is full are dropped.
type WSHub struct {
	register   chan *WSClient
	unregister chan *WSClient
	broadcast  chan WSMessage
	done       chan struct{}
	logger     zerolog.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// NewWSHub creates a hub. Call Run to start it.
func NewWSHub(logger zerolog.Logger) *WSHub {
	return &WSHub{
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		broadcast:  make(chan WSMessage, sendBuffer),
		done:       make(chan struct{}),
		logger:     logger,
		clients:    make(map[*WSClient]struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is canceled, then
// closes every client.
func (h *WSHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug().Str("client", c.id).Msg("websocket client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Debug().Str("client", c.id).Msg("websocket client disconnected")

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					delete(h.clients, c)
					close(c.send)
					h.logger.Warn().Str("client", c.id).Msg("dropping slow websocket client")
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register adds a client. After the hub stops the client's channel is
// closed instead.
func (h *WSHub) Register(c *WSClient) {
	select {
	case h.register <- c:
	case <-h.done:
		close(c.send)
	}
}

// Unregister removes a client. It is a no-op once the hub has stopped.
func (h *WSHub) Unregister(c *WSClient) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast queues msg for every client. It never blocks; when the queue
// is full the message is dropped.
func (h *WSHub) Broadcast(msg WSMessage) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn().Str("type", msg.Type).Msg("websocket broadcast queue full")
	}
}

// ClientCount returns the number of connected clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWebSocket upgrades the connection and streams pipeline progress.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := newWSClient(s.hub, sendBuffer)
	client.send <- WSMessage{Type: MsgWelcome, Data: map[string]string{"client_id": client.id}}
	s.hub.Register(client)

	go s.wsWritePump(conn, client)
	go s.wsReadPump(conn, client)
}

// wsReadPump reads client frames until the connection closes. Only "ping"
// is understood; everything else is ignored.
func (s *Server) wsReadPump(conn *websocket.Conn, client *WSClient) {
	defer func() {
		client.hub.Unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Str("client", client.id).Msg("websocket read error")
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			select {
			case client.pong <- struct{}{}:
			default:
			}
		}
	}
}

// wsWritePump writes queued messages and keepalive pings.
func (s *Server) wsWritePump(conn *websocket.Conn, client *WSClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}

		case <-client.pong:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(WSMessage{Type: MsgPong}); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
