package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"nhooyr.io/websocket"

	"github.com/dokzlo13/visbind/internal/dashboard"
)

// Message types sent to websocket clients.
const (
	MessageSnapshot = "snapshot"
	MessageView     = "view"
)

// Message is one websocket frame. A client first receives a snapshot of
// every view, then one view message per change.
type Message struct {
	Type  string           `json:"type"`
	View  *dashboard.View  `json:"view,omitempty"`
	Views []dashboard.View `json:"views,omitempty"`
}

// Hub fans view changes out to websocket clients.
type Hub struct {
	clients map[*wsClient]struct{}
	mu      sync.RWMutex

	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan Message

	done     chan struct{}
	stopOnce sync.Once
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub. Run must be called to serve clients.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*wsClient]struct{}),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan Message, 256),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until Stop. snapshot supplies the views sent to a
// newly registered client.
func (h *Hub) Run(snapshot func() []dashboard.View) {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			log.Debug().Int("total", total).Msg("Websocket client connected")

			if data, err := json.Marshal(Message{Type: MessageSnapshot, Views: snapshot()}); err == nil {
				h.sendTo(client, data)
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Debug().Int("total", total).Msg("Websocket client disconnected")

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				log.Error().Err(err).Msg("Failed to marshal websocket message")
				continue
			}
			h.mu.RLock()
			clients := make([]*wsClient, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()
			for _, client := range clients {
				h.sendTo(client, data)
			}
		}
	}
}

// sendTo queues data for client, evicting it when its buffer is full.
// Only called from Run.
func (h *Hub) sendTo(client *wsClient, data []byte) {
	select {
	case client.send <- data:
		return
	default:
	}

	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		log.Warn().Msg("Websocket client evicted (too slow)")
	}
	h.mu.Unlock()
}

// Stop shuts the hub down. Safe to call multiple times.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

// Broadcast queues msg for every client without blocking.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		log.Warn().Msg("Websocket broadcast channel full, dropping message")
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if len(s.allowedOrigins) > 0 {
		opts.OriginPatterns = s.allowedOrigins
	}

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		log.Error().Err(err).Msg("Websocket accept failed")
		return
	}
	conn.SetReadLimit(4096)

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close(websocket.StatusGoingAway, "server shutdown")
		return
	}

	go writePump(client)
	s.readPump(client)
}

func writePump(client *wsClient) {
	for msg := range client.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := client.conn.Write(ctx, websocket.MessageText, msg)
		cancel()
		if err != nil {
			return
		}
	}
	client.conn.Close(websocket.StatusNormalClosure, "")
}

// readPump discards client frames and unregisters the client once the
// connection ends.
func (s *Server) readPump(client *wsClient) {
	defer func() {
		select {
		case s.hub.unregister <- client:
		case <-s.hub.done:
			client.conn.Close(websocket.StatusGoingAway, "server shutdown")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-s.hub.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		if _, _, err := client.conn.Read(ctx); err != nil {
			return
		}
	}
}
