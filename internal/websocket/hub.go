package websocket

import (
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Hub manages dashboard WebSocket clients and fans broadcast frames out to
// them. Inbound client frames are surfaced on Commands for the live engine
// to interpret.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	Commands   chan []byte
	mu         sync.RWMutex
}

// NewHub creates a hub with no connected clients.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		Commands:   make(chan []byte, 16),
		clients:    make(map[*Client]bool),
	}
}

// Run starts the hub's event loop. Call it on its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Info().Int("clients", count).Msg("websocket client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Info().Int("clients", count).Msg("websocket client unregistered")

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer, drop the connection rather than block
					// the broadcast path.
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues a frame for every connected client.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		log.Warn().Msg("broadcast buffer full, dropping frame")
	}
}

// ClientCount reports how many clients are connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		// The dashboard is served off localhost during development.
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := u.Hostname()
		if host == "localhost" || host == "127.0.0.1" {
			return true
		}
		// Same-host deployments connect from the address they were served on.
		if reqHost, _, err := net.SplitHostPort(r.Host); err == nil && host == reqHost {
			return true
		}
		return host == r.Host
	},
}

// ServeWs upgrades an HTTP request to a WebSocket session and registers the
// client with the hub.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	client := &Client{hub: h, conn: conn, send: make(chan []byte, 256)}
	h.register <- client

	go client.writePump()
	go client.readPump()
}
