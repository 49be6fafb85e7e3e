package feed

import (
	"log"
	"net/http"
	"sync"
	"time"

	"ems-dispatch-api/internal/model"

	"github.com/gorilla/websocket"
)

// Hub fans dispatch events out to connected MDT clients. Slow clients
// whose send buffers fill up are evicted rather than blocking dispatch.
type Hub struct {
	mu       sync.Mutex
	clients  map[*Client]struct{}
	upgrader websocket.Upgrader

	closed bool
}

// NewHub creates a dispatch feed hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Publish broadcasts an event to every connected client.
func (h *Hub) Publish(event model.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- event:
		default:
			// Client not keeping up, drop it
			delete(h.clients, client)
			client.close()
			log.Printf("[Feed] Evicted slow client %s", client.remote)
		}
	}
}

// ServeWS handles GET /ws and upgrades the connection to the feed.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "feed shutting down", http.StatusServiceUnavailable)
		return
	}
	h.mu.Unlock()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Feed] Upgrade failed: %v", err)
		return
	}

	client := newClient(conn, r.RemoteAddr)

	h.mu.Lock()
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[Feed] Client %s connected (%d total)", client.remote, count)

	go client.writeLoop()
	client.readLoop(func() { h.detach(client) })
}

// ClientCount returns the number of connected feed clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all clients and rejects new connections.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for client := range h.clients {
		client.close()
		delete(h.clients, client)
	}
}

func (h *Hub) detach(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.close()
	}
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[Feed] Client %s disconnected (%d total)", client.remote, count)
}
