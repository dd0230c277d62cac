package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"bettabuckz/internal/logging"

	"github.com/gorilla/websocket"
)

// BalanceUpdate is pushed to every open socket of a user after a committed
// ledger mutation.
type BalanceUpdate struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
	Display string `json:"display"`
	EntryID string `json:"entry_id,omitempty"`
}

type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*Client]struct{}
	upgrader websocket.Upgrader
	logger   logging.Logger
}

// NewHub accepts upgrades from the comma separated allowedOrigins; "*" or an
// empty list allows any origin.
func NewHub(allowedOrigins string, logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func originChecker(allowed string) func(*http.Request) bool {
	origins := map[string]struct{}{}
	for _, origin := range strings.Split(allowed, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins[origin] = struct{}{}
		}
	}
	_, wildcard := origins["*"]
	return func(r *http.Request) bool {
		if wildcard || len(origins) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := origins[origin]
		return ok
	}
}

func (h *Hub) Register(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][client] = struct{}{}
}

func (h *Hub) Unregister(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		return
	}
	delete(h.clients[userID], client)
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
}

// Connections reports how many sockets userID has open.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// BroadcastBalance never blocks: a client whose buffer is full misses the
// update and catches up on its next balance read.
func (h *Hub) BroadcastBalance(userID string, update BalanceUpdate) {
	payload, _ := json.Marshal(update)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[userID] {
		select {
		case client.send <- payload:
		default:
		}
	}
}
