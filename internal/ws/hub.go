package ws

import (
	"sync"

	"go.uber.org/zap"

	"github.com/AIONPAY/AION-MVP/internal/metrics"
)

// Hub tracks live connections. Topic fan-out itself is delegated to the
// event bus each Client subscribes to directly; the Hub's job is
// connection accounting and coordinated shutdown.
type Hub struct {
	logger *zap.Logger

	clients   map[*Client]struct{}
	clientsMu sync.Mutex
}

// NewHub builds a Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{logger: logger, clients: make(map[*Client]struct{})}
}

// Register adds client to the live set.
func (h *Hub) Register(client *Client) {
	h.clientsMu.Lock()
	h.clients[client] = struct{}{}
	h.clientsMu.Unlock()
	metrics.RecordWSConnection(1)
	h.logger.Debug("client registered", zap.String("id", client.id))
}

// Unregister removes client from the live set and closes it.
func (h *Hub) Unregister(client *Client) {
	h.clientsMu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	h.clientsMu.Unlock()
	if !ok {
		return
	}
	client.Close()
	metrics.RecordWSConnection(-1)
	h.logger.Debug("client unregistered", zap.String("id", client.id))
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	return len(h.clients)
}

// Shutdown closes every live connection, used during graceful shutdown
// after the executor's scheduler tick has been stopped. It does not wait
// for in-flight executor slots to finish.
func (h *Hub) Shutdown() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
}
