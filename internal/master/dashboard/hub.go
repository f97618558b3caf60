// Package dashboard implements an optional, observation-only websocket
// broadcast of job/task/connection lifecycle events to any number of
// connected viewers. Closing every websocket connection never changes task
// dispatch behavior.
package dashboard

import (
	"context"
	"sync"

	"github.com/projectpolygon/hypercube-go/internal/logger"
	"github.com/projectpolygon/hypercube-go/internal/master/events"
	"github.com/projectpolygon/hypercube-go/internal/metrics"
)

// Hub manages connected dashboard clients and broadcasts events to them.
type Hub struct {
	publisher *events.MemoryPublisher

	mu         sync.RWMutex
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// NewHub builds a Hub that broadcasts whatever the given publisher emits.
func NewHub(publisher *events.MemoryPublisher) *Hub {
	return &Hub{
		publisher:  publisher,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopCh:     make(chan struct{}),
	}
}

// Run subscribes to the publisher and services register/unregister/event
// traffic until ctx is canceled or Stop is called.
func (h *Hub) Run(ctx context.Context) {
	eventCh := h.publisher.Subscribe()
	defer h.publisher.Unsubscribe(eventCh)

	h.wg.Add(1)
	defer h.wg.Done()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-h.stopCh:
			h.closeAll()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			metrics.DashboardConnections.Set(float64(h.ClientCount()))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			metrics.DashboardConnections.Set(float64(h.ClientCount()))

		case e, ok := <-eventCh:
			if !ok {
				return
			}
			h.broadcast(e)
		}
	}
}

// Stop tears the hub down, closing every connected client.
func (h *Hub) Stop() {
	close(h.stopCh)
	h.wg.Wait()
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) { h.register <- c }

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c *Client) { h.unregister <- c }

// ClientCount returns the number of connected viewers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(e events.Event) {
	data, err := e.ToJSON()
	if err != nil {
		logger.Error().Err(err).Msg("dashboard: failed to serialize event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			go func(c *Client) { h.unregister <- c }(c)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}
