package dashboard

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/projectpolygon/hypercube-go/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades HTTP requests to dashboard websocket connections.
type Handler struct {
	hub *Hub
}

// NewHandler builds a Handler bound to hub.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// ServeWS upgrades the request and registers the resulting client.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("dashboard: failed to upgrade websocket")
		return
	}

	client := NewClient(h.hub, conn)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
