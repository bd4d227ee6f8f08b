package realtime

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Handler serves the live-update websocket endpoint
type Handler struct {
	manager *Manager
}

// NewHandler creates a handler registering clients with manager
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// HandleWebSocket upgrades the request; plain HTTP requests get 426
func (h *Handler) HandleWebSocket(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return websocket.New(h.handleConnection)(c)
}

// handleConnection keeps the connection registered until the client leaves.
// Client messages carry no meaning and are discarded.
func (h *Handler) handleConnection(c *websocket.Conn) {
	connection := h.manager.AddConnection(c, c.RemoteAddr().String())
	defer h.manager.RemoveConnection(connection.ID)

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("connection_id", connection.ID).Msg("Live-update connection error")
			}
			return
		}
	}
}
