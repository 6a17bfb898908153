package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/AIONPAY/AION-MVP/internal/config"
	"github.com/AIONPAY/AION-MVP/internal/eventbus"
)

// Handler upgrades HTTP connections to the subscription endpoint.
type Handler struct {
	hub      *Hub
	bus      *eventbus.Bus
	logger   *zap.Logger
	cfg      config.WebSocketConfig
	upgrader websocket.Upgrader
}

// NewHandler builds a Handler.
func NewHandler(hub *Hub, bus *eventbus.Bus, logger *zap.Logger, cfg config.WebSocketConfig) *Handler {
	return &Handler{
		hub:    hub,
		bus:    bus,
		logger: logger,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleConnection upgrades GET /ws and starts the client's pumps.
func (h *Handler) HandleConnection(c *gin.Context) {
	if h.hub.ClientCount() >= h.cfg.MaxConnections {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "too many connections"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(h.hub, h.bus, conn, h.logger, h.cfg)
	h.hub.Register(client)
	client.reply(newConnectedMessage(client.id))

	h.logger.Info("websocket client connected", zap.String("client", client.ID()), zap.String("remote", c.Request.RemoteAddr))

	go client.WritePump()
	go client.ReadPump()
}
