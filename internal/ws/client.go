package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/AIONPAY/AION-MVP/internal/config"
	"github.com/AIONPAY/AION-MVP/internal/eventbus"
	"github.com/AIONPAY/AION-MVP/internal/metrics"
)

// Client is one live subscription connection. Its topic membership is
// delegated entirely to the event bus; the client only owns the
// websocket transport and the direct-reply channel for acks/errors/pongs.
type Client struct {
	id     string
	hub    *Hub
	bus    *eventbus.Bus
	sub    *eventbus.Subscriber
	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger
	cfg    config.WebSocketConfig

	closeOnce sync.Once
}

// NewClient builds a Client with a fresh, topic-less bus subscription.
func NewClient(hub *Hub, bus *eventbus.Bus, conn *websocket.Conn, logger *zap.Logger, cfg config.WebSocketConfig) *Client {
	return &Client{
		id:     uuid.NewString(),
		hub:    hub,
		bus:    bus,
		sub:    bus.Subscribe(),
		conn:   conn,
		send:   make(chan []byte, 64),
		logger: logger,
		cfg:    cfg,
	}
}

// ID returns the client's connection id.
func (c *Client) ID() string {
	return c.id
}

// ReadPump reads inbound frames until the connection closes.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait()))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait()))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error", zap.String("client", c.id), zap.Error(err))
			}
			return
		}
		metrics.RecordWSMessage("in", "frame")
		c.handleMessage(data)
	}
}

// WritePump drains both the direct-reply channel and the bus
// subscription, and sends transport-level pings on cfg.PingInterval.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait()))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			metrics.RecordWSMessage("out", "frame")

		case event, ok := <-c.sub.Ch:
			if !ok {
				return
			}
			if event.Type == "heartbeat" {
				continue
			}
			msg := &ServerMessage{Type: MessageType(event.Type), Data: event.Data, Timestamp: event.Timestamp}
			data, err := msg.toJSON()
			if err != nil {
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait()))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			metrics.RecordWSMessage("out", event.Type)

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait()))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	msg, err := ParseClientMessage(data)
	if err != nil {
		c.reply(newErrorMessage("invalid message format"))
		return
	}

	switch msg.Type {
	case MsgTypePing:
		c.reply(newPongMessage())
	case MsgTypeSubscribe:
		c.handleSubscribe(msg.Topic)
	case MsgTypeUnsubscribe:
		c.handleUnsubscribe(msg.Topic)
	default:
		c.reply(newErrorMessage("unknown message type"))
	}
}

func (c *Client) handleSubscribe(topic string) {
	if topic == "" {
		c.reply(newErrorMessage("topic is required"))
		return
	}
	c.bus.SubscribeTopic(c.sub, topic)
	metrics.RecordWSSubscription(topic, 1)
	c.reply(newSubscribedMessage(topic))
}

func (c *Client) handleUnsubscribe(topic string) {
	if topic == "" {
		c.reply(newErrorMessage("topic is required"))
		return
	}
	c.bus.UnsubscribeTopic(c.sub, topic)
	metrics.RecordWSSubscription(topic, -1)
	c.reply(newUnsubscribedMessage(topic))
}

func (c *Client) reply(msg *ServerMessage) {
	data, err := msg.toJSON()
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
		metrics.WSMessagesDropped()
		c.logger.Warn("client send buffer full, dropping reply", zap.String("client", c.id))
	}
}

// Close releases the bus subscription and closes the send channel. Safe
// to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.bus.Unsubscribe(c.sub)
		close(c.send)
	})
}
