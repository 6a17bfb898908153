// Package ws implements the relayer's subscription endpoint: a
// websocket connection that lets a caller watch transfer lifecycle
// events as they happen, backed by the process-local event bus.
package ws

import (
	"encoding/json"
	"time"
)

// MessageType identifies the shape of a websocket frame.
type MessageType string

const (
	// Inbound, from the client.
	MsgTypeSubscribe   MessageType = "subscribe"
	MsgTypeUnsubscribe MessageType = "unsubscribe"
	MsgTypePing        MessageType = "ping"

	// Outbound, from the server.
	MsgTypeConnected   MessageType = "connected"
	MsgTypeSubscribed  MessageType = "subscribed"
	MsgTypeUnsubscribed MessageType = "unsubscribed"
	MsgTypePong        MessageType = "pong"
	MsgTypeError       MessageType = "error"
)

// ClientMessage is an inbound frame. Topic is free-form: global stage
// topics (e.g. "payment_confirmed") and the "transfer:<id>" convention
// are both accepted without validation beyond non-empty.
type ClientMessage struct {
	Type  MessageType `json:"type"`
	Topic string      `json:"topic,omitempty"`
}

// ServerMessage is an outbound frame.
type ServerMessage struct {
	Type      MessageType `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ParseClientMessage decodes an inbound frame.
func ParseClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func newConnectedMessage(clientID string) *ServerMessage {
	return &ServerMessage{
		Type:      MsgTypeConnected,
		Data:      map[string]interface{}{"clientId": clientID},
		Timestamp: time.Now(),
	}
}

func newSubscribedMessage(topic string) *ServerMessage {
	return &ServerMessage{
		Type:      MsgTypeSubscribed,
		Data:      map[string]interface{}{"topic": topic},
		Timestamp: time.Now(),
	}
}

func newUnsubscribedMessage(topic string) *ServerMessage {
	return &ServerMessage{
		Type:      MsgTypeUnsubscribed,
		Data:      map[string]interface{}{"topic": topic},
		Timestamp: time.Now(),
	}
}

func newPongMessage() *ServerMessage {
	return &ServerMessage{Type: MsgTypePong, Timestamp: time.Now()}
}

func newErrorMessage(errMsg string) *ServerMessage {
	return &ServerMessage{
		Type:      MsgTypeError,
		Data:      map[string]interface{}{"error": errMsg},
		Timestamp: time.Now(),
	}
}

func (m *ServerMessage) toJSON() ([]byte, error) {
	return json.Marshal(m)
}
