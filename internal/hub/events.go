package hub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"teamchat-backend/internal/models"

	"github.com/gorilla/websocket"
)

// Event frames are the event type, a newline, then the JSON payload.
// The receiver splits on the first newline to decide how to decode.
const (
	Hello = "Hello"

	PresenceJoined = "PresenceJoined"
	PresenceLeft   = "PresenceLeft"

	ChannelCreated = "ChannelCreated"
	MessageCreated = "MessageCreated"
)

// Well-known pub/sub keys. Conversation keys come from Target.Key().
const (
	KeyPresence  = "presence"
	KeyDirectory = "directory"
)

func buildFrame(eventType string, payload any) (string, error) {
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	buf.Grow(len(eventType) + 1 + len(jsonBytes))
	buf.WriteString(eventType)
	buf.WriteByte('\n')
	buf.Write(jsonBytes)

	return buf.String(), nil
}

// Emit publishes an event frame to everyone subscribed to key, across
// all instances when redis backs the pub/sub.
func Emit(eventType string, key string, payload any) error {
	frame, err := buildFrame(eventType, payload)
	if err != nil {
		return err
	}

	if selfContained {
		localPubSub.Publish(key, frame)
		return nil
	}

	return redisClient.Publish(redisCtx, key, frame).Err()
}

// PublishMessage pushes a freshly appended message to every client
// subscribed to its conversation.
func PublishMessage(msg models.Message, target models.Target) error {
	return Emit(MessageCreated, target.Key(), msg)
}

// PublishChannel announces a new channel on the directory key every
// client observes.
func PublishChannel(channel models.Channel) error {
	return Emit(ChannelCreated, KeyDirectory, channel)
}

// SubscribeConversation points the connection's single conversation
// subscription at the given target, dropping the previous one so a
// stale subscription never pushes messages into the wrong window.
func SubscribeConversation(connID string, target models.Target) error {
	client, exists := GetClient(connID)
	if !exists {
		return fmt.Errorf("connection %s tried to subscribe to %s but isn't connected to the hub", connID, target.Key())
	}

	client.mutex.Lock()
	defer client.mutex.Unlock()

	newKey := target.Key()
	if client.currentConversation == newKey {
		return nil
	}

	if client.currentConversation != "" {
		if err := unsubscribeKey(client, client.currentConversation); err != nil {
			return err
		}
	}

	if err := subscribeKey(client, newKey); err != nil {
		return err
	}
	client.currentConversation = newKey

	sugar.Debugf("Connection %s now receives pushes for %s", connID, newKey)
	return nil
}

func subscribeKey(client *Client, key string) error {
	if selfContained {
		localPubSub.Subscribe(key, client.ConnID)
		return nil
	}
	return client.PubSub.Subscribe(client.Ctx, key)
}

func unsubscribeKey(client *Client, key string) error {
	if selfContained {
		localPubSub.Unsubscribe(key, client.ConnID)
		return nil
	}
	return client.PubSub.Unsubscribe(client.Ctx, key)
}

// writeEvent writes a frame straight to the socket. Only used before
// the write pump starts.
func writeEvent(client *Client, eventType string, payload any) error {
	frame, err := buildFrame(eventType, payload)
	if err != nil {
		return err
	}

	client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return client.Conn.WriteMessage(websocket.TextMessage, []byte(frame))
}
