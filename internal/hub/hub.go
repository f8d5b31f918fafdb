package hub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"teamchat-backend/internal/metrics"
	"teamchat-backend/internal/models"
	"teamchat-backend/internal/presence"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one websocket connection of one authenticated identity.
// The same identity may hold several clients (browser tabs); presence
// refcounts them by connection ID.
type Client struct {
	Principal    models.Identity
	ConnID       string
	Conn         *websocket.Conn
	PubSub       *redis.PubSub
	MsgCh        <-chan *redis.Message
	LocalChannel chan string
	Ctx          context.Context

	// key of the conversation this client currently receives pushes
	// for; swapped on every conversation subscribe
	currentConversation string
	mutex               sync.Mutex
}

var clients = make(map[string]*Client)
var clientsMutex sync.Mutex

var sugar *zap.SugaredLogger
var redisClient *redis.Client
var tracker *presence.Tracker
var selfContained = true
var localPubSub LocalPubSub

var redisCtx = context.Background()

func Setup(_sugar *zap.SugaredLogger, _redisClient *redis.Client, _selfContained bool, _tracker *presence.Tracker) {
	sugar = _sugar
	redisClient = _redisClient
	selfContained = _selfContained
	tracker = _tracker
	localPubSub.Setup()

	go forwardPresenceDeltas()
}

// forwardPresenceDeltas turns tracker deltas into pushed events for
// every connected observer. Presence is push-based: a disconnect can
// happen at any moment, not on a poll schedule.
func forwardPresenceDeltas() {
	deltas := tracker.Subscribe()
	for delta := range deltas {
		switch {
		case delta.Joined != nil:
			metrics.PresenceJoins.Inc()
			metrics.OnlineIdentities.Inc()
			if err := Emit(PresenceJoined, KeyPresence, delta); err != nil {
				sugar.Error(err)
			}
		case delta.Left != nil:
			metrics.PresenceLeaves.Inc()
			metrics.OnlineIdentities.Dec()
			if err := Emit(PresenceLeft, KeyPresence, delta); err != nil {
				sugar.Error(err)
			}
		}
	}
}

// HandleClient upgrades the connection, joins the presence scope and
// pumps events until the peer goes away. Leave fires deterministically
// when the read loop errors out, including on abrupt network loss once
// the ping/pong deadline expires.
func HandleClient(w http.ResponseWriter, r *http.Request, principal models.Identity) {
	sugar.Debugf("Connecting identity %d to WebSocket", principal.ID)

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sugar.Error(err)
		return
	}
	defer conn.Close()

	clientCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &Client{
		Principal: principal,
		ConnID:    uuid.NewString(),
		Conn:      conn,
		Ctx:       clientCtx,
	}

	if selfContained {
		client.LocalChannel = make(chan string, 16)
	} else {
		pubsub := redisClient.Subscribe(clientCtx)
		defer pubsub.Close()
		client.PubSub = pubsub
		client.MsgCh = pubsub.Channel()
	}

	setClient(client)
	defer deleteClient(client)

	// every client observes presence and the channel directory
	if err := subscribeKey(client, KeyPresence); err != nil {
		sugar.Error(err)
		return
	}
	if err := subscribeKey(client, KeyDirectory); err != nil {
		sugar.Error(err)
		return
	}

	tracker.Join(principal, client.ConnID)
	defer tracker.Leave(principal.ID, client.ConnID)

	// the client learns its connection ID so fetches can attach push
	// subscriptions to this socket
	if err := writeEvent(client, Hello, map[string]string{"connID": client.ConnID}); err != nil {
		sugar.Error(err)
		return
	}

	go writePump(client)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// the read loop only consumes control frames; all state changes
	// arrive over the HTTP API
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived, websocket.CloseGoingAway) {
				sugar.Debugf("Identity %d closed its websocket", principal.ID)
			} else {
				sugar.Debugf("Websocket read error for identity %d: %v", principal.ID, err)
			}
			return
		}
	}
}

func writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case <-client.Ctx.Done():
			return
		case frame, ok := <-client.LocalChannel:
			if !ok {
				return
			}
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				sugar.Debugf("Error writing to websocket: %v", err)
				return
			}
		case msg, ok := <-client.MsgCh:
			if !ok {
				return
			}
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				sugar.Debugf("Error writing to websocket: %v", err)
				return
			}
		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func setClient(client *Client) {
	sugar.Debugf("Adding identity %d to clients as connection %s", client.Principal.ID, client.ConnID)
	clientsMutex.Lock()
	defer clientsMutex.Unlock()

	clients[client.ConnID] = client
}

func deleteClient(client *Client) {
	sugar.Debugf("Removing connection %s from clients", client.ConnID)
	clientsMutex.Lock()
	delete(clients, client.ConnID)
	clientsMutex.Unlock()

	if selfContained {
		localPubSub.UnsubscribeFromAll(client.ConnID)
	}
}

func GetClient(connID string) (*Client, bool) {
	clientsMutex.Lock()
	defer clientsMutex.Unlock()

	client, exists := clients[connID]
	return client, exists
}
