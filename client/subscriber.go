package client

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"teamchat-backend/internal/hub"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	readWait  = 60 * time.Second
	writeWait = 10 * time.Second
)

// Event is one pushed frame: the type line and the raw JSON payload.
type Event struct {
	Type    string
	Payload json.RawMessage
}

// Subscriber holds the push side of a client: a websocket connection
// receiving presence deltas, directory updates and messages for the
// conversation the HTTP client last fetched.
type Subscriber struct {
	conn   *websocket.Conn
	events chan Event
	connID string
	sugar  *zap.SugaredLogger
}

// Dial connects the websocket and waits for the Hello frame carrying
// the connection ID. Passing the api client wires that ID into its
// fetches so pushes follow the fetched conversation.
func Dial(ctx context.Context, wsURL, token string, api *Client, sugar *zap.SugaredLogger) (*Subscriber, error) {
	if sugar == nil {
		sugar = zap.NewNop().Sugar()
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, errors.Wrap(err, "websocket handshake rejected")
		}
		return nil, err
	}

	sub := &Subscriber{
		conn:   conn,
		events: make(chan Event, 32),
		sugar:  sugar,
	}

	hello, err := sub.readFrame()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "no hello frame")
	}
	if hello.Type != hub.Hello {
		conn.Close()
		return nil, errors.Errorf("expected %s, got %s", hub.Hello, hello.Type)
	}

	var payload struct {
		ConnID string `json:"connID"`
	}
	if err := json.Unmarshal(hello.Payload, &payload); err != nil {
		conn.Close()
		return nil, err
	}
	sub.connID = payload.ConnID

	if api != nil {
		api.SetConnID(sub.connID)
	}

	go sub.readPump()
	return sub, nil
}

func (s *Subscriber) ConnID() string {
	return s.connID
}

// Events delivers pushed frames until the connection drops, then the
// channel closes.
func (s *Subscriber) Events() <-chan Event {
	return s.events
}

func (s *Subscriber) Close() error {
	return s.conn.Close()
}

func (s *Subscriber) readFrame() (Event, error) {
	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		return Event{}, err
	}

	eventType, payload, found := strings.Cut(string(raw), "\n")
	if !found {
		return Event{}, errors.Errorf("malformed frame %q", raw)
	}
	return Event{Type: eventType, Payload: json.RawMessage(payload)}, nil
}

func (s *Subscriber) readPump() {
	defer close(s.events)
	defer s.conn.Close()

	// the server keeps the connection alive with pings; every ping
	// refreshes the read deadline and gets the pong the server's own
	// deadline is waiting for
	s.conn.SetReadDeadline(time.Now().Add(readWait))
	s.conn.SetPingHandler(func(appData string) error {
		s.conn.SetReadDeadline(time.Now().Add(readWait))
		return s.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	for {
		event, err := s.readFrame()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.sugar.Debugf("Push connection dropped: %v", err)
			}
			return
		}

		select {
		case s.events <- event:
		default:
			s.sugar.Warnf("Dropping %s push, receiver too slow", event.Type)
		}
	}
}
