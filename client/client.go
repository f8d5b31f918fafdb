package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"teamchat-backend/internal/apperr"
	"teamchat-backend/internal/models"
	"teamchat-backend/internal/validator"

	"github.com/pkg/errors"
)

// Client talks to the messaging core's HTTP API. It satisfies the
// session loop's fetch/append interface, so a session can be pointed
// straight at a running backend.
type Client struct {
	baseURL string
	token   string
	selfID  int64
	http    *http.Client

	mu     sync.Mutex
	connID string
}

func New(baseURL, token string, selfID int64) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		selfID:  selfID,
		http:    &http.Client{},
	}
}

// SetConnID attaches a websocket connection to subsequent message
// fetches, so the backend points that socket's push subscription at
// whatever conversation this client reads. The ID arrives in the
// Hello frame.
func (c *Client) SetConnID(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connID = connID
}

func (c *Client) ListMessages(ctx context.Context, target models.Target, sinceID int64, limit int) ([]models.Message, error) {
	query := url.Values{}
	query.Set("target", c.targetParam(target))
	if sinceID > 0 {
		query.Set("sinceId", strconv.FormatInt(sinceID, 10))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	c.mu.Lock()
	if c.connID != "" {
		query.Set("connID", c.connID)
	}
	c.mu.Unlock()

	var messages []models.Message
	err := c.do(ctx, http.MethodGet, "/api/messages?"+query.Encode(), nil, &messages)
	return messages, err
}

func (c *Client) AppendMessage(ctx context.Context, target models.Target, body string) (models.Message, error) {
	req := validator.SendMessageRequest{
		Target: c.targetParam(target),
		Body:   body,
	}

	var msg models.Message
	err := c.do(ctx, http.MethodPost, "/api/messages", req, &msg)
	return msg, err
}

func (c *Client) Presence(ctx context.Context) ([]models.PresenceEntry, error) {
	var entries []models.PresenceEntry
	err := c.do(ctx, http.MethodGet, "/api/presence", nil, &entries)
	return entries, err
}

func (c *Client) ListChannels(ctx context.Context) ([]models.Channel, error) {
	var channels []models.Channel
	err := c.do(ctx, http.MethodGet, "/api/channels", nil, &channels)
	return channels, err
}

func (c *Client) CreateChannel(ctx context.Context, name, description string) (models.Channel, error) {
	req := validator.CreateChannelRequest{Name: name, Description: description}

	var channel models.Channel
	err := c.do(ctx, http.MethodPost, "/api/channels", req, &channel)
	return channel, err
}

// targetParam renders the wire form: direct conversations name only
// the peer, the backend resolves the pair against the caller.
func (c *Client) targetParam(target models.Target) string {
	if target.Kind == models.TargetDirect {
		peer := target.PairLo
		if peer == c.selfID {
			peer = target.PairHi
		}
		return fmt.Sprintf("dm:%d", peer)
	}
	return target.Key()
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		jsonBytes, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(jsonBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.TransientStore(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// statusError maps response codes back onto the error taxonomy the
// backend mapped them from.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	message := strings.TrimSpace(string(raw))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return apperr.Authorization(message)
	case resp.StatusCode >= 500:
		return apperr.TransientStore(errors.New(message), fmt.Sprintf("server returned %d", resp.StatusCode))
	case resp.StatusCode == http.StatusBadRequest:
		if field, reason, found := strings.Cut(message, ": "); found {
			return apperr.Validation(field, reason)
		}
		return apperr.Validation("request", message)
	}
	return errors.Errorf("unexpected status %d: %s", resp.StatusCode, message)
}
