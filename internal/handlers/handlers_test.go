package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"teamchat-backend/internal/hub"
	"teamchat-backend/internal/identity"
	"teamchat-backend/internal/keyValue"
	"teamchat-backend/internal/models"
	"teamchat-backend/internal/presence"
	"teamchat-backend/internal/store"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) *httptest.Server {
	nop := zap.NewNop().Sugar()

	identity.Setup("handler-test-secret", false)
	keyValue.Setup(nop, nil, true)

	cfg := &models.ConfigFile{
		SelfContained: true,
		DbFile:        ":memory:",
	}

	testStore, err := store.Setup(cfg, nop)
	require.NoError(t, err)

	tracker := presence.New(0, nop)
	hub.Setup(nop, nil, true, tracker)

	server := httptest.NewServer(Setup(cfg, nop, testStore, tracker))
	t.Cleanup(server.Close)
	return server
}

func authCookie(t *testing.T, id int64, name string) *http.Cookie {
	cookie, err := identity.CreateToken(models.Identity{
		ID:          id,
		DisplayName: name,
		AvatarUrl:   fmt.Sprintf("/avatars/%d.png", id),
	}, time.Hour)
	require.NoError(t, err)
	return &cookie
}

func doJSON(t *testing.T, server *httptest.Server, method, path string, cookie *http.Cookie, payload any) *http.Response {
	var body io.Reader
	if payload != nil {
		jsonBytes, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(jsonBytes)
	}

	req, err := http.NewRequest(method, server.URL+path, body)
	require.NoError(t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestChannelsRequireAuthentication(t *testing.T) {
	server := newTestServer(t)

	resp := doJSON(t, server, http.MethodGet, "/api/channels", nil, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, server, http.MethodPost, "/api/channels", nil, map[string]string{"name": "general"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateAndListChannels(t *testing.T) {
	server := newTestServer(t)
	cookie := authCookie(t, 11, "Ada")

	resp := doJSON(t, server, http.MethodPost, "/api/channels", cookie, map[string]string{
		"name":        "general",
		"description": "everything else",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[models.Channel](t, resp)
	require.Equal(t, "general", created.Name)
	require.Equal(t, int64(11), created.CreatedBy)
	require.NotZero(t, created.ID)

	resp = doJSON(t, server, http.MethodGet, "/api/channels", cookie, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	channels := decode[[]models.Channel](t, resp)
	require.Len(t, channels, 1)
	require.Equal(t, created.ID, channels[0].ID)
}

func TestCreateChannelRejectsBadNames(t *testing.T) {
	server := newTestServer(t)
	cookie := authCookie(t, 12, "Grace")

	for _, name := range []string{"", "has spaces", "wei&rd"} {
		resp := doJSON(t, server, http.MethodPost, "/api/channels", cookie, map[string]string{"name": name})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, "name %q", name)
	}

	resp := doJSON(t, server, http.MethodGet, "/api/channels", cookie, nil)
	require.Empty(t, decode[[]models.Channel](t, resp))
}

func TestChannelMessageRoundTrip(t *testing.T) {
	server := newTestServer(t)
	cookie := authCookie(t, 21, "Ada")

	resp := doJSON(t, server, http.MethodPost, "/api/channels", cookie, map[string]string{"name": "deploys"})
	channel := decode[models.Channel](t, resp)
	target := fmt.Sprintf("channel:%d", channel.ID)

	resp = doJSON(t, server, http.MethodPost, "/api/messages", cookie, map[string]string{
		"target": target,
		"body":   "rolling out now",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sent := decode[models.Message](t, resp)
	require.Equal(t, "Ada", sent.Author.DisplayName)

	resp = doJSON(t, server, http.MethodGet, "/api/messages?target="+target, cookie, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	messages := decode[[]models.Message](t, resp)
	require.Len(t, messages, 1)
	require.Equal(t, sent.ID, messages[0].ID)
	require.Equal(t, "rolling out now", messages[0].Body)
	require.Equal(t, "Ada", messages[0].Author.DisplayName)

	// incremental fetch past the last seen ID returns nothing new
	resp = doJSON(t, server, http.MethodGet,
		fmt.Sprintf("/api/messages?target=%s&sinceId=%d", target, sent.ID), cookie, nil)
	require.Empty(t, decode[[]models.Message](t, resp))
}

func TestCreateMessageRejectsBlankBodyAndBadTarget(t *testing.T) {
	server := newTestServer(t)
	cookie := authCookie(t, 31, "Ada")

	resp := doJSON(t, server, http.MethodPost, "/api/channels", cookie, map[string]string{"name": "general"})
	channel := decode[models.Channel](t, resp)

	resp = doJSON(t, server, http.MethodPost, "/api/messages", cookie, map[string]string{
		"target": fmt.Sprintf("channel:%d", channel.ID),
		"body":   "   \n\t ",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, server, http.MethodPost, "/api/messages", cookie, map[string]string{
		"target": "blackboard:7",
		"body":   "hello",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// a direct target naming yourself is rejected as well
	resp = doJSON(t, server, http.MethodPost, "/api/messages", cookie, map[string]string{
		"target": "dm:31",
		"body":   "hello me",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDirectMessagesReadTheSameEitherWay(t *testing.T) {
	server := newTestServer(t)
	ada := authCookie(t, 41, "Ada")
	grace := authCookie(t, 42, "Grace")

	resp := doJSON(t, server, http.MethodPost, "/api/messages", ada, map[string]string{
		"target": "dm:42",
		"body":   "lunch?",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, server, http.MethodPost, "/api/messages", grace, map[string]string{
		"target": "dm:41",
		"body":   "sure",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// both participants read the same ordered conversation
	resp = doJSON(t, server, http.MethodGet, "/api/messages?target=dm:42", ada, nil)
	fromAda := decode[[]models.Message](t, resp)
	resp = doJSON(t, server, http.MethodGet, "/api/messages?target=dm:41", grace, nil)
	fromGrace := decode[[]models.Message](t, resp)

	require.Len(t, fromAda, 2)
	require.Equal(t, fromAda, fromGrace)
	require.Equal(t, "lunch?", fromAda[0].Body)
	require.Equal(t, "sure", fromAda[1].Body)
}

func TestPresenceSnapshotIsPublic(t *testing.T) {
	server := newTestServer(t)

	resp := doJSON(t, server, http.MethodGet, "/api/presence", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, decode[[]models.PresenceEntry](t, resp))
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t)

	resp := doJSON(t, server, http.MethodGet, "/api/healthz", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
