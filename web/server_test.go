package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/odvcencio/visualdocs-collab/realtime"
)

const testSecret = "s3cret"

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestServer(t *testing.T, secret string) *httptest.Server {
	t.Helper()
	s := NewServer(Options{
		JWTSecret: secret,
		Logger:    zaptest.NewLogger(t),
		Clock:     func() time.Time { return fixedNow },
	})
	srv := httptest.NewServer(s)
	t.Cleanup(func() {
		s.closeAll()
		srv.Close()
	})
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func signToken(t *testing.T, secret, userID, name string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": userID,
		"name":   name,
		"exp":    time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

// peer is a raw websocket connection speaking the room protocol.
type peer struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, srv *httptest.Server, token string) (*peer, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	if err != nil {
		return nil, resp, err
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &peer{t: t, conn: conn}, resp, nil
}

func join(t *testing.T, srv *httptest.Server, userID, projectID string) *peer {
	t.Helper()
	p, _, err := dial(t, srv, signToken(t, testSecret, userID, strings.ToUpper(userID)))
	require.NoError(t, err)
	p.send(realtime.EventJoinProject, realtime.JoinProject{ProjectID: projectID})
	return p
}

func (p *peer) send(event string, data any) {
	p.t.Helper()
	env, err := realtime.NewEnvelope(event, data)
	require.NoError(p.t, err)
	require.NoError(p.t, p.conn.WriteJSON(env))
}

// until reads events until one named event arrives and returns it along
// with the names of the events skipped on the way.
func (p *peer) until(event string) (realtime.Envelope, []string) {
	p.t.Helper()
	var skipped []string
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var env realtime.Envelope
		require.NoError(p.t, p.conn.ReadJSON(&env), "waiting for %s", event)
		if env.Event == event {
			return env, skipped
		}
		skipped = append(skipped, env.Event)
	}
}

func (p *peer) expect(event string, v any) {
	p.t.Helper()
	env, _ := p.until(event)
	require.NoError(p.t, json.Unmarshal(env.Data, v))
}

// collaborators waits for a member list of the given size.
func (p *peer) collaborators(n int) []realtime.Collaborator {
	p.t.Helper()
	for {
		var users []realtime.Collaborator
		p.expect(realtime.EventCollaborators, &users)
		if len(users) == n {
			return users
		}
	}
}

func TestRelayRequiresValidToken(t *testing.T) {
	srv := newTestServer(t, testSecret)

	_, resp, err := dial(t, srv, "")
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = dial(t, srv, signToken(t, "not-the-secret", "u1", "Ana"))
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, _, err = dial(t, srv, signToken(t, testSecret, "u1", "Ana"))
	require.NoError(t, err)
}

func TestRelayGuestsWithoutSecret(t *testing.T) {
	srv := newTestServer(t, "")
	p, _, err := dial(t, srv, "")
	require.NoError(t, err)
	p.send(realtime.EventJoinProject, realtime.JoinProject{ProjectID: "p1"})

	users := p.collaborators(1)
	require.True(t, strings.HasPrefix(users[0].ID, "guest-"))
}

func TestRelayFanOut(t *testing.T) {
	srv := newTestServer(t, testSecret)
	a := join(t, srv, "u1", "p1")
	a.collaborators(1)
	b := join(t, srv, "u2", "p1")

	users := a.collaborators(2)
	require.Equal(t, "u1", users[0].ID)
	require.Equal(t, "U1", users[0].Name)
	require.Equal(t, realtime.ColorFor("u1"), users[0].Color)
	require.Equal(t, "u2", users[1].ID)
	b.collaborators(2)

	a.send(realtime.EventCodeChange, realtime.CodeChange{FileID: "f1", Changes: "package main\n", UserID: "spoofed"})
	var cc realtime.CodeChange
	b.expect(realtime.EventCodeChange, &cc)
	require.Equal(t, "f1", cc.FileID)
	require.Equal(t, "package main\n", cc.Changes)
	require.Equal(t, "u1", cc.UserID, "the relay stamps the sender")
	require.Equal(t, fixedNow.UnixMilli(), cc.Timestamp)

	a.send(realtime.EventCursorUpdate, realtime.CursorMove{Line: 3, Column: 7, FileID: "f1"})
	var cu realtime.CursorUpdate
	b.expect(realtime.EventCursorUpdate, &cu)
	require.Equal(t, realtime.CursorUpdate{UserID: "u1", Position: realtime.Position{Line: 3, Column: 7}}, cu)

	a.send(realtime.EventFileSaved, realtime.FileNotice{FileID: "f1", FileName: "main.go"})
	var fn realtime.FileNotice
	b.expect(realtime.EventFileSaved, &fn)
	require.Equal(t, realtime.FileNotice{FileID: "f1", FileName: "main.go", UserID: "u1"}, fn)

	a.send(realtime.EventProjectComment, realtime.ProjectComment{ProjectID: "p1", Content: " ship it "})
	want := realtime.Comment{
		ID:         "u1:2026-01-02T03:04:05Z",
		AuthorID:   "u1",
		AuthorName: "U1",
		Content:    "ship it",
		Timestamp:  "2026-01-02T03:04:05Z",
	}
	var got realtime.Comment
	b.expect(realtime.EventNewComment, &got)
	require.Equal(t, want, got)

	// the sender only hears its own comment back
	env, skipped := a.until(realtime.EventNewComment)
	require.NoError(t, json.Unmarshal(env.Data, &got))
	require.Equal(t, want, got)
	require.NotContains(t, skipped, realtime.EventCodeChange)
	require.NotContains(t, skipped, realtime.EventCursorUpdate)
	require.NotContains(t, skipped, realtime.EventFileSaved)
}

func TestRelayCollaboratorsCarryCursor(t *testing.T) {
	srv := newTestServer(t, testSecret)
	a := join(t, srv, "u1", "p1")
	a.collaborators(1)
	a.send(realtime.EventCursorUpdate, realtime.CursorMove{Line: 9, Column: 2})
	// the comment echo proves the cursor was processed
	a.send(realtime.EventProjectComment, realtime.ProjectComment{Content: "sync"})
	a.expect(realtime.EventNewComment, &realtime.Comment{})

	b := join(t, srv, "u2", "p1")
	users := b.collaborators(2)
	require.NotNil(t, users[0].Cursor)
	require.Equal(t, realtime.Position{Line: 9, Column: 2}, *users[0].Cursor)
	require.Nil(t, users[1].Cursor)
}

func TestRelayRoomsAreIsolated(t *testing.T) {
	srv := newTestServer(t, testSecret)
	a := join(t, srv, "u1", "p1")
	a.collaborators(1)
	other := join(t, srv, "u2", "p2")
	other.collaborators(1)

	a.send(realtime.EventProjectComment, realtime.ProjectComment{Content: "only p1"})
	a.expect(realtime.EventNewComment, &realtime.Comment{})

	other.send(realtime.EventProjectComment, realtime.ProjectComment{Content: "only p2"})
	env, skipped := other.until(realtime.EventNewComment)
	var got realtime.Comment
	require.NoError(t, json.Unmarshal(env.Data, &got))
	require.Equal(t, "only p2", got.Content)
	require.Empty(t, skipped)
}

func TestRelayOneEntryPerUser(t *testing.T) {
	srv := newTestServer(t, testSecret)
	a := join(t, srv, "u1", "p1")
	a.collaborators(1)
	join(t, srv, "u1", "p1")

	// a second tab of the same user does not add a collaborator
	b := join(t, srv, "u2", "p1")
	users := b.collaborators(2)
	require.Equal(t, []string{"u1", "u2"}, []string{users[0].ID, users[1].ID})
}

func TestRelayPresenceOnLeave(t *testing.T) {
	srv := newTestServer(t, testSecret)
	a := join(t, srv, "u1", "p1")
	b := join(t, srv, "u2", "p1")
	a.collaborators(2)
	b.collaborators(2)

	require.NoError(t, b.conn.Close())
	users := a.collaborators(1)
	require.Equal(t, "u1", users[0].ID)
}

func TestRelayErrors(t *testing.T) {
	srv := newTestServer(t, testSecret)
	p, _, err := dial(t, srv, signToken(t, testSecret, "u1", "Ana"))
	require.NoError(t, err)

	var em realtime.ErrorMessage
	p.send(realtime.EventCodeChange, realtime.CodeChange{FileID: "f1"})
	p.expect(realtime.EventError, &em)
	require.Equal(t, "join a project first", em.Message)

	p.send(realtime.EventJoinProject, realtime.JoinProject{})
	p.expect(realtime.EventError, &em)
	require.Equal(t, "projectId is required", em.Message)

	require.NoError(t, p.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	p.expect(realtime.EventError, &em)
	require.Equal(t, "malformed message", em.Message)

	p.send(realtime.EventJoinProject, realtime.JoinProject{ProjectID: "p1"})
	p.send("telepathy", map[string]string{})
	p.expect(realtime.EventError, &em)
	require.Equal(t, "unknown event telepathy", em.Message)

	p.send(realtime.EventProjectComment, realtime.ProjectComment{Content: "   "})
	p.expect(realtime.EventError, &em)
	require.Equal(t, "comment is empty", em.Message)
}

func TestRelayHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, testSecret)
	p := join(t, srv, "u1", "p1")
	p.collaborators(1)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	require.Equal(t, "ok", health["status"])
	require.EqualValues(t, 1, health["rooms"])
	require.EqualValues(t, 1, health["connections"])
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "vdcollab_relay_connections")
	require.Contains(t, string(body), "vdcollab_relay_rooms")
}

func TestRelayWithRealtimeClients(t *testing.T) {
	srv := newTestServer(t, testSecret)

	var (
		mu      sync.Mutex
		changes []realtime.CodeChange
	)
	start := func(userID string, h realtime.Handlers) *realtime.Client {
		c, err := realtime.NewClient(realtime.Options{
			URL:          wsURL(srv),
			Token:        signToken(t, testSecret, userID, userID),
			ProjectID:    "p1",
			Handlers:     h,
			Logger:       zaptest.NewLogger(t),
			ReconnectMin: 10 * time.Millisecond,
			ReconnectMax: 20 * time.Millisecond,
		})
		require.NoError(t, err)
		c.Start(context.Background())
		t.Cleanup(func() { _ = c.Close() })
		return c
	}

	a := start("u1", realtime.Handlers{})
	b := start("u2", realtime.Handlers{OnCodeChange: func(cc realtime.CodeChange) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, cc)
	}})

	require.Eventually(t, func() bool {
		return a.Presence().Len() == 2 && b.Presence().Len() == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.SendCodeChange("f1", "hello"))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changes) == 1 && changes[0].UserID == "u1" && changes[0].Changes == "hello"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, b.SendComment("looks good"))
	require.Eventually(t, func() bool {
		return a.Comments().Len() == 1 && b.Comments().Len() == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "u2", a.Comments().List()[0].AuthorID)
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	s := NewServer(Options{Logger: zaptest.NewLogger(t)})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop")
	}
}
