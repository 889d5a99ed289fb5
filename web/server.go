// Package web serves the project room relay: a WebSocket endpoint that
// fans collaboration events out to everyone editing the same project.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/visualdocs-collab/logging"
	"github.com/odvcencio/visualdocs-collab/metrics"
	"github.com/odvcencio/visualdocs-collab/realtime"
)

const (
	writeWait       = 10 * time.Second
	maxMessageSize  = 4 << 20
	shutdownTimeout = 5 * time.Second
)

// Options configures a Server.
type Options struct {
	// JWTSecret verifies HMAC-signed bearer tokens. When empty, tokens are
	// read without verification and clients without one join as guests.
	JWTSecret string
	Logger    *zap.Logger
	Clock     func() time.Time
}

// Server is the room relay HTTP + WebSocket server.
type Server struct {
	opts     Options
	log      *zap.Logger
	now      func() time.Time
	upgrader websocket.Upgrader
	handler  http.Handler

	mu    sync.Mutex
	rooms map[string]*room
	conns map[string]*wsClient
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	user realtime.Identity
	mu   sync.Mutex // serializes writes

	// guarded by Server.mu
	room   string
	cursor *realtime.Position
	joined uint64
}

// NewServer creates a relay.
func NewServer(opts Options) *Server {
	s := &Server{
		opts: opts,
		log:  opts.Logger,
		now:  opts.Clock,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		rooms: make(map[string]*room),
		conns: make(map[string]*wsClient),
	}
	if s.log == nil {
		s.log = logging.Named("relay")
	}
	if s.now == nil {
		s.now = time.Now
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())
	s.handler = logging.Middleware(mux)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then closes every
// room connection and shuts the listener down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("relay listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrapf(err, "listen on %s", addr)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.closeAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown relay")
		}
		return nil
	})
	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	rooms, conns := len(s.rooms), len(s.conns)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"rooms":       rooms,
		"connections": conns,
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	user, err := s.authenticate(r)
	if err != nil {
		metrics.RecordRelayAuthFailure()
		s.log.Warn("rejected room connection", zap.Error(err), zap.String("remote", r.RemoteAddr))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &wsClient{id: uuid.NewString(), conn: conn, user: user}
	log := s.log.With(zap.String("conn_id", c.id), zap.String("user_id", user.UserID))
	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
	metrics.RelayConnectionOpened()
	log.Info("room connection opened")

	defer func() {
		s.leave(c)
		s.mu.Lock()
		delete(s.conns, c.id)
		s.mu.Unlock()
		conn.Close()
		metrics.RelayConnectionClosed()
		log.Info("room connection closed")
	}()

	if projectID := r.URL.Query().Get("projectId"); projectID != "" {
		s.join(c, projectID)
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("read", zap.Error(err))
			}
			return
		}
		var env realtime.Envelope
		if err := json.Unmarshal(msg, &env); err != nil || env.Event == "" {
			s.sendError(c, "malformed message")
			continue
		}
		s.handle(c, env)
	}
}

// authenticate resolves the connecting user from a bearer token in the
// Authorization header or the token query parameter.
func (s *Server) authenticate(r *http.Request) (realtime.Identity, error) {
	token := bearerToken(r)
	if s.opts.JWTSecret == "" {
		if token == "" {
			return realtime.Identity{UserID: "guest-" + uuid.NewString()[:8], Name: "Guest"}, nil
		}
		return realtime.IdentityFromToken(token)
	}
	if token == "" {
		return realtime.Identity{}, errors.New("missing bearer token")
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(s.opts.JWTSecret), nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return realtime.Identity{}, errors.Wrap(err, "verify token")
	}
	return realtime.IdentityFromClaims(claims)
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return r.URL.Query().Get("token")
}

func (s *Server) send(c *wsClient, event string, data any) {
	env, err := realtime.NewEnvelope(event, data)
	if err != nil {
		s.log.Error("encode event", zap.String("event", event), zap.Error(err))
		return
	}
	msg, err := json.Marshal(env)
	if err != nil {
		s.log.Error("encode envelope", zap.String("event", event), zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		s.log.Debug("write event", zap.String("conn_id", c.id), zap.String("event", event), zap.Error(err))
		return
	}
	metrics.RecordRealtimeEvent("relay_out", event)
}

func (s *Server) sendError(c *wsClient, msg string) {
	s.send(c, realtime.EventError, realtime.ErrorMessage{Message: msg})
}

func (s *Server) closeAll() {
	s.mu.Lock()
	conns := make([]*wsClient, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.mu.Unlock()
		c.conn.Close()
	}
}
