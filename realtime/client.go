// Package realtime is the client side of a project room: a websocket
// connection that joins the room, tracks presence and comments, and
// carries code, cursor and file events between collaborators.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/odvcencio/visualdocs-collab/logging"
	"github.com/odvcencio/visualdocs-collab/metrics"
)

var (
	// ErrNotConnected is returned when an event is sent without a live
	// connection. Nothing is queued.
	ErrNotConnected = errors.New("realtime: not connected")
	// ErrThrottled is returned when a cursor update exceeds the rate limit.
	ErrThrottled = errors.New("realtime: cursor update throttled")
)

// Status is the connection state.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

const writeWait = 10 * time.Second

// Handlers receive inbound events. They run on the client's read
// goroutine; any may be nil.
type Handlers struct {
	OnStatus        func(Status)
	OnCodeChange    func(CodeChange)
	OnCursor        func(userID string, pos Position)
	OnCollaborators func([]Collaborator)
	OnComment       func(Comment) // only for comments not seen before
	OnFileEvent     func(event string, n FileNotice)
	OnServerError   func(msg string)
}

// Options configures a Client.
type Options struct {
	URL       string // ws:// or wss:// endpoint
	Token     string
	ProjectID string
	// UserID overrides the id read from the token.
	UserID string

	Handlers Handlers
	Logger   *zap.Logger
	Dialer   *websocket.Dialer

	ReconnectMin time.Duration
	ReconnectMax time.Duration
	// CursorInterval is the minimum spacing of cursor updates; 0 disables
	// throttling.
	CursorInterval time.Duration
}

// Client is one connection to a project room. It is a scoped resource:
// create it per session and Close it when the session ends.
type Client struct {
	opts     Options
	self     Identity
	log      *zap.Logger
	dialer   *websocket.Dialer
	presence *Presence
	comments *CommentLog
	cursor   *rate.Limiter

	mu     sync.Mutex
	conn   *websocket.Conn
	status Status

	writeMu sync.Mutex
	started atomic.Bool
	closed  atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewClient validates opts and returns an unconnected client.
func NewClient(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("realtime: url is required")
	}
	if opts.ProjectID == "" {
		return nil, errors.New("realtime: project id is required")
	}
	if _, err := url.Parse(opts.URL); err != nil {
		return nil, errors.Wrapf(err, "parse realtime url %q", opts.URL)
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = time.Second
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = 30 * time.Second
	}

	c := &Client{
		opts:     opts,
		log:      opts.Logger,
		dialer:   opts.Dialer,
		presence: NewPresence(),
		comments: NewCommentLog(),
		status:   StatusDisconnected,
		done:     make(chan struct{}),
	}
	if c.log == nil {
		c.log = logging.Named("realtime")
	}
	if c.dialer == nil {
		c.dialer = websocket.DefaultDialer
	}
	if opts.CursorInterval > 0 {
		c.cursor = rate.NewLimiter(rate.Every(opts.CursorInterval), 1)
	}

	c.self.UserID = opts.UserID
	if opts.Token != "" {
		id, err := IdentityFromToken(opts.Token)
		if err != nil {
			c.log.Warn("cannot read identity from token", zap.Error(err))
		} else if c.self.UserID == "" {
			c.self = id
		} else {
			c.self.Name = id.Name
		}
	}
	return c, nil
}

// Self returns the identity the client recognises as its own.
func (c *Client) Self() Identity {
	return c.self
}

// Presence returns the live collaborator set.
func (c *Client) Presence() *Presence {
	return c.presence
}

// Comments returns the live comment log.
func (c *Client) Comments() *CommentLog {
	return c.comments
}

// Status returns the current connection state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Start runs the connection loop until ctx is done or Close is called.
// It returns immediately; connection progress is reported through
// Handlers.OnStatus.
func (c *Client) Start(ctx context.Context) {
	if c.closed.Load() || !c.started.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	go c.run(ctx)
}

// Close disconnects and stops reconnecting. It is safe to call more than
// once.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.mu.Lock()
	cancel, conn := c.cancel, c.conn
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	<-c.done
	return nil
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	defer c.setStatus(StatusDisconnected)

	delay := c.opts.ReconnectMin
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return
		}
		if attempt > 0 {
			metrics.RecordReconnect()
		}

		c.setStatus(StatusConnecting)
		conn, err := c.dial(ctx)
		if err == nil {
			delay = c.opts.ReconnectMin
			err = c.serve(ctx, conn)
		}
		if ctx.Err() != nil {
			return
		}
		c.setStatus(StatusDisconnected)
		c.log.Warn("realtime connection lost",
			zap.Error(err), zap.Duration("retry_in", delay))

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > c.opts.ReconnectMax {
			delay = c.opts.ReconnectMax
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return nil, errors.Wrap(err, "parse url")
	}
	q := u.Query()
	q.Set("projectId", c.opts.ProjectID)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "dial %s: status %d", u.Host, resp.StatusCode)
		}
		return nil, errors.Wrapf(err, "dial %s", u.Host)
	}
	return conn, nil
}

// serve joins the room on conn and reads until the connection fails.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	join, err := NewEnvelope(EventJoinProject, JoinProject{ProjectID: c.opts.ProjectID})
	if err != nil {
		return err
	}
	if err := c.write(conn, join); err != nil {
		return errors.Wrap(err, "join project")
	}
	metrics.RecordRealtimeEvent("out", EventJoinProject)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
	}()

	c.setStatus(StatusConnected)
	c.log.Info("joined project room", zap.String("project_id", c.opts.ProjectID))

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "read")
		}
		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			c.log.Debug("dropping malformed frame", zap.Error(err))
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env Envelope) {
	metrics.RecordRealtimeEvent("in", env.Event)
	h := c.opts.Handlers

	switch env.Event {
	case EventCodeChange:
		var cc CodeChange
		if !c.decode(env, &cc) {
			return
		}
		if cc.UserID != "" && cc.UserID == c.self.UserID {
			return
		}
		if h.OnCodeChange != nil {
			h.OnCodeChange(cc)
		}

	case EventCursorUpdate:
		var cu CursorUpdate
		if !c.decode(env, &cu) || cu.UserID == "" {
			return
		}
		c.presence.UpdateCursor(cu.UserID, cu.Position)
		if h.OnCursor != nil {
			h.OnCursor(cu.UserID, cu.Position)
		}

	case EventCollaborators:
		var users []Collaborator
		if !c.decode(env, &users) {
			return
		}
		c.presence.Replace(users)
		if h.OnCollaborators != nil {
			h.OnCollaborators(c.presence.List())
		}

	case EventNewComment:
		var cm Comment
		if !c.decode(env, &cm) {
			return
		}
		if !c.comments.Add(cm) {
			return
		}
		if h.OnComment != nil {
			cm.ID = cm.Key()
			h.OnComment(cm)
		}

	case EventFileOpen, EventFileSaved:
		var n FileNotice
		if !c.decode(env, &n) {
			return
		}
		if h.OnFileEvent != nil {
			h.OnFileEvent(env.Event, n)
		}

	case EventError:
		var em ErrorMessage
		if !c.decode(env, &em) {
			return
		}
		c.log.Warn("room server error", zap.String("message", em.Message))
		if h.OnServerError != nil {
			h.OnServerError(em.Message)
		}

	default:
		c.log.Debug("ignoring event", zap.String("event", env.Event))
	}
}

func (c *Client) decode(env Envelope, v any) bool {
	if err := json.Unmarshal(env.Data, v); err != nil {
		c.log.Debug("dropping malformed event",
			zap.String("event", env.Event), zap.Error(err))
		return false
	}
	return true
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	changed := c.status != s
	c.status = s
	c.mu.Unlock()
	if changed && c.opts.Handlers.OnStatus != nil {
		c.opts.Handlers.OnStatus(s)
	}
}

func (c *Client) write(conn *websocket.Conn, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "marshal envelope")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Send writes one event. Writes are serialized in call order. While
// disconnected it returns ErrNotConnected and the event is dropped.
func (c *Client) Send(event string, data any) error {
	if c.closed.Load() {
		metrics.RecordRealtimeDropped(event, "closed")
		return ErrNotConnected
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		metrics.RecordRealtimeDropped(event, "disconnected")
		return ErrNotConnected
	}

	env, err := NewEnvelope(event, data)
	if err != nil {
		return errors.Wrapf(err, "encode %s", event)
	}
	if err := c.write(conn, env); err != nil {
		metrics.RecordRealtimeDropped(event, "write_error")
		return errors.Wrapf(err, "send %s", event)
	}
	metrics.RecordRealtimeEvent("out", event)
	return nil
}

// SendCodeChange broadcasts the full content of a file.
func (c *Client) SendCodeChange(fileID, content string) error {
	return c.Send(EventCodeChange, CodeChange{
		FileID:    fileID,
		Changes:   content,
		Timestamp: time.Now().UnixMilli(),
	})
}

// SendCursor broadcasts the local cursor. Updates faster than
// Options.CursorInterval are dropped with ErrThrottled.
func (c *Client) SendCursor(fileID string, pos Position) error {
	if c.cursor != nil && !c.cursor.Allow() {
		metrics.RecordRealtimeDropped(EventCursorUpdate, "rate_limited")
		return ErrThrottled
	}
	return c.Send(EventCursorUpdate, CursorMove{Line: pos.Line, Column: pos.Column, FileID: fileID})
}

// SendComment posts a project comment. The server echoes it back as
// new-comment.
func (c *Client) SendComment(content string) error {
	return c.Send(EventProjectComment, ProjectComment{ProjectID: c.opts.ProjectID, Content: content})
}

// SendFileOpen announces that a file was opened.
func (c *Client) SendFileOpen(fileID, fileName string) error {
	return c.Send(EventFileOpen, FileNotice{FileID: fileID, FileName: fileName})
}

// SendFileSaved announces that a file was saved.
func (c *Client) SendFileSaved(fileID, fileName string) error {
	return c.Send(EventFileSaved, FileNotice{FileID: fileID, FileName: fileName})
}
