// Package session ties the project tree, open tabs, editor buffers, symbol
// index, save bridge and realtime room together into one editing session.
//
// A Session serializes all state changes behind one mutex. Network calls
// (loads, saves, realtime sends) are always made without the lock held, so
// editing never waits on the network.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/visualdocs-collab/api"
	"github.com/odvcencio/visualdocs-collab/editor"
	"github.com/odvcencio/visualdocs-collab/logging"
	"github.com/odvcencio/visualdocs-collab/metrics"
	"github.com/odvcencio/visualdocs-collab/realtime"
	"github.com/odvcencio/visualdocs-collab/symbols"
	"github.com/odvcencio/visualdocs-collab/tree"
)

var (
	ErrNoActiveTab  = errors.New("no active tab")
	ErrNoProject    = errors.New("no project id")
	ErrFileNotFound = errors.New("file not found")
	ErrTabNotOpen   = errors.New("file is not open")

	ErrNotAFile     = editor.ErrNotAFile
	ErrNotConnected = realtime.ErrNotConnected
)

// Backend is the project REST API.
type Backend interface {
	GetProject(ctx context.Context, projectID string) (*api.Project, error)
	ListFiles(ctx context.Context, projectID string) ([]tree.FileRecord, error)
	ListComments(ctx context.Context, projectID string) ([]realtime.Comment, error)
	SaveFile(ctx context.Context, projectID, fileID, content string) error
}

// Channel is the realtime room connection. *realtime.Client implements it.
type Channel interface {
	SendCodeChange(fileID, content string) error
	SendCursor(fileID string, pos realtime.Position) error
	SendComment(content string) error
	SendFileOpen(fileID, fileName string) error
	SendFileSaved(fileID, fileName string) error
	Status() realtime.Status
	Presence() *realtime.Presence
	Comments() *realtime.CommentLog
	Close() error
}

// Options configures a Session.
type Options struct {
	ProjectID string
	Backend   Backend
	Channel   Channel
	Notifier  Notifier
	Logger    *zap.Logger

	RecentLimit int
	// SymbolDebounce delays symbol recomputation after an edit. Zero
	// recomputes synchronously.
	SymbolDebounce time.Duration
	Clock          func() time.Time
}

// Session is one person's editing session on one project.
type Session struct {
	id        string
	projectID string
	backend   Backend
	notifier  Notifier
	log       *zap.Logger
	now       func() time.Time
	debounce  time.Duration

	mu          sync.Mutex
	channel     Channel
	projectName string
	forest      []*tree.FileNode
	tabs        *editor.TabManager
	buffers     map[string]*editor.Buffer
	syms        map[string][]symbols.Symbol
	debouncers  map[string]*symbols.Debouncer
	saveSeq     map[string]uint64
	savedSeq    map[string]uint64
	lastSaved   map[string]time.Time
	status      realtime.Status
	comments    *realtime.CommentLog
	presence    *realtime.Presence
	closed      bool
}

// New creates a session. Backend may be nil for a purely local session, in
// which case Load and Save fail.
func New(opts Options) *Session {
	id := uuid.NewString()
	log := opts.Logger
	if log == nil {
		log = logging.Named("session")
	}
	log = log.With(zap.String("session_id", id), zap.String("project_id", opts.ProjectID))

	s := &Session{
		id:         id,
		projectID:  opts.ProjectID,
		backend:    opts.Backend,
		notifier:   opts.Notifier,
		log:        log,
		now:        opts.Clock,
		debounce:   opts.SymbolDebounce,
		tabs:       editor.NewTabManager(opts.RecentLimit),
		buffers:    make(map[string]*editor.Buffer),
		syms:       make(map[string][]symbols.Symbol),
		debouncers: make(map[string]*symbols.Debouncer),
		saveSeq:    make(map[string]uint64),
		savedSeq:   make(map[string]uint64),
		lastSaved:  make(map[string]time.Time),
		status:     realtime.StatusDisconnected,
		comments:   realtime.NewCommentLog(),
		presence:   realtime.NewPresence(),
	}
	if s.notifier == nil {
		s.notifier = NewLogNotifier(log.Named("notice"), 0)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.Channel != nil {
		s.Attach(opts.Channel)
	}
	return s
}

// ID returns the session id used in logs.
func (s *Session) ID() string {
	return s.id
}

// ProjectID returns the project the session edits.
func (s *Session) ProjectID() string {
	return s.projectID
}

// Attach connects the session to a realtime channel. Comments already
// loaded are merged into the channel's log so both sources de-duplicate
// against each other.
func (s *Session) Attach(ch Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch.Comments().Merge(s.comments.List())
	s.channel = ch
	s.comments = ch.Comments()
	s.presence = ch.Presence()
	s.status = ch.Status()
}

func (s *Session) notify(level Level, format string, args ...any) {
	s.notifier.Notify(Notice{Level: level, Message: fmt.Sprintf(format, args...), Time: s.now()})
}

func (s *Session) currentChannel() Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

// Load fetches the project files and comments concurrently. Failures are
// reported as warnings and the session continues with whatever loaded; the
// first error is returned for the caller's information.
func (s *Session) Load(ctx context.Context) error {
	if s.projectID == "" {
		return ErrNoProject
	}
	if s.backend == nil {
		return errors.New("session has no backend")
	}

	var (
		project     *api.Project
		comments    []realtime.Comment
		filesErr    error
		commentsErr error
		g           errgroup.Group
	)
	g.Go(func() error {
		p, err := s.backend.GetProject(ctx, s.projectID)
		if err != nil {
			filesErr = err
			return err
		}
		if len(p.Files) == 0 {
			files, err := s.backend.ListFiles(ctx, s.projectID)
			if err != nil {
				filesErr = err
				return err
			}
			p.Files = files
		}
		project = p
		return nil
	})
	g.Go(func() error {
		cs, err := s.backend.ListComments(ctx, s.projectID)
		if err != nil {
			commentsErr = err
			return err
		}
		comments = cs
		return nil
	})
	err := g.Wait()

	if filesErr != nil {
		s.log.Warn("load project files", zap.Error(filesErr))
		s.notify(LevelWarn, "Could not load project files: %v", filesErr)
	} else {
		s.mu.Lock()
		s.projectName = project.Name
		s.mu.Unlock()
		s.SetTree(project.Files)
	}

	if commentsErr != nil {
		s.log.Warn("load comments", zap.Error(commentsErr))
		s.notify(LevelWarn, "Could not load comments: %v", commentsErr)
	} else {
		s.mu.Lock()
		added := s.comments.Merge(comments)
		s.mu.Unlock()
		s.log.Debug("loaded comments", zap.Int("count", len(comments)), zap.Int("new", added))
	}

	if err != nil {
		return errors.Wrap(err, "load project")
	}
	return nil
}

// SetTree replaces the file tree. Open tabs keep the nodes they were opened
// with until they are closed.
func (s *Session) SetTree(records []tree.FileRecord) {
	if dups := tree.DuplicatePaths(records); len(dups) > 0 {
		s.log.Warn("duplicate file paths, last record wins", zap.Strings("paths", dups))
	}
	forest := tree.Build(records)

	s.mu.Lock()
	s.forest = forest
	s.mu.Unlock()
	s.log.Info("project tree built",
		zap.Int("files", len(records)), zap.Int("nodes", tree.CountNodes(forest)))
}

// ProjectName returns the loaded project's name.
func (s *Session) ProjectName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projectName
}

// Tree returns the file forest. Callers must treat it as read-only.
func (s *Session) Tree() []*tree.FileNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forest
}

// Comments returns the project comments in arrival order.
func (s *Session) Comments() []realtime.Comment {
	s.mu.Lock()
	log := s.comments
	s.mu.Unlock()
	return log.List()
}

// Collaborators returns the collaborators in the room.
func (s *Session) Collaborators() []realtime.Collaborator {
	s.mu.Lock()
	p := s.presence
	s.mu.Unlock()
	return p.List()
}

// Status returns the realtime connection status.
func (s *Session) Status() realtime.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Close stops pending symbol work and disconnects the realtime channel.
// The session's local state stays readable.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, d := range s.debouncers {
		d.Stop()
	}
	remaining := len(s.buffers)
	ch := s.channel
	s.mu.Unlock()

	metrics.AddOpenTabs(-remaining)

	if ch != nil {
		if err := ch.Close(); err != nil {
			return errors.Wrap(err, "close realtime channel")
		}
	}
	return nil
}
