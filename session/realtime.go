package session

import (
	"strings"

	"github.com/Laisky/errors/v2"
	"go.uber.org/zap"

	"github.com/odvcencio/visualdocs-collab/editor"
	"github.com/odvcencio/visualdocs-collab/realtime"
)

// RealtimeHandlers returns the handlers that apply room events to the
// session. Pass them to realtime.NewClient, then Attach the client.
func (s *Session) RealtimeHandlers() realtime.Handlers {
	return realtime.Handlers{
		OnStatus:        s.handleStatus,
		OnCodeChange:    s.handleCodeChange,
		OnCollaborators: s.handleCollaborators,
		OnComment:       s.handleComment,
		OnFileEvent:     s.handleFileEvent,
		OnServerError: func(msg string) {
			s.notify(LevelWarn, "Collaboration server: %s", msg)
		},
	}
}

func (s *Session) handleStatus(st realtime.Status) {
	s.mu.Lock()
	prev := s.status
	s.status = st
	s.mu.Unlock()

	if prev == st {
		return
	}
	s.log.Info("realtime status", zap.String("from", string(prev)), zap.String("to", string(st)))
	switch {
	case st == realtime.StatusDisconnected && prev == realtime.StatusConnected:
		s.notify(LevelWarn, "Lost connection to collaborators, reconnecting")
	case st == realtime.StatusConnected:
		s.notify(LevelInfo, "Connected to collaborators")
	}
}

// handleCodeChange replaces the text of the matching open buffer. The last
// change received wins; changes for files that are not open are dropped
// because the file is re-read from the tree when it is opened.
func (s *Session) handleCodeChange(cc realtime.CodeChange) {
	s.mu.Lock()
	var buf *editor.Buffer
	for _, b := range s.buffers {
		if b.FileID() == cc.FileID {
			buf = b
			break
		}
	}
	if buf == nil || !buf.ApplyRemote(cc.Changes) {
		s.mu.Unlock()
		return
	}
	path := buf.Path()
	s.tabs.SetDirty(path, buf.Dirty())
	s.mu.Unlock()

	s.log.Debug("applied remote change", zap.String("path", path), zap.String("user_id", cc.UserID))
	s.scheduleSymbols(path, buf)
}

func (s *Session) handleCollaborators(users []realtime.Collaborator) {
	s.log.Debug("collaborators updated", zap.Int("count", len(users)))
}

func (s *Session) handleComment(c realtime.Comment) {
	name := c.AuthorName
	if name == "" {
		name = c.AuthorID
	}
	s.notify(LevelInfo, "New comment from %s", name)
}

func (s *Session) handleFileEvent(event string, n realtime.FileNotice) {
	s.log.Debug("collaborator file event",
		zap.String("event", event), zap.String("file_id", n.FileID), zap.String("user_id", n.UserID))
}

// SendComment posts a project comment to the room. Comments need a live
// connection; offline comments are rejected with ErrNotConnected. The
// comment appears in Comments when the room echoes it back.
func (s *Session) SendComment(content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return errors.New("comment is empty")
	}

	ch := s.currentChannel()
	if ch == nil || ch.Status() != realtime.StatusConnected {
		s.notify(LevelError, "Cannot post comment while disconnected")
		return ErrNotConnected
	}
	if err := ch.SendComment(content); err != nil {
		if errors.Is(err, realtime.ErrNotConnected) {
			s.notify(LevelError, "Cannot post comment while disconnected")
			return ErrNotConnected
		}
		s.notify(LevelError, "Failed to post comment: %v", err)
		return errors.Wrap(err, "send comment")
	}
	return nil
}
