package session

import (
	"context"

	"github.com/Laisky/errors/v2"
	"go.uber.org/zap"

	"github.com/odvcencio/visualdocs-collab/metrics"
	"github.com/odvcencio/visualdocs-collab/tree"
)

// Save persists the active file.
func (s *Session) Save(ctx context.Context) error {
	path, err := s.activePath()
	if err != nil {
		return err
	}
	return s.SaveFile(ctx, path)
}

// SaveAsync starts saving the active file and returns a channel that
// receives the result. The target file is fixed when SaveAsync is called,
// so switching tabs afterwards does not change what is saved.
func (s *Session) SaveAsync(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	path, err := s.activePath()
	if err != nil {
		done <- err
		close(done)
		return done
	}
	go func() {
		defer close(done)
		done <- s.SaveFile(ctx, path)
	}()
	return done
}

// SaveFile sends the live text of path to the backend.
//
// Saves are numbered per path. A completed save only marks the buffer clean
// when it is the newest save to complete so far, so an older save finishing
// late cannot clear the dirty state of newer edits. The buffer snapshot
// becomes the content that was sent, not the live text, so edits made while
// the save was in flight stay dirty. If the tab was closed while the save
// was in flight the result is dropped silently.
func (s *Session) SaveFile(ctx context.Context, path string) error {
	path = tree.Clean(path)
	if s.projectID == "" {
		return ErrNoProject
	}
	if s.backend == nil {
		return errors.New("session has no backend")
	}

	s.mu.Lock()
	buf := s.buffers[path]
	if buf == nil {
		s.mu.Unlock()
		return errors.Wrapf(ErrTabNotOpen, "save %s", path)
	}
	content, fileID, title := buf.Text(), buf.FileID(), buf.Title()
	s.saveSeq[path]++
	seq := s.saveSeq[path]
	s.mu.Unlock()

	log := s.log.With(zap.String("path", path), zap.Uint64("seq", seq))
	err := s.backend.SaveFile(ctx, s.projectID, fileID, content)
	metrics.RecordSave(err == nil)

	s.mu.Lock()
	open := s.buffers[path] == buf
	if err != nil {
		s.mu.Unlock()
		if !open {
			log.Debug("save failed after tab closed", zap.Error(err))
			return nil
		}
		log.Warn("save failed", zap.Error(err))
		s.notify(LevelError, "Failed to save %s: %v", title, err)
		return errors.Wrapf(err, "save %s", path)
	}

	if seq <= s.savedSeq[path] {
		s.mu.Unlock()
		log.Debug("superseded save completed")
		return nil
	}
	s.savedSeq[path] = seq
	if node := tree.FindByPath(s.forest, path); node != nil && node.ID == fileID {
		node.Content = content
	}
	if !open {
		s.mu.Unlock()
		log.Debug("save completed after tab closed")
		return nil
	}
	buf.MarkSaved(content)
	if t := s.tabs.Tab(path); t != nil {
		t.File.Content = content
		t.Dirty = buf.Dirty()
	}
	s.lastSaved[path] = s.now()
	ch := s.channel
	s.mu.Unlock()

	log.Info("saved file")
	if ch != nil {
		s.sendQuietly("file:saved", ch.SendFileSaved(fileID, title))
	}
	s.notify(LevelInfo, "Saved %s", title)
	return nil
}

// Dirty reports whether an open file has unsaved edits.
func (s *Session) Dirty(path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := s.buffers[tree.Clean(path)]
	if buf == nil {
		return false, errors.Wrapf(ErrTabNotOpen, "dirty %s", path)
	}
	return buf.Dirty(), nil
}

func (s *Session) activePath() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tabs.Active()
	if t == nil {
		return "", ErrNoActiveTab
	}
	return t.Path(), nil
}
