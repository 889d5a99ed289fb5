package session

import (
	"time"

	"github.com/Laisky/errors/v2"
	"go.uber.org/zap"

	"github.com/odvcencio/visualdocs-collab/editor"
	"github.com/odvcencio/visualdocs-collab/metrics"
	"github.com/odvcencio/visualdocs-collab/realtime"
	"github.com/odvcencio/visualdocs-collab/symbols"
	"github.com/odvcencio/visualdocs-collab/tree"
)

// TabInfo is a snapshot of one open tab.
type TabInfo struct {
	Path     string `json:"path"`
	FileID   string `json:"fileId"`
	Title    string `json:"title"`
	Language string `json:"language,omitempty"`
	Dirty    bool   `json:"dirty"`
	Active   bool   `json:"active"`
}

// OpenFile opens path in a tab, or activates its existing tab. The file's
// symbols are available as soon as OpenFile returns.
func (s *Session) OpenFile(path string) (TabInfo, error) {
	path = tree.Clean(path)

	s.mu.Lock()
	node := tree.FindByPath(s.forest, path)
	if node == nil {
		s.mu.Unlock()
		return TabInfo{}, errors.Wrapf(ErrFileNotFound, "open %s", path)
	}
	tab, err := s.tabs.OpenFile(node)
	if err != nil {
		s.mu.Unlock()
		return TabInfo{}, errors.Wrapf(err, "open %s", path)
	}

	buf, existed := s.buffers[path]
	if !existed {
		buf = editor.NewBuffer(node.ID, node.Path, node.Content, node.Language)
		s.buffers[path] = buf
	}
	info := s.tabInfoLocked(tab)
	track := !existed && !s.closed
	ch := s.channel
	s.mu.Unlock()

	if track {
		metrics.AddOpenTabs(1)
	}
	if !existed {
		s.recomputeSymbols(path, buf)
		s.log.Debug("opened file", zap.String("path", path))
		if ch != nil {
			s.sendQuietly("file:open", ch.SendFileOpen(buf.FileID(), buf.Title()))
		}
	}
	return info, nil
}

// SetActive switches to an already open tab.
func (s *Session) SetActive(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.tabs.SetActive(tree.Clean(path)) {
		return errors.Wrapf(ErrTabNotOpen, "activate %s", path)
	}
	return nil
}

// CloseTab closes the tab for path. Unsaved edits are discarded with a
// warning. In-flight saves for the file complete silently.
func (s *Session) CloseTab(path string) error {
	path = tree.Clean(path)

	s.mu.Lock()
	if !s.tabs.Close(path) {
		s.mu.Unlock()
		return errors.Wrapf(ErrTabNotOpen, "close %s", path)
	}
	buf := s.buffers[path]
	delete(s.buffers, path)
	delete(s.syms, path)
	if d := s.debouncers[path]; d != nil {
		d.Stop()
		delete(s.debouncers, path)
	}
	track := !s.closed
	s.mu.Unlock()

	if track {
		metrics.AddOpenTabs(-1)
	}
	if buf != nil && buf.Dirty() {
		s.notify(LevelWarn, "Discarded unsaved changes to %s", buf.Title())
	}
	return nil
}

// Tabs returns the open tabs in opening order.
func (s *Session) Tabs() []TabInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	tabs := s.tabs.Tabs()
	out := make([]TabInfo, 0, len(tabs))
	for _, t := range tabs {
		out = append(out, s.tabInfoLocked(t))
	}
	return out
}

// Active returns the active tab.
func (s *Session) Active() (TabInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tabs.Active()
	if t == nil {
		return TabInfo{}, false
	}
	return s.tabInfoLocked(t), true
}

// Recent returns recently opened paths, newest first.
func (s *Session) Recent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tabs.Recent()
}

// Text returns the live text of an open file.
func (s *Session) Text(path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := s.buffers[tree.Clean(path)]
	if buf == nil {
		return "", errors.Wrapf(ErrTabNotOpen, "text %s", path)
	}
	return buf.Text(), nil
}

// Cursor returns the cursor of an open file.
func (s *Session) Cursor(path string) (editor.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := s.buffers[tree.Clean(path)]
	if buf == nil {
		return editor.Position{}, errors.Wrapf(ErrTabNotOpen, "cursor %s", path)
	}
	return buf.Cursor(), nil
}

// Symbols returns the last computed symbols of an open file.
func (s *Session) Symbols(path string) []symbols.Symbol {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]symbols.Symbol(nil), s.syms[tree.Clean(path)]...)
}

// LastSaved returns when path was last saved in this session.
func (s *Session) LastSaved(path string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastSaved[tree.Clean(path)]
	return t, ok
}

// SetContent replaces the whole text of the active file, the way an editor
// widget reports changes.
func (s *Session) SetContent(content string) error {
	return s.mutateActive(func(b *editor.Buffer) (bool, error) {
		return b.SetText(content), nil
	})
}

// Edit replaces oldText at offset with newText in the active file.
func (s *Session) Edit(offset int, oldText, newText string) error {
	return s.mutateActive(func(b *editor.Buffer) (bool, error) {
		if err := b.ApplyEdit(offset, oldText, newText); err != nil {
			return false, err
		}
		return oldText != newText, nil
	})
}

// Undo reverts the last edit of the active file.
func (s *Session) Undo() error {
	return s.mutateActive(func(b *editor.Buffer) (bool, error) {
		return b.Undo(), nil
	})
}

// Redo re-applies the last undone edit of the active file.
func (s *Session) Redo() error {
	return s.mutateActive(func(b *editor.Buffer) (bool, error) {
		return b.Redo(), nil
	})
}

// Revert discards unsaved edits of the active file.
func (s *Session) Revert() error {
	return s.mutateActive(func(b *editor.Buffer) (bool, error) {
		before := b.Text()
		b.Revert()
		return b.Text() != before, nil
	})
}

// Format normalizes whitespace in the active file.
func (s *Session) Format() error {
	return s.mutateActive(func(b *editor.Buffer) (bool, error) {
		return b.Format(), nil
	})
}

// Replace replaces every match of query in the active file and returns the
// number of replacements. With regex set, query is a regular expression and
// replacement may reference groups as $1.
func (s *Session) Replace(query, replacement string, regex bool) (int, error) {
	var n int
	err := s.mutateActive(func(b *editor.Buffer) (bool, error) {
		if regex {
			count, err := b.ReplacePattern(query, replacement)
			n = count
			return count > 0, err
		}
		n = b.ReplaceAll(query, replacement)
		return n > 0, nil
	})
	return n, err
}

// Find returns the byte ranges of query in the active file.
func (s *Session) Find(query string) ([]editor.Range, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, err := s.activeBufferLocked()
	if err != nil {
		return nil, err
	}
	return buf.Find(query), nil
}

// mutateActive runs fn on the active buffer. When fn reports a change, the
// tab's dirty flag is recomputed, the new text is broadcast, and symbols
// are rescheduled.
func (s *Session) mutateActive(fn func(*editor.Buffer) (bool, error)) error {
	s.mu.Lock()
	buf, err := s.activeBufferLocked()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	changed, err := fn(buf)
	if err != nil || !changed {
		s.mu.Unlock()
		return err
	}
	path := buf.Path()
	s.tabs.SetDirty(path, buf.Dirty())
	fileID, text := buf.FileID(), buf.Text()
	ch := s.channel
	s.mu.Unlock()

	if ch != nil {
		s.sendQuietly("code:change", ch.SendCodeChange(fileID, text))
	}
	s.scheduleSymbols(path, buf)
	return nil
}

// GotoLine moves the active cursor to the start of line, clamped to the
// file, and broadcasts it.
func (s *Session) GotoLine(line int) (editor.Position, error) {
	return s.moveActive(func(b *editor.Buffer) editor.Position {
		return b.GotoLine(line)
	})
}

// MoveCursor moves the active cursor, clamped to the file, and broadcasts it.
func (s *Session) MoveCursor(pos editor.Position) (editor.Position, error) {
	return s.moveActive(func(b *editor.Buffer) editor.Position {
		return b.SetCursor(pos)
	})
}

// GotoSymbol moves the active cursor to the first symbol named name.
func (s *Session) GotoSymbol(name string) (editor.Position, error) {
	s.mu.Lock()
	t := s.tabs.Active()
	var syms []symbols.Symbol
	if t != nil {
		syms = s.syms[t.Path()]
	}
	s.mu.Unlock()

	sym, ok := symbols.Find(syms, name)
	if !ok {
		return editor.Position{}, errors.Errorf("symbol %q not found", name)
	}
	return s.GotoLine(sym.Line)
}

func (s *Session) moveActive(fn func(*editor.Buffer) editor.Position) (editor.Position, error) {
	s.mu.Lock()
	buf, err := s.activeBufferLocked()
	if err != nil {
		s.mu.Unlock()
		return editor.Position{}, err
	}
	pos := fn(buf)
	fileID := buf.FileID()
	ch := s.channel
	s.mu.Unlock()

	if ch != nil {
		err := ch.SendCursor(fileID, realtime.Position{Line: pos.Line, Column: pos.Column})
		if !errors.Is(err, realtime.ErrThrottled) {
			s.sendQuietly("cursor:move", err)
		}
	}
	return pos, nil
}

func (s *Session) activeBufferLocked() (*editor.Buffer, error) {
	t := s.tabs.Active()
	if t == nil {
		return nil, ErrNoActiveTab
	}
	buf := s.buffers[t.Path()]
	if buf == nil {
		return nil, errors.Wrapf(ErrTabNotOpen, "buffer %s", t.Path())
	}
	return buf, nil
}

func (s *Session) tabInfoLocked(t *editor.Tab) TabInfo {
	info := TabInfo{
		Path:     t.Path(),
		FileID:   t.File.ID,
		Title:    t.File.Name,
		Language: t.File.Language,
		Dirty:    t.Dirty,
	}
	if a := s.tabs.Active(); a != nil && a.Path() == info.Path {
		info.Active = true
	}
	return info
}

// sendQuietly logs a failed broadcast. Local editing never fails because
// the room is unreachable.
func (s *Session) sendQuietly(event string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, realtime.ErrNotConnected) {
		s.log.Debug("offline, event not sent", zap.String("event", event))
		return
	}
	s.log.Warn("send realtime event", zap.String("event", event), zap.Error(err))
}

// scheduleSymbols recomputes symbols for path after the debounce delay.
// Must be called without s.mu held.
func (s *Session) scheduleSymbols(path string, buf *editor.Buffer) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	d := s.debouncers[path]
	if d == nil {
		d = symbols.NewDebouncer(s.debounce)
		s.debouncers[path] = d
	}
	s.mu.Unlock()

	d.Schedule(func() { s.recomputeSymbols(path, buf) })
}

func (s *Session) recomputeSymbols(path string, buf *editor.Buffer) {
	s.mu.Lock()
	if s.buffers[path] != buf {
		s.mu.Unlock()
		return
	}
	text, lang := buf.Text(), buf.Language()
	s.mu.Unlock()

	start := time.Now()
	syms := symbols.Extract(text, lang)
	metrics.ObserveSymbolExtract(time.Since(start))

	s.mu.Lock()
	if s.buffers[path] == buf {
		s.syms[path] = syms
	}
	s.mu.Unlock()
}
