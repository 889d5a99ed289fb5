package editor

import (
	"github.com/Laisky/errors/v2"

	"github.com/odvcencio/visualdocs-collab/tree"
)

// DefaultRecentLimit bounds the most-recently-used path list.
const DefaultRecentLimit = 10

// ErrNotAFile is returned when a folder (or nothing) is opened as a tab.
var ErrNotAFile = errors.New("node is not a file")

// Tab is a window onto one file node. The node is shared with the tree,
// which stays the source of truth for file identity.
type Tab struct {
	File  *tree.FileNode
	Dirty bool

	opened uint64
}

// Path returns the path of the tab's file.
func (t *Tab) Path() string {
	return t.File.Path
}

// TabManager tracks open tabs, the active one, and recently opened paths.
// It has no UI dependency.
type TabManager struct {
	tabs        []*Tab
	active      string // path of active tab, or "" if none
	recent      []string
	recentLimit int
	clock       uint64
}

// NewTabManager creates a TabManager with no open tabs. A non-positive
// recentLimit selects DefaultRecentLimit.
func NewTabManager(recentLimit int) *TabManager {
	if recentLimit <= 0 {
		recentLimit = DefaultRecentLimit
	}
	return &TabManager{recentLimit: recentLimit}
}

// Count returns the number of open tabs.
func (tm *TabManager) Count() int {
	return len(tm.tabs)
}

// Active returns the active tab, or nil if there are no open tabs.
func (tm *TabManager) Active() *Tab {
	return tm.Tab(tm.active)
}

// Tab returns the tab for path, or nil.
func (tm *TabManager) Tab(path string) *Tab {
	if path == "" {
		return nil
	}
	for _, t := range tm.tabs {
		if t.File.Path == path {
			return t
		}
	}
	return nil
}

// Tabs returns all open tabs in tab order.
func (tm *TabManager) Tabs() []*Tab {
	return append([]*Tab(nil), tm.tabs...)
}

// Recent returns recently opened paths, most recent first.
func (tm *TabManager) Recent() []string {
	return append([]string(nil), tm.recent...)
}

// OpenFile opens a tab for node. If a tab with the same path is already
// open, it is activated instead of duplicated. Either way the path moves to
// the front of the recent list.
func (tm *TabManager) OpenFile(node *tree.FileNode) (*Tab, error) {
	if !node.IsFile() {
		return nil, ErrNotAFile
	}
	tm.clock++
	tm.pushRecent(node.Path)

	if t := tm.Tab(node.Path); t != nil {
		t.opened = tm.clock
		tm.active = node.Path
		return t, nil
	}

	t := &Tab{File: node, opened: tm.clock}
	tm.tabs = append(tm.tabs, t)
	tm.active = node.Path
	return t, nil
}

// SetActive switches the active tab. Unknown paths are ignored.
func (tm *TabManager) SetActive(path string) bool {
	if tm.Tab(path) == nil {
		return false
	}
	tm.active = path
	return true
}

// Close removes the tab for path. If it was active, the most recently opened
// remaining tab becomes active, or none when no tabs remain.
func (tm *TabManager) Close(path string) bool {
	idx := -1
	for i, t := range tm.tabs {
		if t.File.Path == path {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	tm.tabs = append(tm.tabs[:idx], tm.tabs[idx+1:]...)
	if tm.active != path {
		return true
	}

	tm.active = ""
	var latest uint64
	for _, t := range tm.tabs {
		if t.opened >= latest {
			latest = t.opened
			tm.active = t.File.Path
		}
	}
	return true
}

// MarkDirty flags the tab for path as modified. No-op if the tab is absent.
func (tm *TabManager) MarkDirty(path string) {
	tm.SetDirty(path, true)
}

// ClearDirty clears the modified flag. No-op if the tab is absent.
func (tm *TabManager) ClearDirty(path string) {
	tm.SetDirty(path, false)
}

// SetDirty sets the modified flag. No-op if the tab is absent.
func (tm *TabManager) SetDirty(path string, dirty bool) {
	if t := tm.Tab(path); t != nil {
		t.Dirty = dirty
	}
}

func (tm *TabManager) pushRecent(path string) {
	out := make([]string, 0, tm.recentLimit)
	out = append(out, path)
	for _, p := range tm.recent {
		if p == path {
			continue
		}
		if len(out) == tm.recentLimit {
			break
		}
		out = append(out, p)
	}
	tm.recent = out
}
