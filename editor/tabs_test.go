package editor

import (
	"fmt"
	"testing"

	"github.com/odvcencio/visualdocs-collab/tree"
)

func fileNode(path string) *tree.FileNode {
	return &tree.FileNode{ID: "id-" + path, Name: path, Path: path, Kind: tree.KindFile}
}

func TestNewTabManagerEmpty(t *testing.T) {
	tm := NewTabManager(0)
	if tm == nil {
		t.Fatal("NewTabManager returned nil")
	}
	if tm.Count() != 0 {
		t.Errorf("Count = %d, want 0", tm.Count())
	}
	if tm.Active() != nil {
		t.Error("Active should be nil when empty")
	}
	if tabs := tm.Tabs(); len(tabs) != 0 {
		t.Errorf("Tabs length = %d, want 0", len(tabs))
	}
	if tm.recentLimit != DefaultRecentLimit {
		t.Errorf("recentLimit = %d, want %d", tm.recentLimit, DefaultRecentLimit)
	}
}

func TestTabOpenFile(t *testing.T) {
	tm := NewTabManager(0)
	node := fileNode("src/a.ts")

	tab, err := tm.OpenFile(node)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if tab.File != node {
		t.Error("tab should share the tree node")
	}
	if tab.Dirty {
		t.Error("new tab should not be dirty")
	}
	if tm.Count() != 1 {
		t.Errorf("Count = %d, want 1", tm.Count())
	}
	if tm.Active() != tab {
		t.Error("opened tab should be active")
	}
}

func TestOpenFileRejectsFolders(t *testing.T) {
	tm := NewTabManager(0)
	folder := &tree.FileNode{ID: "folder:src", Name: "src", Path: "src", Kind: tree.KindFolder}

	if _, err := tm.OpenFile(folder); err != ErrNotAFile {
		t.Errorf("OpenFile(folder) err = %v, want ErrNotAFile", err)
	}
	if _, err := tm.OpenFile(nil); err != ErrNotAFile {
		t.Errorf("OpenFile(nil) err = %v, want ErrNotAFile", err)
	}
	if tm.Count() != 0 {
		t.Errorf("Count = %d after failed open, want 0", tm.Count())
	}
}

func TestOpenFileDeduplicate(t *testing.T) {
	tm := NewTabManager(0)
	a := fileNode("a.ts")
	b := fileNode("b.ts")

	first, _ := tm.OpenFile(a)
	tm.OpenFile(b)
	if tm.Active().Path() != "b.ts" {
		t.Fatalf("Active = %q, want b.ts", tm.Active().Path())
	}

	// Re-open the same path: should not duplicate.
	second, err := tm.OpenFile(a)
	if err != nil {
		t.Fatalf("second OpenFile: %v", err)
	}
	if second != first {
		t.Error("second open should return the existing tab")
	}
	if tm.Count() != 2 {
		t.Errorf("Count = %d, want 2 (no duplicate)", tm.Count())
	}
	if tm.Active() != first {
		t.Errorf("Active = %q, want a.ts after re-open", tm.Active().Path())
	}
}

func TestOpenFileKeepsDirtyOnReactivate(t *testing.T) {
	tm := NewTabManager(0)
	a := fileNode("a.ts")
	tm.OpenFile(a)
	tm.MarkDirty("a.ts")

	tab, _ := tm.OpenFile(a)
	if !tab.Dirty {
		t.Error("activating an open tab should not reset its dirty flag")
	}
}

func TestSetActive(t *testing.T) {
	tm := NewTabManager(0)
	tm.OpenFile(fileNode("a"))
	tm.OpenFile(fileNode("b"))

	if !tm.SetActive("a") {
		t.Fatal("SetActive(a) should succeed")
	}
	if tm.Active().Path() != "a" {
		t.Errorf("Active = %q, want a", tm.Active().Path())
	}
	if tm.SetActive("missing") {
		t.Error("SetActive(missing) should fail")
	}
	if tm.Active().Path() != "a" {
		t.Errorf("Active changed to %q after failed SetActive", tm.Active().Path())
	}
}

func TestCloseActivatesMostRecentlyOpened(t *testing.T) {
	tm := NewTabManager(0)
	tm.OpenFile(fileNode("a"))
	tm.OpenFile(fileNode("b"))
	tm.OpenFile(fileNode("c"))
	tm.OpenFile(fileNode("a")) // a is now the most recently opened

	tm.SetActive("c")
	if !tm.Close("c") {
		t.Fatal("Close(c) should succeed")
	}
	if got := tm.Active().Path(); got != "a" {
		t.Errorf("Active after close = %q, want a", got)
	}

	tm.Close("a")
	if got := tm.Active().Path(); got != "b" {
		t.Errorf("Active after second close = %q, want b", got)
	}

	tm.Close("b")
	if tm.Active() != nil {
		t.Error("Active should be nil when all tabs are closed")
	}
	if tm.Count() != 0 {
		t.Errorf("Count = %d, want 0", tm.Count())
	}
}

func TestCloseInactiveKeepsActive(t *testing.T) {
	tm := NewTabManager(0)
	tm.OpenFile(fileNode("a"))
	tm.OpenFile(fileNode("b"))

	tm.Close("a")
	if got := tm.Active().Path(); got != "b" {
		t.Errorf("Active = %q, want b", got)
	}
	if tm.Close("a") {
		t.Error("closing an already closed tab should return false")
	}
}

func TestDirtyFlagsIgnoreMissingTabs(t *testing.T) {
	tm := NewTabManager(0)
	tm.OpenFile(fileNode("a"))

	tm.MarkDirty("a")
	if !tm.Tab("a").Dirty {
		t.Error("MarkDirty should set the flag")
	}
	tm.ClearDirty("a")
	if tm.Tab("a").Dirty {
		t.Error("ClearDirty should clear the flag")
	}

	// No panic, no new tab.
	tm.MarkDirty("gone")
	tm.ClearDirty("gone")
	if tm.Count() != 1 {
		t.Errorf("Count = %d, want 1", tm.Count())
	}
}

func TestRecentIsBoundedAndDeduplicated(t *testing.T) {
	tm := NewTabManager(3)
	for _, p := range []string{"a", "b", "c", "d", "b"} {
		tm.OpenFile(fileNode(p))
	}
	got := tm.Recent()
	want := []string{"b", "d", "c"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Recent = %v, want %v", got, want)
	}
}
