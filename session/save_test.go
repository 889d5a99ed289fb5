package session

import (
	"context"
	"testing"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/visualdocs-collab/tree"
)

var raceFiles = []tree.FileRecord{{ID: "f1", Path: "main.go", Content: "package main\n"}}

// blockingHarness opens main.go with saves held until the test answers
// them.
func blockingHarness(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t, raceFiles)
	h.backend.calls = make(chan saveCall)
	_, err := h.s.OpenFile("main.go")
	require.NoError(t, err)
	return h
}

func nextCall(t *testing.T, h *harness) saveCall {
	t.Helper()
	select {
	case c := <-h.backend.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("save was not sent")
		return saveCall{}
	}
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("save did not complete")
		return nil
	}
}

func (h *harness) dirty(t *testing.T, path string) bool {
	t.Helper()
	d, err := h.s.Dirty(path)
	require.NoError(t, err)
	return d
}

func TestSaveRaceInOrder(t *testing.T) {
	h := blockingHarness(t)
	ctx := context.Background()

	require.NoError(t, h.s.SetContent("x"))
	doneA := h.s.SaveAsync(ctx)
	callA := nextCall(t, h)
	require.Equal(t, "x", callA.content)

	require.NoError(t, h.s.SetContent("y"))
	doneB := h.s.SaveAsync(ctx)
	callB := nextCall(t, h)
	require.Equal(t, "y", callB.content)

	callA.result <- nil
	require.NoError(t, wait(t, doneA))
	require.True(t, h.dirty(t, "main.go"), "y was typed after save A was sent")

	callB.result <- nil
	require.NoError(t, wait(t, doneB))
	require.False(t, h.dirty(t, "main.go"))
	require.Equal(t, "y", h.backend.savedContent("f1"))
}

func TestSaveRaceOutOfOrder(t *testing.T) {
	h := blockingHarness(t)
	ctx := context.Background()

	require.NoError(t, h.s.SetContent("x"))
	doneA := h.s.SaveAsync(ctx)
	callA := nextCall(t, h)

	require.NoError(t, h.s.SetContent("y"))
	doneB := h.s.SaveAsync(ctx)
	callB := nextCall(t, h)

	callB.result <- nil
	require.NoError(t, wait(t, doneB))
	require.False(t, h.dirty(t, "main.go"))

	// the older save finishing last must not make the buffer look dirty
	callA.result <- nil
	require.NoError(t, wait(t, doneA))
	require.False(t, h.dirty(t, "main.go"))
	active, _ := h.s.Active()
	require.False(t, active.Dirty)
	text, _ := h.s.Text("main.go")
	require.Equal(t, "y", text)
}

func TestSaveTargetsFileActiveAtCallTime(t *testing.T) {
	h := newHarness(t, []tree.FileRecord{
		{ID: "f1", Path: "a.go", Content: "package a\n"},
		{ID: "f2", Path: "b.go", Content: "package b\n"},
	})
	h.backend.calls = make(chan saveCall)
	_, err := h.s.OpenFile("a.go")
	require.NoError(t, err)
	require.NoError(t, h.s.SetContent("package a // edited\n"))

	done := h.s.SaveAsync(context.Background())
	call := nextCall(t, h)
	_, err = h.s.OpenFile("b.go")
	require.NoError(t, err)

	require.Equal(t, "f1", call.fileID)
	call.result <- nil
	require.NoError(t, wait(t, done))
	require.False(t, h.dirty(t, "a.go"))
}

func TestLateSaveAfterClose(t *testing.T) {
	h := blockingHarness(t)

	require.NoError(t, h.s.SetContent("x"))
	done := h.s.SaveAsync(context.Background())
	call := nextCall(t, h)
	require.NoError(t, h.s.CloseTab("main.go"))

	call.result <- nil
	require.NoError(t, wait(t, done))
	require.Empty(t, h.s.Tabs(), "a late save must not reopen the tab")
	require.Empty(t, h.notes.at(LevelError))

	// the tree keeps what the server now holds
	require.Equal(t, "x", tree.FindByPath(h.s.Tree(), "main.go").Content)
}

func TestLateSaveFailureAfterCloseIsSilent(t *testing.T) {
	h := blockingHarness(t)

	require.NoError(t, h.s.SetContent("x"))
	done := h.s.SaveAsync(context.Background())
	call := nextCall(t, h)
	require.NoError(t, h.s.CloseTab("main.go"))

	call.result <- errors.New("502 bad gateway")
	require.NoError(t, wait(t, done))
	require.Empty(t, h.s.Tabs())
	require.Empty(t, h.notes.at(LevelError))
}

func TestLateSaveAfterReopenDoesNotTouchNewBuffer(t *testing.T) {
	h := blockingHarness(t)

	require.NoError(t, h.s.SetContent("x"))
	done := h.s.SaveAsync(context.Background())
	call := nextCall(t, h)
	require.NoError(t, h.s.CloseTab("main.go"))
	_, err := h.s.OpenFile("main.go")
	require.NoError(t, err)
	require.NoError(t, h.s.SetContent("z"))

	call.result <- nil
	require.NoError(t, wait(t, done))
	require.True(t, h.dirty(t, "main.go"))
	text, _ := h.s.Text("main.go")
	require.Equal(t, "z", text)
}

func TestSaveFailureKeepsDirty(t *testing.T) {
	h := blockingHarness(t)

	require.NoError(t, h.s.SetContent("x"))
	done := h.s.SaveAsync(context.Background())
	call := nextCall(t, h)
	call.result <- errors.New("disk full")

	err := wait(t, done)
	require.Error(t, err)
	require.Contains(t, err.Error(), "disk full")
	require.True(t, h.dirty(t, "main.go"))
	require.Len(t, h.notes.at(LevelError), 1)
	require.Contains(t, h.notes.at(LevelError)[0], "main.go")
	_, ok := h.s.LastSaved("main.go")
	require.False(t, ok)
}

func TestSaveRequiresOpenFile(t *testing.T) {
	h := newHarness(t, raceFiles)
	require.ErrorIs(t, h.s.SaveFile(context.Background(), "main.go"), ErrTabNotOpen)
}
