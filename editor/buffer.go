package editor

import (
	"regexp"
	"strings"

	"github.com/Laisky/errors/v2"
)

// ErrEditOutOfRange is returned by ApplyEdit when the edit does not match
// the buffer text.
var ErrEditOutOfRange = errors.New("edit out of range")

// Range represents a byte range [Start, End) within buffer text.
type Range struct {
	Start, End int
}

// Position is a 1-based line/column cursor location.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// editOp records a single edit for undo/redo support.
type editOp struct {
	offset  int
	oldText string
	newText string
}

// Buffer holds the editable text of one open project file together with the
// snapshot it was last loaded or saved with.
type Buffer struct {
	fileID   string
	path     string
	language string
	text     string // current text content
	original string // text at last load/save (for dirty comparison and revert)
	cursor   Position

	undoStack []editOp
	redoStack []editOp
}

// NewBuffer seeds a buffer for a file. The content becomes the original
// snapshot.
func NewBuffer(fileID, path, content, language string) *Buffer {
	return &Buffer{
		fileID:   fileID,
		path:     path,
		language: language,
		text:     content,
		original: content,
		cursor:   Position{Line: 1, Column: 1},
	}
}

// FileID returns the server-assigned file id.
func (b *Buffer) FileID() string {
	return b.fileID
}

// Path returns the project-relative path of the file.
func (b *Buffer) Path() string {
	return b.path
}

// Language returns the editor language id.
func (b *Buffer) Language() string {
	return b.language
}

// Title returns the last path segment.
func (b *Buffer) Title() string {
	if i := strings.LastIndex(b.path, "/"); i >= 0 {
		return b.path[i+1:]
	}
	return b.path
}

// Text returns the current text content of the buffer.
func (b *Buffer) Text() string {
	return b.text
}

// Original returns the last loaded or saved snapshot.
func (b *Buffer) Original() string {
	return b.original
}

// Dirty reports whether the text differs from the original snapshot.
func (b *Buffer) Dirty() bool {
	return b.text != b.original
}

// SetText replaces the whole text as a single undoable edit. It reports
// whether the text changed.
func (b *Buffer) SetText(text string) bool {
	if text == b.text {
		return false
	}
	b.ApplyEdit(0, b.text, text)
	return true
}

// ApplyRemote replaces the whole text with a peer's version. Local undo and
// redo history is dropped since its offsets no longer describe the text. It
// reports whether the text changed.
func (b *Buffer) ApplyRemote(text string) bool {
	if text == b.text {
		return false
	}
	b.text = text
	b.undoStack = nil
	b.redoStack = nil
	b.clampCursor()
	return true
}

// Revert restores the original snapshot and drops the undo history.
func (b *Buffer) Revert() {
	b.text = b.original
	b.undoStack = nil
	b.redoStack = nil
	b.clampCursor()
}

// MarkSaved records content as the new original snapshot. The live text is
// left alone, so edits made while a save was in flight stay dirty.
func (b *Buffer) MarkSaved(content string) {
	b.original = content
}

// ApplyEdit records the edit on the undo stack, clears the redo stack,
// and applies the edit to the buffer text. The edit replaces the text at
// [offset, offset+len(oldText)) with newText.
func (b *Buffer) ApplyEdit(offset int, oldText, newText string) error {
	end := offset + len(oldText)
	if offset < 0 || end > len(b.text) || b.text[offset:end] != oldText {
		return ErrEditOutOfRange
	}
	b.undoStack = append(b.undoStack, editOp{
		offset:  offset,
		oldText: oldText,
		newText: newText,
	})
	b.redoStack = nil
	b.text = b.text[:offset] + newText + b.text[end:]
	b.clampCursor()
	return nil
}

// Undo reverses the last edit. Returns true if an edit was undone, false if
// the undo stack is empty.
func (b *Buffer) Undo() bool {
	if len(b.undoStack) == 0 {
		return false
	}
	op := b.undoStack[len(b.undoStack)-1]
	b.undoStack = b.undoStack[:len(b.undoStack)-1]
	b.text = b.text[:op.offset] + op.oldText + b.text[op.offset+len(op.newText):]
	b.redoStack = append(b.redoStack, op)
	b.clampCursor()
	return true
}

// Redo reapplies the last undone edit. Returns true if an edit was redone,
// false if the redo stack is empty.
func (b *Buffer) Redo() bool {
	if len(b.redoStack) == 0 {
		return false
	}
	op := b.redoStack[len(b.redoStack)-1]
	b.redoStack = b.redoStack[:len(b.redoStack)-1]
	b.text = b.text[:op.offset] + op.newText + b.text[op.offset+len(op.oldText):]
	b.undoStack = append(b.undoStack, op)
	b.clampCursor()
	return true
}

// Find returns all byte ranges where query appears as a substring in the
// buffer text. Returns nil if query is empty or not found.
func (b *Buffer) Find(query string) []Range {
	if query == "" {
		return nil
	}
	var results []Range
	start := 0
	for {
		idx := strings.Index(b.text[start:], query)
		if idx < 0 {
			break
		}
		absIdx := start + idx
		results = append(results, Range{Start: absIdx, End: absIdx + len(query)})
		start = absIdx + len(query)
	}
	return results
}

// ReplaceAll replaces every literal occurrence of query with replacement as
// one undoable edit. Returns the number of replacements made.
func (b *Buffer) ReplaceAll(query, replacement string) int {
	n := len(b.Find(query))
	if n == 0 {
		return 0
	}
	b.SetText(strings.ReplaceAll(b.text, query, replacement))
	return n
}

// ReplacePattern replaces every match of the regular expression expr with
// replacement (which may reference groups as $1) as one undoable edit.
func (b *Buffer) ReplacePattern(expr, replacement string) (int, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return 0, errors.Wrapf(err, "compile pattern %q", expr)
	}
	n := len(re.FindAllStringIndex(b.text, -1))
	if n == 0 {
		return 0, nil
	}
	b.SetText(re.ReplaceAllString(b.text, replacement))
	return n, nil
}

// Format trims trailing whitespace from every line and leaves exactly one
// trailing newline on non-empty text. Reports whether the text changed.
func (b *Buffer) Format() bool {
	return b.SetText(FormatText(b.text))
}

// Cursor returns the current cursor position.
func (b *Buffer) Cursor() Position {
	return b.cursor
}

// SetCursor moves the cursor, clamped to the text.
func (b *Buffer) SetCursor(pos Position) Position {
	b.cursor = pos
	b.clampCursor()
	return b.cursor
}

// GotoLine moves the cursor to the start of a 1-based line, clamped to the
// line count.
func (b *Buffer) GotoLine(line int) Position {
	return b.SetCursor(Position{Line: line, Column: 1})
}

func (b *Buffer) clampCursor() {
	lines := LineCount(b.text)
	if b.cursor.Line < 1 {
		b.cursor.Line = 1
	}
	if b.cursor.Line > lines {
		b.cursor.Line = lines
	}
	maxCol := LineLength(b.text, b.cursor.Line-1) + 1
	if b.cursor.Column < 1 {
		b.cursor.Column = 1
	}
	if b.cursor.Column > maxCol {
		b.cursor.Column = maxCol
	}
}
