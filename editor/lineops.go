package editor

import (
	"strings"
	"unicode/utf8"
)

// LineCount returns the number of lines in the text.
// An empty string is considered to have 1 line.
func LineCount(text string) int {
	if text == "" {
		return 1
	}
	return strings.Count(text, "\n") + 1
}

// LineLength returns the rune length of the 0-based line, or 0 if the line
// is out of range.
func LineLength(text string, line int) int {
	if line < 0 {
		return 0
	}
	for i := 0; i < line; i++ {
		idx := strings.IndexByte(text, '\n')
		if idx < 0 {
			return 0
		}
		text = text[idx+1:]
	}
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	return utf8.RuneCountInString(strings.TrimSuffix(text, "\r"))
}

// FormatText trims trailing spaces and tabs from each line and normalizes
// the end of non-empty text to a single newline.
func FormatText(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\r")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n") + "\n"
}
