package editor

import "testing"

func TestLineCountEmpty(t *testing.T) {
	if got := LineCount(""); got != 1 {
		t.Errorf("LineCount(\"\") = %d, want 1", got)
	}
}

func TestLineCountSingleLine(t *testing.T) {
	if got := LineCount("hello"); got != 1 {
		t.Errorf("LineCount(\"hello\") = %d, want 1", got)
	}
}

func TestLineCountMultipleLines(t *testing.T) {
	if got := LineCount("a\nb\nc"); got != 3 {
		t.Errorf("LineCount(\"a\\nb\\nc\") = %d, want 3", got)
	}
}

func TestLineCountTrailingNewline(t *testing.T) {
	if got := LineCount("a\nb\n"); got != 3 {
		t.Errorf("LineCount(\"a\\nb\\n\") = %d, want 3", got)
	}
}

func TestLineLength(t *testing.T) {
	text := "abc\nhéllo\r\n\nx"
	tests := []struct {
		line int
		want int
	}{
		{0, 3},
		{1, 5},
		{2, 0},
		{3, 1},
		{4, 0},
		{-1, 0},
	}
	for _, tt := range tests {
		if got := LineLength(text, tt.line); got != tt.want {
			t.Errorf("LineLength(%d) = %d, want %d", tt.line, got, tt.want)
		}
	}
}

func TestFormatText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", "  \n\t\n", ""},
		{"adds final newline", "a", "a\n"},
		{"collapses trailing newlines", "a\n\n\n", "a\n"},
		{"trims trailing spaces", "a  \nb\t\n", "a\nb\n"},
		{"keeps leading indent", "\tfoo  \n  bar", "\tfoo\n  bar\n"},
		{"strips carriage returns", "a\r\nb\r\n", "a\nb\n"},
	}
	for _, tt := range tests {
		if got := FormatText(tt.in); got != tt.want {
			t.Errorf("%s: FormatText(%q) = %q, want %q", tt.name, tt.in, got, tt.want)
		}
	}
}
