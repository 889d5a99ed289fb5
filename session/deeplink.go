package session

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/Laisky/errors/v2"

	"github.com/odvcencio/visualdocs-collab/editor"
)

// DeepLink is a request to open a file at a line.
type DeepLink struct {
	Path string
	// Line is 1-based; 0 means no line was requested.
	Line int
}

// ParseDeepLink reads file= and line= from a query string. The input may be
// a bare query, a query with a leading "?", or a full URL. An unparsable
// line is treated as absent.
func ParseDeepLink(raw string) (DeepLink, error) {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, "?"); i >= 0 {
		raw = raw[i+1:]
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return DeepLink{}, errors.Wrap(err, "parse deep link")
	}

	link := DeepLink{Path: strings.TrimSpace(values.Get("file"))}
	if link.Path == "" {
		return DeepLink{}, errors.New("deep link has no file parameter")
	}
	if trimmed := strings.TrimSpace(values.Get("line")); trimmed != "" {
		if n, err := strconv.Atoi(trimmed); err == nil && n > 0 {
			link.Line = n
		}
	}
	return link, nil
}

// OpenDeepLink opens the linked file and moves the cursor to the linked
// line, clamped to the file's length.
func (s *Session) OpenDeepLink(raw string) (TabInfo, editor.Position, error) {
	link, err := ParseDeepLink(raw)
	if err != nil {
		return TabInfo{}, editor.Position{}, err
	}
	info, err := s.OpenFile(link.Path)
	if err != nil {
		return TabInfo{}, editor.Position{}, err
	}
	if link.Line == 0 {
		pos, err := s.Cursor(info.Path)
		return info, pos, err
	}
	pos, err := s.GotoLine(link.Line)
	return info, pos, err
}
