package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/Laisky/errors/v2"

	"github.com/odvcencio/visualdocs-collab/editor"
	"github.com/odvcencio/visualdocs-collab/session"
)

// Call is one parsed command line.
type Call struct {
	Args []string
	// Rest is everything after the command name, spacing intact.
	Rest string
}

// Action is one interactive session command.
type Action struct {
	ID       string
	Usage    string
	Category string
	MinArgs  int
	Run      func(ctx context.Context, c Call) error
}

// SessionActions returns the interactive commands for s. Output goes to w.
func SessionActions(s *session.Session, w io.Writer) []Action {
	return []Action{
		{ID: "open", Usage: "open <path>", Category: "File", MinArgs: 1, Run: func(ctx context.Context, c Call) error {
			info, err := s.OpenFile(c.Args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "opened %s\n", info.Path)
			return nil
		}},
		{ID: "link", Usage: "link <file=PATH&line=N>", Category: "File", MinArgs: 1, Run: func(ctx context.Context, c Call) error {
			info, pos, err := s.OpenDeepLink(c.Rest)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "opened %s at line %d\n", info.Path, pos.Line)
			return nil
		}},
		{ID: "close", Usage: "close [path]", Category: "File", Run: func(ctx context.Context, c Call) error {
			path, err := pathOrActive(s, c)
			if err != nil {
				return err
			}
			return s.CloseTab(path)
		}},
		{ID: "save", Usage: "save", Category: "File", Run: func(ctx context.Context, c Call) error {
			return s.Save(ctx)
		}},
		{ID: "tabs", Usage: "tabs", Category: "File", Run: func(ctx context.Context, c Call) error {
			for _, t := range s.Tabs() {
				marker, dirty := " ", ""
				if t.Active {
					marker = "*"
				}
				if t.Dirty {
					dirty = " (modified)"
				}
				fmt.Fprintf(w, "%s %s%s\n", marker, t.Path, dirty)
			}
			return nil
		}},
		{ID: "recent", Usage: "recent", Category: "File", Run: func(ctx context.Context, c Call) error {
			for _, p := range s.Recent() {
				fmt.Fprintln(w, p)
			}
			return nil
		}},
		{ID: "tree", Usage: "tree", Category: "File", Run: func(ctx context.Context, c Call) error {
			printTree(w, s.Tree())
			return nil
		}},
		{ID: "show", Usage: "show", Category: "Edit", Run: func(ctx context.Context, c Call) error {
			text, err := activeText(s)
			if err != nil {
				return err
			}
			for i, line := range strings.Split(text, "\n") {
				fmt.Fprintf(w, "%4d  %s\n", i+1, line)
			}
			return nil
		}},
		{ID: "line", Usage: "line <n> <text>", Category: "Edit", MinArgs: 1, Run: func(ctx context.Context, c Call) error {
			n, err := strconv.Atoi(c.Args[0])
			if err != nil {
				return errors.Errorf("bad line number %q", c.Args[0])
			}
			text := strings.TrimPrefix(strings.TrimPrefix(c.Rest, c.Args[0]), " ")
			return replaceLine(s, n, text)
		}},
		{ID: "undo", Usage: "undo", Category: "Edit", Run: func(ctx context.Context, c Call) error { return s.Undo() }},
		{ID: "redo", Usage: "redo", Category: "Edit", Run: func(ctx context.Context, c Call) error { return s.Redo() }},
		{ID: "revert", Usage: "revert", Category: "Edit", Run: func(ctx context.Context, c Call) error { return s.Revert() }},
		{ID: "format", Usage: "format", Category: "Edit", Run: func(ctx context.Context, c Call) error { return s.Format() }},
		{ID: "find", Usage: "find <text>", Category: "Edit", MinArgs: 1, Run: func(ctx context.Context, c Call) error {
			ranges, err := s.Find(c.Rest)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%d match(es)\n", len(ranges))
			return nil
		}},
		{ID: "replace", Usage: "replace <text> <replacement>", Category: "Edit", MinArgs: 2, Run: func(ctx context.Context, c Call) error {
			n, err := s.Replace(c.Args[0], strings.Join(c.Args[1:], " "), false)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "replaced %d\n", n)
			return nil
		}},
		{ID: "replace-re", Usage: "replace-re <pattern> <replacement>", Category: "Edit", MinArgs: 2, Run: func(ctx context.Context, c Call) error {
			n, err := s.Replace(c.Args[0], strings.Join(c.Args[1:], " "), true)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "replaced %d\n", n)
			return nil
		}},
		{ID: "goto", Usage: "goto <line>", Category: "Navigate", MinArgs: 1, Run: func(ctx context.Context, c Call) error {
			line := 0
			if n, err := strconv.Atoi(strings.TrimSpace(c.Args[0])); err == nil {
				line = n
			}
			pos, err := s.GotoLine(line)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "line %d, column %d\n", pos.Line, pos.Column)
			return nil
		}},
		{ID: "symbols", Usage: "symbols", Category: "Navigate", Run: func(ctx context.Context, c Call) error {
			active, ok := s.Active()
			if !ok {
				return session.ErrNoActiveTab
			}
			printSymbols(w, s.Symbols(active.Path))
			return nil
		}},
		{ID: "symbol", Usage: "symbol <name>", Category: "Navigate", MinArgs: 1, Run: func(ctx context.Context, c Call) error {
			pos, err := s.GotoSymbol(c.Args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "line %d\n", pos.Line)
			return nil
		}},
		{ID: "comment", Usage: "comment <text>", Category: "Collaborate", MinArgs: 1, Run: func(ctx context.Context, c Call) error {
			return s.SendComment(c.Rest)
		}},
		{ID: "comments", Usage: "comments", Category: "Collaborate", Run: func(ctx context.Context, c Call) error {
			for _, cm := range s.Comments() {
				author := cm.AuthorName
				if author == "" {
					author = cm.AuthorID
				}
				fmt.Fprintf(w, "%s  %s: %s\n", cm.Timestamp, author, cm.Content)
			}
			return nil
		}},
		{ID: "who", Usage: "who", Category: "Collaborate", Run: func(ctx context.Context, c Call) error {
			for _, u := range s.Collaborators() {
				where := ""
				if u.Cursor != nil {
					where = fmt.Sprintf(" at %d:%d", u.Cursor.Line, u.Cursor.Column)
				}
				fmt.Fprintf(w, "%s %s%s\n", u.ID, u.Name, where)
			}
			return nil
		}},
		{ID: "status", Usage: "status", Category: "Collaborate", Run: func(ctx context.Context, c Call) error {
			fmt.Fprintln(w, s.Status())
			return nil
		}},
	}
}

func pathOrActive(s *session.Session, c Call) (string, error) {
	if len(c.Args) > 0 {
		return c.Args[0], nil
	}
	active, ok := s.Active()
	if !ok {
		return "", session.ErrNoActiveTab
	}
	return active.Path, nil
}

func activeText(s *session.Session) (string, error) {
	active, ok := s.Active()
	if !ok {
		return "", session.ErrNoActiveTab
	}
	return s.Text(active.Path)
}

// replaceLine swaps the text of 1-based line n of the active file.
func replaceLine(s *session.Session, n int, text string) error {
	current, err := activeText(s)
	if err != nil {
		return err
	}
	if n < 1 || n > editor.LineCount(current) {
		return errors.Errorf("line %d out of range", n)
	}
	offset := 0
	lines := strings.Split(current, "\n")
	for _, l := range lines[:n-1] {
		offset += len(l) + 1
	}
	return s.Edit(offset, lines[n-1], text)
}

// RunPalette reads commands from in, one per line, until EOF, "quit" or
// ctx is cancelled.
func RunPalette(ctx context.Context, in io.Reader, w io.Writer, actions []Action) error {
	byID := make(map[string]Action, len(actions))
	for _, a := range actions {
		byID[a.ID] = a
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 64*1024), 4<<20)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		var raw string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return errors.Wrap(err, "read commands")
					}
				default:
				}
				return nil
			}
			raw = l
		}

		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimLeft(rest, " ")

		switch name {
		case "quit", "exit":
			return nil
		case "help":
			printHelp(w, actions)
			continue
		}

		a, ok := byID[name]
		if !ok {
			fmt.Fprintf(w, "unknown command %q, type help\n", name)
			continue
		}
		c := Call{Args: strings.Fields(rest), Rest: rest}
		if len(c.Args) < a.MinArgs {
			fmt.Fprintf(w, "usage: %s\n", a.Usage)
			continue
		}
		if err := a.Run(ctx, c); err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
		}
	}
}

func printHelp(w io.Writer, actions []Action) {
	byCategory := make(map[string][]Action)
	var categories []string
	for _, a := range actions {
		if _, ok := byCategory[a.Category]; !ok {
			categories = append(categories, a.Category)
		}
		byCategory[a.Category] = append(byCategory[a.Category], a)
	}
	sort.Strings(categories)
	for _, cat := range categories {
		fmt.Fprintf(w, "%s:\n", cat)
		for _, a := range byCategory[cat] {
			fmt.Fprintf(w, "  %s\n", a.Usage)
		}
	}
	fmt.Fprintln(w, "  quit")
}

// lockedWriter serializes writes from the command loop and from notices
// delivered on realtime goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
