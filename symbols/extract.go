// Package symbols lists the declarations in a file for in-file navigation.
// It is a line-oriented heuristic, not a parser: every line is matched
// against the language's declaration patterns and the first hit wins.
package symbols

import (
	"strings"

	"github.com/odvcencio/visualdocs-collab/grammars"
)

// Symbol is one declaration found in a file.
type Symbol struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	Line int    `json:"line"` // 1-based
}

// Control-flow words that look like calls followed by a block in brace
// languages, e.g. "  if (ok) {".
var reserved = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "catch": true,
	"return": true, "else": true, "do": true, "try": true, "with": true,
	"function": true, "new": true, "typeof": true, "await": true,
	"sizeof": true, "elif": true, "foreach": true, "using": true,
	"lock": true, "synchronized": true, "super": true, "this": true,
}

// PatternsFor returns the patterns used for language. Unknown languages and
// registered languages without a table get the generic patterns.
func PatternsFor(language string) []grammars.SymbolPattern {
	if entry := grammars.Lookup(language); entry != nil && len(entry.Symbols) > 0 {
		return entry.Symbols
	}
	return grammars.Generic
}

// Extract scans text and returns its symbols ordered by line. When the
// language is empty or plain text, a shebang on the first line may select
// one. Lines that match nothing are skipped; Extract never fails.
func Extract(text, language string) []Symbol {
	if text == "" {
		return nil
	}
	if language == "" || language == grammars.PlainText {
		first, _, _ := strings.Cut(text, "\n")
		if entry := grammars.DetectLanguageByShebang(first); entry != nil {
			language = entry.Name
		}
	}
	patterns := PatternsFor(language)

	var out []Symbol
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" || isComment(line) {
			continue
		}
		if sym, ok := match(line, patterns); ok {
			sym.Line = i + 1
			out = append(out, sym)
		}
	}
	return out
}

func match(line string, patterns []grammars.SymbolPattern) (Symbol, bool) {
	for _, p := range patterns {
		m := p.Expr.FindStringSubmatch(line)
		if len(m) < 2 || m[1] == "" {
			continue
		}
		if reserved[m[1]] {
			continue
		}
		return Symbol{Name: m[1], Kind: p.Kind}, true
	}
	return Symbol{}, false
}

func isComment(line string) bool {
	t := strings.TrimLeft(line, " \t")
	for _, prefix := range []string{"//", "/*", "* ", "--", "#"} {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return t == "*"
}

// Find returns the first symbol with the given name, if any.
func Find(syms []Symbol, name string) (Symbol, bool) {
	for _, s := range syms {
		if s.Name == name {
			return s, true
		}
	}
	return Symbol{}, false
}
