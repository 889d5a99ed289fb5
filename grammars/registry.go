package grammars

import (
	"path/filepath"
	"regexp"
	"strings"
)

// PlainText is the language id used when nothing else matches.
const PlainText = "plaintext"

// SymbolPattern matches one declaration shape on a single line. The first
// capture group must be the declared name.
type SymbolPattern struct {
	Kind string
	Expr *regexp.Regexp
}

// LangEntry holds a registered language with its file extensions and the
// line patterns used by the symbol index.
type LangEntry struct {
	Name       string
	Extensions []string // e.g. [".go"]
	Filenames  []string // exact base names, e.g. ["Makefile"]
	Shebangs   []string // e.g. ["#!/usr/bin/env python"]
	Symbols    []SymbolPattern
}

var registry []LangEntry

// Register adds a language to the registry.
func Register(entry LangEntry) {
	registry = append(registry, entry)
}

// DetectLanguage returns the LangEntry for a filename, or nil if unknown.
// Exact base names are checked before extensions.
func DetectLanguage(filename string) *LangEntry {
	base := filepath.Base(filename)
	for i := range registry {
		for _, name := range registry[i].Filenames {
			if base == name {
				return &registry[i]
			}
		}
	}
	ext := strings.ToLower(filepath.Ext(base))
	if ext == "" {
		return nil
	}
	for i := range registry {
		for _, e := range registry[i].Extensions {
			if ext == e {
				return &registry[i]
			}
		}
	}
	return nil
}

// DetectLanguageByShebang checks the first line of content for shebang matches.
func DetectLanguageByShebang(firstLine string) *LangEntry {
	for i := range registry {
		for _, shebang := range registry[i].Shebangs {
			if strings.HasPrefix(firstLine, shebang) {
				return &registry[i]
			}
		}
	}
	return nil
}

// Lookup returns the entry registered under name, or nil.
func Lookup(name string) *LangEntry {
	name = strings.ToLower(name)
	for i := range registry {
		if registry[i].Name == name {
			return &registry[i]
		}
	}
	return nil
}

// LanguageFor returns the language id for a path, falling back to
// PlainText.
func LanguageFor(path string) string {
	if entry := DetectLanguage(path); entry != nil {
		return entry.Name
	}
	return PlainText
}

// AllLanguages returns all registered languages.
func AllLanguages() []LangEntry {
	return registry
}
