package grammars

import "regexp"

// Symbol kinds understood by the symbol index.
const (
	KindFunction  = "function"
	KindClass     = "class"
	KindVariable  = "variable"
	KindInterface = "interface"
	KindMethod    = "method"
)

func pattern(kind, expr string) SymbolPattern {
	return SymbolPattern{Kind: kind, Expr: regexp.MustCompile(expr)}
}

// Generic patterns are used for languages without their own table.
var Generic = []SymbolPattern{
	pattern(KindInterface, `\binterface\s+([A-Za-z_$][\w$]*)`),
	pattern(KindClass, `\bclass\s+([A-Za-z_$][\w$]*)`),
	pattern(KindFunction, `\bfunction\s+([A-Za-z_$][\w$]*)`),
	pattern(KindFunction, `^\s*(?:def|fn|func|sub)\s+([A-Za-z_]\w*)`),
}

var goSymbols = []SymbolPattern{
	pattern(KindMethod, `^func\s+\([^)]*\)\s*([A-Za-z_]\w*)\s*[\[(]`),
	pattern(KindFunction, `^func\s+([A-Za-z_]\w*)\s*[\[(]`),
	pattern(KindInterface, `^type\s+([A-Za-z_]\w*)(?:\[[^\]]*\])?\s+interface\b`),
	pattern(KindClass, `^type\s+([A-Za-z_]\w*)(?:\[[^\]]*\])?\s+struct\b`),
	pattern(KindVariable, `^(?:var|const)\s+([A-Za-z_]\w*)\b`),
}

// Shared by JavaScript and TypeScript. Order matters: the first pattern
// that matches a line wins.
var scriptSymbols = []SymbolPattern{
	pattern(KindInterface, `^\s*(?:export\s+)?(?:declare\s+)?interface\s+([A-Za-z_$][\w$]*)`),
	pattern(KindClass, `^\s*(?:export\s+)?(?:default\s+)?(?:declare\s+)?(?:abstract\s+)?class\s+([A-Za-z_$][\w$]*)`),
	pattern(KindFunction, `^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)`),
	pattern(KindFunction, `^\s*(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*(?::[^=]+)?=\s*(?:async\s+)?(?:function\b|\([^)]*\)\s*(?::[^=]+)?=>|[A-Za-z_$][\w$]*\s*=>)`),
	pattern(KindVariable, `^(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)`),
	pattern(KindMethod, `^\s+(?:(?:public|private|protected|static|async|readonly|override|abstract|get|set)\s+)*([A-Za-z_$][\w$]*)\s*(?:<[^>]*>)?\s*\([^)]*\)\s*(?::\s*[^{=]+)?\{\s*$`),
}

var pythonSymbols = []SymbolPattern{
	pattern(KindClass, `^\s*class\s+([A-Za-z_]\w*)`),
	pattern(KindFunction, `^(?:async\s+)?def\s+([A-Za-z_]\w*)`),
	pattern(KindMethod, `^\s+(?:async\s+)?def\s+([A-Za-z_]\w*)`),
	pattern(KindVariable, `^([A-Z][A-Z0-9_]*)\s*(?::[^=]+)?=[^=]`),
}

// Java, C# and Kotlin-ish brace languages.
var braceClassSymbols = []SymbolPattern{
	pattern(KindInterface, `^\s*(?:(?:public|private|protected|internal|static|abstract|sealed|partial)\s+)*interface\s+([A-Za-z_]\w*)`),
	pattern(KindClass, `^\s*(?:(?:public|private|protected|internal|static|abstract|final|sealed|partial)\s+)*(?:class|record|enum|struct)\s+([A-Za-z_]\w*)`),
	pattern(KindMethod, `^\s+(?:(?:public|private|protected|internal|static|final|abstract|synchronized|override|virtual|async)\s+)+[\w<>\[\],.?\s]*?([A-Za-z_]\w*)\s*\([^)]*\)\s*(?:throws\s+[\w.,\s]+)?\{?\s*$`),
}

var cSymbols = []SymbolPattern{
	pattern(KindClass, `^\s*(?:typedef\s+)?(?:struct|class|union)\s+([A-Za-z_]\w*)\s*\{?\s*$`),
	pattern(KindFunction, `^[A-Za-z_][\w\s\*&:<>,]*?[\s\*&]([A-Za-z_][\w:~]*)\s*\([^;]*\)\s*(?:const\s*)?\{?\s*$`),
}

var rustSymbols = []SymbolPattern{
	pattern(KindInterface, `^\s*(?:pub(?:\([^)]*\))?\s+)?trait\s+([A-Za-z_]\w*)`),
	pattern(KindClass, `^\s*(?:pub(?:\([^)]*\))?\s+)?(?:struct|enum)\s+([A-Za-z_]\w*)`),
	pattern(KindFunction, `^(?:pub(?:\([^)]*\))?\s+)?(?:async\s+)?(?:unsafe\s+)?(?:const\s+)?fn\s+([A-Za-z_]\w*)`),
	pattern(KindMethod, `^\s+(?:pub(?:\([^)]*\))?\s+)?(?:async\s+)?(?:unsafe\s+)?(?:const\s+)?fn\s+([A-Za-z_]\w*)`),
	pattern(KindVariable, `^(?:pub(?:\([^)]*\))?\s+)?(?:const|static)\s+(?:mut\s+)?([A-Za-z_]\w*)`),
}

var rubySymbols = []SymbolPattern{
	pattern(KindClass, `^\s*(?:class|module)\s+([A-Z]\w*)`),
	pattern(KindFunction, `^def\s+(?:self\.)?([A-Za-z_]\w*[?!=]?)`),
	pattern(KindMethod, `^\s+def\s+(?:self\.)?([A-Za-z_]\w*[?!=]?)`),
}

var phpSymbols = []SymbolPattern{
	pattern(KindInterface, `^\s*(?:interface|trait)\s+([A-Za-z_]\w*)`),
	pattern(KindClass, `^\s*(?:(?:abstract|final)\s+)*class\s+([A-Za-z_]\w*)`),
	pattern(KindFunction, `^function\s+&?([A-Za-z_]\w*)`),
	pattern(KindMethod, `^\s+(?:(?:public|private|protected|static|abstract|final)\s+)*function\s+&?([A-Za-z_]\w*)`),
}

var luaSymbols = []SymbolPattern{
	pattern(KindMethod, `^\s*function\s+[\w.]+:([A-Za-z_]\w*)`),
	pattern(KindFunction, `^\s*(?:local\s+)?function\s+([\w.]+)`),
	pattern(KindVariable, `^local\s+([A-Za-z_]\w*)\s*=`),
}

var shellSymbols = []SymbolPattern{
	pattern(KindFunction, `^\s*function\s+([A-Za-z_][\w-]*)`),
	pattern(KindFunction, `^\s*([A-Za-z_][\w-]*)\s*\(\)\s*\{?`),
}

func init() {
	Register(LangEntry{Name: "go", Extensions: []string{".go"}, Symbols: goSymbols})
	Register(LangEntry{Name: "typescript", Extensions: []string{".ts", ".tsx", ".mts", ".cts"}, Symbols: scriptSymbols})
	Register(LangEntry{
		Name:       "javascript",
		Extensions: []string{".js", ".jsx", ".mjs", ".cjs"},
		Shebangs:   []string{"#!/usr/bin/env node"},
		Symbols:    scriptSymbols,
	})
	Register(LangEntry{
		Name:       "python",
		Extensions: []string{".py", ".pyi"},
		Shebangs:   []string{"#!/usr/bin/env python", "#!/usr/bin/python"},
		Symbols:    pythonSymbols,
	})
	Register(LangEntry{Name: "java", Extensions: []string{".java"}, Symbols: braceClassSymbols})
	Register(LangEntry{Name: "csharp", Extensions: []string{".cs"}, Symbols: braceClassSymbols})
	Register(LangEntry{Name: "kotlin", Extensions: []string{".kt", ".kts"}, Symbols: braceClassSymbols})
	Register(LangEntry{Name: "c", Extensions: []string{".c", ".h"}, Symbols: cSymbols})
	Register(LangEntry{Name: "cpp", Extensions: []string{".cc", ".cpp", ".cxx", ".hpp", ".hh"}, Symbols: cSymbols})
	Register(LangEntry{Name: "rust", Extensions: []string{".rs"}, Symbols: rustSymbols})
	Register(LangEntry{
		Name:       "ruby",
		Extensions: []string{".rb"},
		Filenames:  []string{"Gemfile", "Rakefile"},
		Shebangs:   []string{"#!/usr/bin/env ruby"},
		Symbols:    rubySymbols,
	})
	Register(LangEntry{Name: "php", Extensions: []string{".php"}, Symbols: phpSymbols})
	Register(LangEntry{
		Name:       "lua",
		Extensions: []string{".lua"},
		Shebangs:   []string{"#!/usr/bin/env lua"},
		Symbols:    luaSymbols,
	})
	Register(LangEntry{
		Name:       "shell",
		Extensions: []string{".sh", ".bash", ".zsh"},
		Shebangs:   []string{"#!/bin/sh", "#!/bin/bash", "#!/usr/bin/env bash"},
		Symbols:    shellSymbols,
	})

	// Languages without a symbol table still drive the editor mode.
	Register(LangEntry{Name: "json", Extensions: []string{".json"}})
	Register(LangEntry{Name: "yaml", Extensions: []string{".yml", ".yaml"}})
	Register(LangEntry{Name: "markdown", Extensions: []string{".md", ".markdown"}})
	Register(LangEntry{Name: "html", Extensions: []string{".html", ".htm"}})
	Register(LangEntry{Name: "css", Extensions: []string{".css", ".scss", ".less"}})
	Register(LangEntry{Name: "sql", Extensions: []string{".sql"}})
	Register(LangEntry{Name: "dockerfile", Filenames: []string{"Dockerfile"}})
	Register(LangEntry{Name: "makefile", Filenames: []string{"Makefile", "GNUmakefile"}})
}
