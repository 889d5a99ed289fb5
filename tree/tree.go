// Package tree builds the project file tree from the flat file list served
// by the project API and resolves paths inside it.
package tree

import (
	"sort"
	"strings"

	"github.com/odvcencio/visualdocs-collab/grammars"
)

// Kind distinguishes file nodes from folder nodes.
type Kind string

const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

// FileRecord is one entry of the flat project file list.
type FileRecord struct {
	ID       string `json:"id"`
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language,omitempty"`
}

// FileNode is a file or folder in the project tree. Only files carry
// Content and Language; only folders carry Children.
type FileNode struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	Kind     Kind        `json:"kind"`
	Content  string      `json:"content,omitempty"`
	Language string      `json:"language,omitempty"`
	Children []*FileNode `json:"children,omitempty"`

	// Expanded is UI state and is never persisted.
	Expanded bool `json:"-"`
}

// IsFile reports whether the node is a file.
func (n *FileNode) IsFile() bool {
	return n != nil && n.Kind == KindFile
}

// IsFolder reports whether the node is a folder.
func (n *FileNode) IsFolder() bool {
	return n != nil && n.Kind == KindFolder
}

// Segments splits a slash-delimited path into its non-empty segments.
func Segments(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" && p != "." {
			out = append(out, p)
		}
	}
	return out
}

// Clean normalizes a path to its segments joined by "/".
func Clean(path string) string {
	return strings.Join(Segments(path), "/")
}

// FolderID returns the path-derived identifier used for synthesized folders.
func FolderID(path string) string {
	return "folder:" + Clean(path)
}

// Build converts a flat record list into a forest of nodes. Folders are
// synthesized for every path prefix and reused when already present at that
// level. A record whose path repeats an earlier one replaces it in place.
// A path that is both a file and the prefix of another file stays a folder.
// Node paths are stored in clean form.
func Build(records []FileRecord) []*FileNode {
	var roots []*FileNode
	// index maps clean path -> node so folder reuse is keyed by
	// (parent, segment) without scanning children.
	index := make(map[string]*FileNode)

	for _, rec := range records {
		segs := Segments(rec.Path)
		if len(segs) == 0 {
			continue
		}

		siblings := &roots
		prefix := ""
		for _, seg := range segs[:len(segs)-1] {
			if prefix == "" {
				prefix = seg
			} else {
				prefix += "/" + seg
			}
			folder := index[prefix]
			switch {
			case folder == nil:
				folder = &FileNode{ID: FolderID(prefix), Name: seg, Path: prefix, Kind: KindFolder}
				*siblings = append(*siblings, folder)
				index[prefix] = folder
			case folder.Kind == KindFile:
				folder.Kind = KindFolder
				folder.ID = FolderID(prefix)
				folder.Path = prefix
				folder.Content = ""
				folder.Language = ""
			}
			siblings = &folder.Children
		}

		clean := strings.Join(segs, "/")
		lang := rec.Language
		if lang == "" {
			lang = grammars.LanguageFor(clean)
		}

		if existing := index[clean]; existing != nil {
			if existing.Kind == KindFolder {
				continue
			}
			existing.ID = rec.ID
			existing.Path = clean
			existing.Content = rec.Content
			existing.Language = lang
			continue
		}

		node := &FileNode{
			ID:       rec.ID,
			Name:     segs[len(segs)-1],
			Path:     clean,
			Kind:     KindFile,
			Content:  rec.Content,
			Language: lang,
		}
		*siblings = append(*siblings, node)
		index[clean] = node
	}
	return roots
}

// DuplicatePaths returns every clean path that occurs more than once in
// records, in first-seen order.
func DuplicatePaths(records []FileRecord) []string {
	seen := make(map[string]int, len(records))
	var dups []string
	for _, rec := range records {
		p := Clean(rec.Path)
		if p == "" {
			continue
		}
		seen[p]++
		if seen[p] == 2 {
			dups = append(dups, p)
		}
	}
	return dups
}

// FindByPath resolves a path in the forest (depth-first). Paths are compared
// after cleaning, so "/src/a.ts" and "src/a.ts" resolve to the same node.
func FindByPath(forest []*FileNode, path string) *FileNode {
	target := Clean(path)
	if target == "" {
		return nil
	}
	for _, n := range forest {
		if found := findByPath(n, target); found != nil {
			return found
		}
	}
	return nil
}

func findByPath(node *FileNode, target string) *FileNode {
	if Clean(node.Path) == target {
		return node
	}
	if node.Kind != KindFolder || !strings.HasPrefix(target, Clean(node.Path)+"/") {
		return nil
	}
	for _, child := range node.Children {
		if found := findByPath(child, target); found != nil {
			return found
		}
	}
	return nil
}

// FindByID finds a node by its ID (depth-first).
func FindByID(forest []*FileNode, id string) *FileNode {
	for _, n := range forest {
		if n.ID == id {
			return n
		}
		if found := FindByID(n.Children, id); found != nil {
			return found
		}
	}
	return nil
}

// CountNodes counts all nodes in the forest.
func CountNodes(forest []*FileNode) int {
	count := 0
	for _, n := range forest {
		count += 1 + CountNodes(n.Children)
	}
	return count
}

// Flatten returns every node depth-first. At each level folders come before
// files and siblings are ordered by name.
func Flatten(forest []*FileNode) []*FileNode {
	var out []*FileNode
	flattenInto(forest, &out)
	return out
}

// Files returns only the file nodes of Flatten.
func Files(forest []*FileNode) []*FileNode {
	var files []*FileNode
	for _, n := range Flatten(forest) {
		if n.Kind == KindFile {
			files = append(files, n)
		}
	}
	return files
}

func flattenInto(level []*FileNode, out *[]*FileNode) {
	for _, n := range sortedLevel(level) {
		*out = append(*out, n)
		if n.Kind == KindFolder {
			flattenInto(n.Children, out)
		}
	}
}

func sortedLevel(level []*FileNode) []*FileNode {
	sorted := append([]*FileNode(nil), level...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Kind != sorted[j].Kind {
			return sorted[i].Kind == KindFolder
		}
		return strings.ToLower(sorted[i].Name) < strings.ToLower(sorted[j].Name)
	})
	return sorted
}
