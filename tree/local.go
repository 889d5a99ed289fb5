package tree

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Laisky/errors/v2"

	"github.com/odvcencio/visualdocs-collab/grammars"
)

// MaxLocalFileSize bounds the files CollectRecords will read.
const MaxLocalFileSize = 1 << 20

func shouldSkipDir(name string) bool {
	switch name {
	case ".git", "node_modules", "vendor":
		return true
	default:
		return false
	}
}

// CollectRecords walks a local directory into file records keyed by their
// slash-separated path relative to root. Binary and oversized files are
// skipped.
func CollectRecords(root string) ([]FileRecord, error) {
	clean := filepath.Clean(root)
	var out []FileRecord
	err := filepath.WalkDir(clean, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != clean && shouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil || info.Size() > MaxLocalFileSize {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil || !utf8.Valid(data) {
			return nil
		}

		rel, err := filepath.Rel(clean, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		out = append(out, FileRecord{
			ID:       rel,
			Path:     rel,
			Content:  string(data),
			Language: grammars.LanguageFor(rel),
		})
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walk %s", clean)
	}

	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Path) < strings.ToLower(out[j].Path)
	})
	return out, nil
}
