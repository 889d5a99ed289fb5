package api

import (
	"bytes"
	"encoding/json"

	"github.com/odvcencio/visualdocs-collab/tree"
)

type projectDTO struct {
	ID        string    `json:"id"`
	MongoID   string    `json:"_id"`
	Name      string    `json:"name"`
	Title     string    `json:"title"`
	CodeFiles []fileDTO `json:"codeFiles"`
	Files     []fileDTO `json:"files"`
}

type fileDTO struct {
	ID       string `json:"id"`
	MongoID  string `json:"_id"`
	Path     string `json:"path"`
	Name     string `json:"name"`
	Filename string `json:"filename"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

func (f fileDTO) record() tree.FileRecord {
	path := firstNonEmpty(f.Path, f.Name, f.Filename)
	return tree.FileRecord{
		ID:       firstNonEmpty(f.ID, f.MongoID, path),
		Path:     path,
		Content:  f.Content,
		Language: f.Language,
	}
}

func recordsFrom(files []fileDTO) []tree.FileRecord {
	if len(files) == 0 {
		return nil
	}
	out := make([]tree.FileRecord, 0, len(files))
	for _, f := range files {
		rec := f.record()
		if rec.Path == "" {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// unwrap returns the value under the first present key when data is an
// object that wraps its payload, e.g. {"data": [...]}. Anything else is
// returned as is.
func unwrap(data []byte, keys ...string) []byte {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return data
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return data
	}
	for _, k := range keys {
		if v, ok := obj[k]; ok && len(v) > 0 && string(v) != "null" {
			return v
		}
	}
	return data
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
