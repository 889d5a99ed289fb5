package realtime

import (
	"encoding/json"
)

// Event names exchanged with the project room.
const (
	EventJoinProject    = "join-project"
	EventCodeChange     = "code:change"
	EventCursorUpdate   = "cursor:update"
	EventCollaborators  = "collaborators:update"
	EventProjectComment = "project-comment"
	EventNewComment     = "new-comment"
	EventFileOpen       = "file:open"
	EventFileSaved      = "file:saved"
	EventError          = "error"
)

// Envelope is one websocket frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an envelope for event.
func NewEnvelope(event string, data any) (Envelope, error) {
	env := Envelope{Event: event}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return env, err
	}
	env.Data = raw
	return env, nil
}

// Position is a 1-based cursor location.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// JoinProject is sent on every (re)connect.
type JoinProject struct {
	ProjectID string `json:"projectId"`
}

// CodeChange carries the full new content of a file. UserID is filled in
// by the server on relayed changes.
type CodeChange struct {
	FileID    string `json:"fileId"`
	Changes   string `json:"changes"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
	UserID    string `json:"userId,omitempty"`
}

// CursorMove is the outbound cursor payload.
type CursorMove struct {
	Line   int    `json:"line"`
	Column int    `json:"column"`
	FileID string `json:"fileId,omitempty"`
}

// CursorUpdate is the inbound cursor payload.
type CursorUpdate struct {
	UserID   string   `json:"userId"`
	Position Position `json:"position"`
}

// ProjectComment is the outbound comment payload.
type ProjectComment struct {
	ProjectID string `json:"projectId"`
	Content   string `json:"content"`
}

// FileNotice is the advisory payload for file:open and file:saved.
type FileNotice struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
	UserID   string `json:"userId,omitempty"`
}

// ErrorMessage is pushed by the server when it rejects an event.
type ErrorMessage struct {
	Message string `json:"message"`
}
