package realtime

import (
	"encoding/json"
	"sync"
)

// Comment is a project-level chat message.
type Comment struct {
	ID         string `json:"id"`
	AuthorID   string `json:"authorId"`
	AuthorName string `json:"authorName"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp"` // ISO 8601
}

// UnmarshalJSON accepts the field spellings used by both the REST API and
// the room server.
func (c *Comment) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         string `json:"id"`
		MongoID    string `json:"_id"`
		AuthorID   string `json:"authorId"`
		UserID     string `json:"userId"`
		AuthorName string `json:"authorName"`
		UserName   string `json:"userName"`
		Content    string `json:"content"`
		Timestamp  string `json:"timestamp"`
		CreatedAt  string `json:"createdAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Comment{
		ID:         firstNonEmpty(raw.ID, raw.MongoID),
		AuthorID:   firstNonEmpty(raw.AuthorID, raw.UserID),
		AuthorName: firstNonEmpty(raw.AuthorName, raw.UserName),
		Content:    raw.Content,
		Timestamp:  firstNonEmpty(raw.Timestamp, raw.CreatedAt),
	}
	return nil
}

// Key returns the de-duplication key: the id, or authorId:timestamp when
// the server sent none.
func (c Comment) Key() string {
	if c.ID != "" {
		return c.ID
	}
	return c.AuthorID + ":" + c.Timestamp
}

// CommentLog is an append-only, de-duplicated list of comments. The same
// comment may arrive from the initial REST load and again as a realtime
// echo; the second arrival is dropped.
type CommentLog struct {
	mu    sync.RWMutex
	items []Comment
	seen  map[string]struct{}
}

// NewCommentLog returns an empty log.
func NewCommentLog() *CommentLog {
	return &CommentLog{seen: make(map[string]struct{})}
}

// Add appends c unless a comment with the same key is already present. The
// stored comment always carries its key as ID.
func (l *CommentLog) Add(c Comment) bool {
	key := c.Key()
	c.ID = key

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[key]; ok {
		return false
	}
	l.seen[key] = struct{}{}
	l.items = append(l.items, c)
	return true
}

// Merge adds every comment and returns how many were new.
func (l *CommentLog) Merge(cs []Comment) int {
	n := 0
	for _, c := range cs {
		if l.Add(c) {
			n++
		}
	}
	return n
}

// List returns the comments in arrival order.
func (l *CommentLog) List() []Comment {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Comment(nil), l.items...)
}

// Len returns the number of comments.
func (l *CommentLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}
