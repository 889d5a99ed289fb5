package realtime

import (
	"encoding/json"
	"hash/fnv"
	"sync"
)

// Palette is used for collaborators the server sends without a color.
var Palette = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231",
	"#911eb4", "#42d4f4", "#f032e6", "#469990",
}

// ColorFor returns a stable palette color for a user id.
func ColorFor(userID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return Palette[h.Sum32()%uint32(len(Palette))]
}

// Collaborator is a remote peer in the project room. Cursor is nil until
// the first cursor update arrives.
type Collaborator struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Color  string    `json:"color,omitempty"`
	Cursor *Position `json:"cursor,omitempty"`
}

// UnmarshalJSON accepts the id under "id", "userId" or "_id" and the name
// under "name" or "username".
func (c *Collaborator) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       string    `json:"id"`
		UserID   string    `json:"userId"`
		MongoID  string    `json:"_id"`
		Name     string    `json:"name"`
		Username string    `json:"username"`
		Color    string    `json:"color"`
		Cursor   *Position `json:"cursor"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Collaborator{
		ID:     firstNonEmpty(raw.ID, raw.UserID, raw.MongoID),
		Name:   firstNonEmpty(raw.Name, raw.Username),
		Color:  raw.Color,
		Cursor: raw.Cursor,
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Presence is the set of collaborators in the room. The server is
// authoritative: every snapshot replaces the whole set.
type Presence struct {
	mu    sync.RWMutex
	users []Collaborator
}

// NewPresence returns an empty presence set.
func NewPresence() *Presence {
	return &Presence{}
}

// Replace installs a new snapshot. Entries without an id are dropped and
// later duplicates of an id are ignored.
func (p *Presence) Replace(users []Collaborator) {
	out := make([]Collaborator, 0, len(users))
	seen := make(map[string]bool, len(users))
	for _, u := range users {
		if u.ID == "" || seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		if u.Color == "" {
			u.Color = ColorFor(u.ID)
		}
		if u.Cursor != nil {
			pos := *u.Cursor
			u.Cursor = &pos
		}
		out = append(out, u)
	}

	p.mu.Lock()
	p.users = out
	p.mu.Unlock()
}

// UpdateCursor records the cursor of a present collaborator. It reports
// false when the user is not in the current snapshot.
func (p *Presence) UpdateCursor(userID string, pos Position) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.users {
		if p.users[i].ID == userID {
			p.users[i].Cursor = &pos
			return true
		}
	}
	return false
}

// Get returns a copy of one collaborator.
func (p *Presence) Get(userID string) (Collaborator, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, u := range p.users {
		if u.ID == userID {
			return copyCollaborator(u), true
		}
	}
	return Collaborator{}, false
}

// List returns a copy of the current snapshot.
func (p *Presence) List() []Collaborator {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Collaborator, len(p.users))
	for i, u := range p.users {
		out[i] = copyCollaborator(u)
	}
	return out
}

// Len returns the number of collaborators.
func (p *Presence) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.users)
}

func copyCollaborator(u Collaborator) Collaborator {
	if u.Cursor != nil {
		pos := *u.Cursor
		u.Cursor = &pos
	}
	return u
}
