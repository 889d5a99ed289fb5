package web

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/odvcencio/visualdocs-collab/metrics"
	"github.com/odvcencio/visualdocs-collab/realtime"
)

// room holds the connections of one project.
type room struct {
	projectID string
	clients   map[string]*wsClient
	seq       uint64
}

func (s *Server) handle(c *wsClient, env realtime.Envelope) {
	if relayed(env.Event) {
		metrics.RecordRealtimeEvent("relay_in", env.Event)
	}

	if env.Event == realtime.EventJoinProject {
		var jp realtime.JoinProject
		if !s.decode(c, env, &jp) {
			return
		}
		if jp.ProjectID == "" {
			s.sendError(c, "projectId is required")
			return
		}
		s.join(c, jp.ProjectID)
		return
	}

	s.mu.Lock()
	projectID := c.room
	s.mu.Unlock()
	if projectID == "" {
		s.sendError(c, "join a project first")
		return
	}

	switch env.Event {
	case realtime.EventCodeChange:
		var cc realtime.CodeChange
		if !s.decode(c, env, &cc) {
			return
		}
		cc.UserID = c.user.UserID
		if cc.Timestamp == 0 {
			cc.Timestamp = s.now().UnixMilli()
		}
		s.broadcast(projectID, c, realtime.EventCodeChange, cc)

	case realtime.EventCursorUpdate:
		var cm realtime.CursorMove
		if !s.decode(c, env, &cm) {
			return
		}
		pos := realtime.Position{Line: cm.Line, Column: cm.Column}
		s.mu.Lock()
		c.cursor = &pos
		s.mu.Unlock()
		s.broadcast(projectID, c, realtime.EventCursorUpdate, realtime.CursorUpdate{UserID: c.user.UserID, Position: pos})

	case realtime.EventProjectComment:
		var pc realtime.ProjectComment
		if !s.decode(c, env, &pc) {
			return
		}
		content := strings.TrimSpace(pc.Content)
		if content == "" {
			s.sendError(c, "comment is empty")
			return
		}
		ts := s.now().UTC().Format(time.RFC3339Nano)
		s.broadcast(projectID, nil, realtime.EventNewComment, realtime.Comment{
			ID:         c.user.UserID + ":" + ts,
			AuthorID:   c.user.UserID,
			AuthorName: c.user.Name,
			Content:    content,
			Timestamp:  ts,
		})

	case realtime.EventFileOpen, realtime.EventFileSaved:
		var n realtime.FileNotice
		if !s.decode(c, env, &n) {
			return
		}
		n.UserID = c.user.UserID
		s.broadcast(projectID, c, env.Event, n)

	default:
		s.sendError(c, "unknown event "+env.Event)
	}
}

func relayed(event string) bool {
	switch event {
	case realtime.EventJoinProject, realtime.EventCodeChange, realtime.EventCursorUpdate,
		realtime.EventProjectComment, realtime.EventFileOpen, realtime.EventFileSaved:
		return true
	}
	return false
}

func (s *Server) decode(c *wsClient, env realtime.Envelope, v any) bool {
	if err := json.Unmarshal(env.Data, v); err != nil {
		s.log.Debug("malformed payload", zap.String("event", env.Event), zap.Error(err))
		s.sendError(c, "malformed "+env.Event+" payload")
		return false
	}
	return true
}

// join moves c into the project's room and announces the new member list.
func (s *Server) join(c *wsClient, projectID string) {
	s.mu.Lock()
	prev := c.room
	if prev != "" && prev != projectID {
		s.removeLocked(c)
	}
	r := s.rooms[projectID]
	if r == nil {
		r = &room{projectID: projectID, clients: make(map[string]*wsClient)}
		s.rooms[projectID] = r
	}
	if _, ok := r.clients[c.id]; !ok {
		r.seq++
		c.joined = r.seq
		r.clients[c.id] = c
	}
	c.room = projectID
	metrics.SetRelayRooms(len(s.rooms))
	s.mu.Unlock()

	s.log.Debug("joined room", zap.String("conn_id", c.id), zap.String("project_id", projectID))
	if prev != "" && prev != projectID {
		s.broadcastPresence(prev)
	}
	s.broadcastPresence(projectID)
}

func (s *Server) leave(c *wsClient) {
	s.mu.Lock()
	projectID := c.room
	s.removeLocked(c)
	s.mu.Unlock()

	if projectID != "" {
		s.broadcastPresence(projectID)
	}
}

func (s *Server) removeLocked(c *wsClient) {
	r := s.rooms[c.room]
	c.room = ""
	if r == nil {
		return
	}
	delete(r.clients, c.id)
	if len(r.clients) == 0 {
		delete(s.rooms, r.projectID)
	}
	metrics.SetRelayRooms(len(s.rooms))
}

// members returns the room's connections in join order, skipping except.
func (s *Server) members(projectID string, except *wsClient) []*wsClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.rooms[projectID]
	if r == nil {
		return nil
	}
	out := make([]*wsClient, 0, len(r.clients))
	for _, c := range r.clients {
		if c != except {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].joined < out[j].joined })
	return out
}

func (s *Server) broadcast(projectID string, except *wsClient, event string, data any) {
	for _, c := range s.members(projectID, except) {
		s.send(c, event, data)
	}
}

// Collaborators returns the users in a project room, one entry per user
// in join order.
func (s *Server) Collaborators(projectID string) []realtime.Collaborator {
	members := s.members(projectID, nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool, len(members))
	out := make([]realtime.Collaborator, 0, len(members))
	for _, c := range members {
		if seen[c.user.UserID] {
			continue
		}
		seen[c.user.UserID] = true
		u := realtime.Collaborator{
			ID:    c.user.UserID,
			Name:  c.user.Name,
			Color: realtime.ColorFor(c.user.UserID),
		}
		if c.cursor != nil {
			pos := *c.cursor
			u.Cursor = &pos
		}
		out = append(out, u)
	}
	return out
}

func (s *Server) broadcastPresence(projectID string) {
	s.broadcast(projectID, nil, realtime.EventCollaborators, s.Collaborators(projectID))
}
