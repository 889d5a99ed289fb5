package session

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Level is the severity of a user-visible notice.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Notice is a message meant for the person at the keyboard.
type Notice struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Notifier receives notices. Implementations must be safe for concurrent
// use; notices are delivered without the session lock held.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notice) { f(n) }

const defaultNoticeLimit = 50

// LogNotifier logs every notice and keeps the most recent ones.
type LogNotifier struct {
	log   *zap.Logger
	limit int

	mu     sync.Mutex
	recent []Notice
}

// NewLogNotifier returns a notifier that keeps up to limit notices. A
// non-positive limit keeps 50.
func NewLogNotifier(log *zap.Logger, limit int) *LogNotifier {
	if limit <= 0 {
		limit = defaultNoticeLimit
	}
	return &LogNotifier{log: log, limit: limit}
}

// Notify logs n and records it.
func (l *LogNotifier) Notify(n Notice) {
	switch n.Level {
	case LevelError:
		l.log.Error(n.Message)
	case LevelWarn:
		l.log.Warn(n.Message)
	default:
		l.log.Info(n.Message)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.recent = append(l.recent, n)
	if over := len(l.recent) - l.limit; over > 0 {
		l.recent = append(l.recent[:0], l.recent[over:]...)
	}
}

// Recent returns the recorded notices, oldest first.
func (l *LogNotifier) Recent() []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Notice(nil), l.recent...)
}
