package session

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogNotifierKeepsRecent(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewLogNotifier(zap.New(core), 2)

	n.Notify(Notice{Level: LevelInfo, Message: "one"})
	n.Notify(Notice{Level: LevelWarn, Message: "two"})
	n.Notify(Notice{Level: LevelError, Message: "three"})

	recent := n.Recent()
	require.Len(t, recent, 2)
	require.Equal(t, "two", recent[0].Message)
	require.Equal(t, "three", recent[1].Message)

	entries := logs.All()
	require.Len(t, entries, 3)
	require.Equal(t, zap.WarnLevel, entries[1].Level)
	require.Equal(t, zap.ErrorLevel, entries[2].Level)
}
