package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestModerationBanUnban(t *testing.T) {
	t.Parallel()

	m := NewModeration()
	require.False(t, m.IsBanned("user-1"))

	m.Ban("user-1")
	require.True(t, m.IsBanned("user-1"))
	require.Equal(t, 1, m.BannedCount())

	// Banning twice is a no-op.
	m.Ban("user-1")
	require.Equal(t, 1, m.BannedCount())

	m.Unban("user-1")
	require.False(t, m.IsBanned("user-1"))
	require.Zero(t, m.BannedCount())
}

func TestModerationMuteUnmute(t *testing.T) {
	t.Parallel()

	m := NewModeration()
	m.Mute("user-2")
	require.True(t, m.IsMuted("user-2"))
	require.False(t, m.IsBanned("user-2"), "mute and ban are independent sets")

	m.Unmute("user-2")
	require.False(t, m.IsMuted("user-2"))
}

func TestStatsCounters(t *testing.T) {
	t.Parallel()

	s := NewStats()
	s.RecordCompleted()
	s.RecordCompleted()
	s.RecordFailed()

	completed, failed := s.Snapshot()
	require.Equal(t, uint64(2), completed)
	require.Equal(t, uint64(1), failed)
}
