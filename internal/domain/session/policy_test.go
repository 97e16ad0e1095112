package session_test

import (
	"testing"
	"time"

	"github.com/rpggio/fieldcam/internal/domain/session"
	"github.com/stretchr/testify/require"
)

func TestParseResetPolicy(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want string
	}{
		{"", "session"},
		{"session", "session"},
		{"daily", "daily"},
	} {
		policy, err := session.ParseResetPolicy(tc.in)
		require.NoError(t, err)
		require.Equal(t, tc.want, policy.Name())
	}

	_, err := session.ParseResetPolicy("never")
	require.Error(t, err)
}

func TestDailyPolicy(t *testing.T) {
	policy := session.Daily{Location: time.UTC}
	morning := time.Date(2026, 6, 10, 8, 0, 0, 0, time.UTC)

	used := session.Session{LastUsedAt: morning, SequenceCounter: 4}
	require.False(t, policy.RollOver(used, morning.Add(10*time.Hour)), "same day continues")
	require.True(t, policy.RollOver(used, morning.Add(20*time.Hour)), "next day rolls over")

	fresh := session.Session{LastUsedAt: morning, SequenceCounter: 1}
	require.False(t, policy.RollOver(fresh, morning.Add(48*time.Hour)), "an unused session is kept")
}

func TestSessionScopedPolicy(t *testing.T) {
	used := session.Session{LastUsedAt: time.Now().Add(-72 * time.Hour), SequenceCounter: 30}
	require.False(t, session.SessionScoped{}.RollOver(used, time.Now()))
}
