package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(idle time.Duration) (*Manager, *time.Time) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	m := NewManager(idle)
	m.now = func() time.Time { return now }
	return m, &now
}

func TestManager_CreateAndGet(t *testing.T) {
	m, _ := newTestManager(time.Hour)

	s := m.Create("alice", true)
	require.NotEmpty(t, s.Token)

	got, err := m.Get(s.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.AccountId)
	assert.True(t, got.IsAdmin)

	_, err = m.Get("unknown")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestManager_IdleTimeout(t *testing.T) {
	m, now := newTestManager(time.Hour)
	s := m.Create("alice", false)

	*now = now.Add(50 * time.Minute)
	_, err := m.Get(s.Token)
	require.NoError(t, err, "use refreshes the idle timer")

	*now = now.Add(50 * time.Minute)
	_, err = m.Get(s.Token)
	require.NoError(t, err)

	*now = now.Add(time.Hour)
	_, err = m.Get(s.Token)
	assert.ErrorIs(t, err, ErrInvalidSession)
	assert.Equal(t, 0, m.Len())
}

func TestManager_Invalidate(t *testing.T) {
	m, _ := newTestManager(time.Hour)
	a := m.Create("alice", false)
	b := m.Create("alice", false)
	c := m.Create("bob", false)

	m.Invalidate(a.Token)
	_, err := m.Get(a.Token)
	assert.ErrorIs(t, err, ErrInvalidSession)

	assert.Equal(t, 1, m.InvalidateAccount("alice"))
	_, err = m.Get(b.Token)
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = m.Get(c.Token)
	assert.NoError(t, err)
}

func TestManager_Expire(t *testing.T) {
	m, now := newTestManager(time.Minute)
	m.Create("alice", false)
	*now = now.Add(30 * time.Second)
	m.Create("bob", false)
	*now = now.Add(45 * time.Second)

	assert.Equal(t, 1, m.Expire())
	assert.Equal(t, 1, m.Len())
}
