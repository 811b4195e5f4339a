package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/sportshub/core"
	"github.com/trezcool/sportshub/core/member"
)

func TestIdleTimer(t *testing.T) {
	t.Run("fires after inactivity", func(t *testing.T) {
		fired := make(chan struct{})
		NewIdleTimer(20*time.Millisecond, func() { close(fired) })
		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatal("timer did not fire")
		}
	})

	t.Run("activity postpones it", func(t *testing.T) {
		fired := make(chan time.Time, 1)
		start := time.Now()
		it := NewIdleTimer(60*time.Millisecond, func() { fired <- time.Now() })
		for i := 0; i < 4; i++ {
			time.Sleep(30 * time.Millisecond)
			assert.True(t, it.Touch())
		}
		select {
		case at := <-fired:
			assert.True(t, at.Sub(start) >= 150*time.Millisecond, "fired too early: %s", at.Sub(start))
		case <-time.After(time.Second):
			t.Fatal("timer did not fire")
		}
		assert.False(t, it.Touch())
	})

	t.Run("stop cancels it", func(t *testing.T) {
		fired := make(chan struct{}, 1)
		it := NewIdleTimer(20*time.Millisecond, func() { fired <- struct{}{} })
		assert.True(t, it.Stop())
		assert.False(t, it.Stop())
		assert.False(t, it.Touch())
		select {
		case <-fired:
			t.Fatal("stopped timer fired")
		case <-time.After(60 * time.Millisecond):
		}
	})
}

type closeLog struct {
	mu      sync.Mutex
	reasons map[string]string
	ch      chan string
}

func newCloseLog() *closeLog {
	return &closeLog{reasons: make(map[string]string), ch: make(chan string, 10)}
}

func (l *closeLog) hook(sess Session, reason string) {
	l.mu.Lock()
	l.reasons[sess.Identity.UID] = reason
	l.mu.Unlock()
	l.ch <- sess.Identity.UID
}

func TestManager(t *testing.T) {
	log := newCloseLog()
	m := NewManager(40*time.Millisecond, log.hook)
	defer m.Shutdown()

	alice := member.Identity{UID: "alice"}
	bob := member.Identity{UID: "bob"}
	sa := m.Open(alice, member.Role{Kind: member.KindStudent, Identity: alice})
	sb := m.Open(bob, member.Role{Kind: member.KindTrainer, Identity: bob})
	assert.NotEqual(t, sa.ID, sb.ID)
	assert.Equal(t, 2, m.Len())

	// reopening keeps the session and refreshes the role
	again := m.Open(alice, member.Role{Kind: member.KindInstitute, Identity: alice})
	assert.Equal(t, sa.ID, again.ID)
	got, ok := m.Get("alice")
	require.True(t, ok)
	assert.Equal(t, member.KindInstitute, got.Role.Kind)

	issued := time.Now().Add(-time.Second)
	assert.False(t, m.Revoked("bob", issued))
	assert.True(t, m.Close("bob", ReasonLogout))
	assert.False(t, m.Close("bob", ReasonLogout))
	assert.True(t, m.Revoked("bob", issued))
	assert.False(t, m.Revoked("bob", time.Now().Add(time.Second)))

	// alice goes idle
	closed := make(map[string]bool)
	for len(closed) < 2 {
		select {
		case uid := <-log.ch:
			closed[uid] = true
		case <-time.After(time.Second):
			t.Fatal("sessions not closed")
		}
	}
	log.mu.Lock()
	assert.Equal(t, map[string]string{"bob": ReasonLogout, "alice": ReasonIdle}, log.reasons)
	log.mu.Unlock()

	_, ok = m.Get("alice")
	assert.False(t, ok)
	assert.False(t, m.Touch("alice"))
	assert.Zero(t, m.Len())
}

func TestManager_TouchKeepsAlive(t *testing.T) {
	log := newCloseLog()
	m := NewManager(50*time.Millisecond, log.hook)
	defer m.Shutdown()

	id := member.Identity{UID: "carol"}
	m.Open(id, member.UnknownRole(id))
	for i := 0; i < 5; i++ {
		time.Sleep(20 * time.Millisecond)
		require.True(t, m.Touch("carol"))
	}
	_, ok := m.Get("carol")
	assert.True(t, ok)
}

func TestManager_Revoked(t *testing.T) {
	defer func(fn func() time.Time) { core.NowFunc = fn }(core.NowFunc)
	now := time.Date(2024, time.June, 12, 10, 0, 0, 700*int(time.Millisecond), time.UTC)
	core.NowFunc = func() time.Time { return now }

	m := NewManager(time.Minute, nil)
	defer m.Shutdown()
	m.SetRevocationWindow(time.Hour)

	dan := member.Identity{UID: "dan"}
	m.Open(dan, member.UnknownRole(dan))
	require.True(t, m.Close("dan", ReasonLogout))

	tests := []struct {
		name     string
		issuedAt time.Time
		want     bool
	}{
		{name: "before the logout second", issuedAt: time.Unix(now.Unix()-1, 0), want: true},
		{name: "in the logout second", issuedAt: time.Unix(now.Unix(), 0), want: false},
		{name: "after the logout", issuedAt: time.Unix(now.Unix()+1, 0), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Revoked("dan", tt.issuedAt))
		})
	}
	assert.False(t, m.Revoked("nobody", time.Unix(now.Unix()-1, 0)))
}

func TestManager_ForgetsOldCloses(t *testing.T) {
	defer func(fn func() time.Time) { core.NowFunc = fn }(core.NowFunc)
	now := time.Date(2024, time.June, 12, 10, 0, 0, 0, time.UTC)
	core.NowFunc = func() time.Time { return now }

	m := NewManager(time.Minute, nil)
	defer m.Shutdown()
	m.SetRevocationWindow(time.Hour)

	for _, uid := range []string{"a", "b"} {
		id := member.Identity{UID: uid}
		m.Open(id, member.UnknownRole(id))
		m.Close(uid, ReasonLogout)
	}
	assert.Equal(t, 2, m.revocations())

	now = now.Add(2 * time.Hour)
	c := member.Identity{UID: "c"}
	m.Open(c, member.UnknownRole(c))
	m.Close("c", ReasonLogout)

	assert.Equal(t, 1, m.revocations())
	assert.False(t, m.Revoked("a", now.Add(-90*time.Minute)))
	assert.True(t, m.Revoked("c", now.Add(-time.Second)))
}
