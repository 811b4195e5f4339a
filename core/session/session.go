package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/sportshub/core"
	"github.com/trezcool/sportshub/core/member"
)

// Close reasons
const (
	ReasonIdle   = "idle"
	ReasonLogout = "logout"
)

// DefaultIdleTimeout is the inactivity after which a session is logged out.
const DefaultIdleTimeout = 5 * time.Minute

// DefaultRevocationWindow is how long a close time is remembered. Credentials older than that have expired anyway.
const DefaultRevocationWindow = 7 * 24 * time.Hour

// Session is the authenticated context of one identity. It is passed explicitly to whatever needs it.
type Session struct {
	ID        string          `json:"id"`
	Identity  member.Identity `json:"identity"`
	Role      member.Role     `json:"role"`
	StartedAt time.Time       `json:"startedAt"`
}

type entry struct {
	sess  Session
	timer *IdleTimer
}

// Manager keeps one session per identity and logs it out after the idle timeout.
type Manager struct {
	mu       sync.Mutex
	idle     time.Duration
	window   time.Duration
	sessions map[string]*entry    // {uid: entry}
	closedAt map[string]time.Time // {uid: last close, to the second}
	onClose  func(sess Session, reason string)
}

// NewManager creates a manager. onClose, if set, is called (outside of any lock) whenever a session ends.
func NewManager(idle time.Duration, onClose func(sess Session, reason string)) *Manager {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &Manager{
		idle:     idle,
		window:   DefaultRevocationWindow,
		sessions: make(map[string]*entry),
		closedAt: make(map[string]time.Time),
		onClose:  onClose,
	}
}

// SetOnClose replaces the close hook.
func (m *Manager) SetOnClose(fn func(sess Session, reason string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onClose = fn
}

// SetRevocationWindow sets how long close times are kept, usually the credentials lifetime.
func (m *Manager) SetRevocationWindow(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.window = d
}

// Open returns the identity's live session, touched and with an up to date role, or starts a new one.
func (m *Manager) Open(id member.Identity, role member.Role) Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.sessions[id.UID]; ok && e.timer.Touch() {
		e.sess.Role = role
		return e.sess
	}

	sess := Session{ID: uuid.New().String(), Identity: id, Role: role, StartedAt: core.NowFunc().UTC()}
	e := &entry{sess: sess}
	e.timer = NewIdleTimer(m.idle, func() { m.expire(id.UID, sess.ID) })
	m.sessions[id.UID] = e
	return sess
}

func (m *Manager) Get(uid string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[uid]
	if !ok {
		return Session{}, false
	}
	return e.sess, true
}

// Touch records activity on the identity's session. It returns false when there is no live session.
func (m *Manager) Touch(uid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[uid]
	return ok && e.timer.Touch()
}

// Close ends the identity's session. It returns false when there was none.
func (m *Manager) Close(uid, reason string) bool {
	m.mu.Lock()
	e, ok := m.sessions[uid]
	if ok {
		e.timer.Stop()
		m.remove(uid)
	}
	hook := m.onClose
	m.mu.Unlock()

	if ok && hook != nil {
		hook(e.sess, reason)
	}
	return ok
}

func (m *Manager) expire(uid, sessID string) {
	m.mu.Lock()
	e, ok := m.sessions[uid]
	if !ok || e.sess.ID != sessID {
		m.mu.Unlock()
		return
	}
	m.remove(uid)
	hook := m.onClose
	m.mu.Unlock()

	if hook != nil {
		hook(e.sess, ReasonIdle)
	}
}

// remove must be called with the lock held. Close times are kept to the second, the precision of
// credential issue times, and forgotten once older than the revocation window.
func (m *Manager) remove(uid string) {
	delete(m.sessions, uid)
	now := core.NowFunc().UTC()
	for id, at := range m.closedAt {
		if now.Sub(at) > m.window {
			delete(m.closedAt, id)
		}
	}
	m.closedAt[uid] = now.Truncate(time.Second)
}

// Revoked reports whether credentials issued at issuedAt predate the identity's last logout.
// Such credentials must not reopen a session. Credentials issued in the second of the logout are accepted.
func (m *Manager) Revoked(uid string, issuedAt time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	closed, ok := m.closedAt[uid]
	return ok && issuedAt.Before(closed)
}

// revocations is the number of remembered close times.
func (m *Manager) revocations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.closedAt)
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown stops every idle timer without calling the close hook.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for uid, e := range m.sessions {
		e.timer.Stop()
		delete(m.sessions, uid)
	}
}
