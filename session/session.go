// Package session holds the Hacker News login used by write operations.
package session

import (
	"sync/atomic"
	"time"
)

// DefaultTTL is how long a login is trusted before a new one is required.
const DefaultTTL = 24 * time.Hour

// State is a snapshot of the current login. Username and Cookie are either both set
// or both empty.
type State struct {
	Username   string
	Cookie     string
	LoggedInAt time.Time
}

// Manager owns the session record. Login and Logout swap the whole record, so readers
// never see fields from two different logins.
type Manager struct {
	state atomic.Pointer[State]
	ttl   time.Duration
	now   func() time.Time
}

func NewManager(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Manager{ttl: ttl, now: time.Now}
	m.state.Store(&State{})
	return m
}

// Login records username and its session cookie.
func (m *Manager) Login(username, cookie string) {
	m.state.Store(&State{Username: username, Cookie: cookie, LoggedInAt: m.now()})
}

// Logout forgets the current login.
func (m *Manager) Logout() {
	m.state.Store(&State{})
}

// State returns a copy of the current record.
func (m *Manager) State() State {
	return *m.state.Load()
}

// LoggedIn reports whether there is a login younger than the TTL.
func (m *Manager) LoggedIn() bool {
	s := m.state.Load()
	if s.Username == "" || s.Cookie == "" || s.LoggedInAt.IsZero() {
		return false
	}
	return m.now().Sub(s.LoggedInAt) < m.ttl
}

func (m *Manager) Username() string { return m.state.Load().Username }

func (m *Manager) Cookie() string { return m.state.Load().Cookie }
