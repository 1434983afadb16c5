package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"portal-admin/internal/apiclient"
)

const (
	DefaultMaxAttempts   = 5
	DefaultLockWindow    = 15 * time.Minute
	DefaultExpiryMinutes = 60
)

// Manager is the single writer of the admin session. It is constructed once
// at startup and handed to every component that needs the token.
type Manager struct {
	mu          sync.Mutex
	store       Store
	now         func() time.Time
	maxAttempts int
	lockWindow  time.Duration

	token          string
	expiry         time.Time
	authenticated  bool
	failedAttempts int
	lastAttempt    time.Time
	locked         bool

	listenerSeq int
	listeners   map[int]func(bool)
}

func NewManager(store Store) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Manager{
		store:       store,
		now:         time.Now,
		maxAttempts: DefaultMaxAttempts,
		lockWindow:  DefaultLockWindow,
		listeners:   make(map[int]func(bool)),
	}
}

func (m *Manager) WithLockout(maxAttempts int, window time.Duration) *Manager {
	if maxAttempts > 0 {
		m.maxAttempts = maxAttempts
	}
	if window > 0 {
		m.lockWindow = window
	}
	return m
}

func (m *Manager) WithClock(now func() time.Time) *Manager {
	if now != nil {
		m.now = now
	}
	return m
}

// Subscribe registers fn to be called with the new authenticated flag after
// every login or logout. The returned func removes the subscription.
func (m *Manager) Subscribe(fn func(authenticated bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listenerSeq++
	id := m.listenerSeq
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// Restore rehydrates token and expiry from the durable store. The session is
// not considered authenticated until VerifySession succeeds.
func (m *Manager) Restore(ctx context.Context) error {
	record, ok, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if !ok {
		return nil
	}

	m.mu.Lock()
	m.token = record.Token
	m.expiry = record.Expiry
	m.authenticated = false
	m.mu.Unlock()
	return nil
}

// Login establishes a session that expires expiryMinutes from now.
func (m *Manager) Login(ctx context.Context, token string, expiryMinutes int) error {
	if expiryMinutes <= 0 {
		expiryMinutes = DefaultExpiryMinutes
	}
	return m.LoginUntil(ctx, token, m.now().Add(time.Duration(expiryMinutes)*time.Minute))
}

// LoginUntil establishes a session with an absolute expiry. The in-memory
// session is set even when persisting it fails; the error is returned for
// the caller to report.
func (m *Manager) LoginUntil(ctx context.Context, token string, expiry time.Time) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return &apiclient.ValidationError{Field: "token", Message: "token is required"}
	}

	m.mu.Lock()
	m.token = token
	m.expiry = expiry
	m.authenticated = true
	m.failedAttempts = 0
	m.locked = false
	m.mu.Unlock()

	m.notify(true)

	if err := m.store.Save(ctx, Record{Token: token, Expiry: expiry}); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// Logout clears the session, its durable copy and the failed-attempt
// counters. Safe to call repeatedly. An active lock and its count survive
// until the window has elapsed.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	wasAuthenticated := m.authenticated || m.token != ""
	m.token = ""
	m.expiry = time.Time{}
	m.authenticated = false
	if m.lockRemainingLocked() == 0 {
		m.failedAttempts = 0
		m.lastAttempt = time.Time{}
		m.locked = false
	}
	m.mu.Unlock()

	if wasAuthenticated {
		m.notify(false)
	}

	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// InvalidateToken logs out only when token is still the current one, so a
// late rejection of a superseded token cannot end a newer session.
func (m *Manager) InvalidateToken(ctx context.Context, token string) error {
	m.mu.Lock()
	current := m.token
	m.mu.Unlock()

	if token == "" || token != current {
		return nil
	}
	return m.Logout(ctx)
}

func (m *Manager) IsValid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validLocked()
}

// VerifySession marks a valid session as authenticated, and logs out an
// invalid one.
func (m *Manager) VerifySession(ctx context.Context) (bool, error) {
	m.mu.Lock()
	if m.validLocked() {
		changed := !m.authenticated
		m.authenticated = true
		m.mu.Unlock()
		if changed {
			m.notify(true)
		}
		return true, nil
	}
	m.mu.Unlock()

	return false, m.Logout(ctx)
}

// RecordFailedAttempt counts a failed login. A gap longer than the lockout
// window restarts the count at one.
func (m *Manager) RecordFailedAttempt() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.Sub(m.lastAttempt) > m.lockWindow {
		m.failedAttempts = 1
	} else {
		m.failedAttempts++
	}
	m.locked = m.failedAttempts >= m.maxAttempts
	m.lastAttempt = now

	return m.failedAttempts, m.locked
}

func (m *Manager) ClearLock() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failedAttempts = 0
	m.locked = false
	m.lastAttempt = time.Time{}
}

// LockRemaining is the time left before a lock may be cleared; zero when
// not locked or once the window has fully elapsed.
func (m *Manager) LockRemaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lockRemainingLocked()
}

// ClearLockIfElapsed clears an active lock whose window has fully elapsed
// and reports whether it did.
func (m *Manager) ClearLockIfElapsed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.locked || m.lockRemainingLocked() > 0 {
		return false
	}
	m.failedAttempts = 0
	m.locked = false
	m.lastAttempt = time.Time{}
	return true
}

// AllowLogin returns a LockoutError while locked.
func (m *Manager) AllowLogin() error {
	if m.ClearLockIfElapsed() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.locked {
		return nil
	}
	return &LockoutError{Attempts: m.failedAttempts, Remaining: m.lockRemainingLocked()}
}

func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

func (m *Manager) Expiry() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expiry
}

func (m *Manager) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticated
}

func (m *Manager) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		HasToken:       m.token != "",
		Expiry:         m.expiry,
		Authenticated:  m.authenticated,
		FailedAttempts: m.failedAttempts,
		LastAttempt:    m.lastAttempt,
		Locked:         m.locked,
	}
}

func (m *Manager) MaxAttempts() int {
	return m.maxAttempts
}

func (m *Manager) validLocked() bool {
	return m.token != "" && m.now().Before(m.expiry)
}

func (m *Manager) lockRemainingLocked() time.Duration {
	if !m.locked {
		return 0
	}
	remaining := m.lockWindow - m.now().Sub(m.lastAttempt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (m *Manager) notify(authenticated bool) {
	m.mu.Lock()
	listeners := make([]func(bool), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(authenticated)
	}
}
