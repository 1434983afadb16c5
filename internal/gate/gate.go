// Package gate keeps admin views behind a valid session: it verifies the
// session when a view opens and keeps rechecking it until the view closes.
package gate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"portal-admin/internal/observability"
)

const DefaultInterval = 60 * time.Second

type State int

const (
	Unauthenticated State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

type Session interface {
	VerifySession(ctx context.Context) (bool, error)
	IsValid() bool
	Authenticated() bool
	Logout(ctx context.Context) error
	Subscribe(fn func(authenticated bool)) func()
}

type Gate struct {
	session  Session
	interval time.Duration
	logger   *observability.Logger
	metrics  *observability.Metrics
	onLogout func()
}

func New(session Session, logger *observability.Logger, metrics *observability.Metrics) *Gate {
	return &Gate{session: session, interval: DefaultInterval, logger: logger, metrics: metrics}
}

func (g *Gate) WithInterval(interval time.Duration) *Gate {
	if interval > 0 {
		g.interval = interval
	}
	return g
}

// OnLogout sets the callback run when a guard loses its session, so the view
// can send the operator back to login.
func (g *Gate) OnLogout(fn func()) *Gate {
	g.onLogout = fn
	return g
}

func (g *Gate) State() State {
	if g.session.Authenticated() {
		return Authenticated
	}
	return Unauthenticated
}

// Guard is the handle of one guarded view. Stop must be called when the view
// goes away.
type Guard struct {
	cancel     context.CancelFunc
	done       chan struct{}
	stopOnce   sync.Once
	authorized bool
	expired    atomic.Bool
}

// Guard verifies the session once and, if it is valid, starts the recurring
// check. The check ends when ctx is cancelled, Stop is called, or the
// session ends.
func (g *Gate) Guard(ctx context.Context) *Guard {
	guardCtx, cancel := context.WithCancel(ctx)
	guard := &Guard{cancel: cancel, done: make(chan struct{})}

	ok, err := g.session.VerifySession(guardCtx)
	if err != nil {
		g.logger.Error("session_verify_failed", map[string]any{"error": err.Error()})
	}
	if !ok {
		guard.expired.Store(true)
		cancel()
		close(guard.done)
		g.loggedOut("invalid")
		return guard
	}

	guard.authorized = true
	ended := make(chan struct{}, 1)
	unsubscribe := g.session.Subscribe(func(authenticated bool) {
		if authenticated {
			return
		}
		select {
		case ended <- struct{}{}:
		default:
		}
	})

	go g.watch(guardCtx, guard, ended, unsubscribe)
	return guard
}

func (g *Gate) watch(ctx context.Context, guard *Guard, ended <-chan struct{}, unsubscribe func()) {
	defer close(guard.done)
	defer unsubscribe()

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ended:
			guard.expired.Store(true)
			g.loggedOut("logout")
			return
		case <-ticker.C:
			if g.session.IsValid() {
				continue
			}
			if err := g.session.Logout(context.WithoutCancel(ctx)); err != nil {
				g.logger.Error("session_logout_failed", map[string]any{"error": err.Error()})
			}
			guard.expired.Store(true)
			g.metrics.Logout("expired")
			g.logger.Info("session_expired", nil)
			g.loggedOut("expired")
			return
		}
	}
}

func (g *Gate) loggedOut(reason string) {
	g.logger.Info("gate_closed", map[string]any{"reason": reason})
	if g.onLogout != nil {
		g.onLogout()
	}
}

// Authorized reports whether the initial verification succeeded.
func (gd *Guard) Authorized() bool {
	return gd.authorized
}

// Expired reports whether the guard stopped because the session ended.
func (gd *Guard) Expired() bool {
	return gd.expired.Load()
}

func (gd *Guard) Done() <-chan struct{} {
	return gd.done
}

// Stop cancels the recurring check and waits for it to exit.
func (gd *Guard) Stop() {
	gd.stopOnce.Do(gd.cancel)
	<-gd.done
}
