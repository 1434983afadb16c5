package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"portal-admin/internal/observability"
)

// TokenSource is the read side of the session plus the single invalidation
// hook the transport needs.
type TokenSource interface {
	Token() string
	InvalidateToken(ctx context.Context, token string) error
}

// BearerTransport attaches the session token to admin requests and turns a
// 401 into a session invalidation. Requests that already carry an
// Authorization header, and the login endpoint, are passed through untouched.
type BearerTransport struct {
	base    http.RoundTripper
	session TokenSource
	logger  *observability.Logger
	metrics *observability.Metrics
}

func NewBearerTransport(base http.RoundTripper, session TokenSource, logger *observability.Logger, metrics *observability.Metrics) *BearerTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &BearerTransport{base: base, session: session, logger: logger, metrics: metrics}
}

func (t *BearerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if strings.TrimSpace(r.Header.Get("Authorization")) != "" || !isAdminPath(r.URL.Path) {
		return t.base.RoundTrip(r)
	}

	token := t.session.Token()
	if token == "" {
		return t.base.RoundTrip(r)
	}

	req := r.Clone(r.Context())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
		defer cancel()
		if invalidateErr := t.session.InvalidateToken(ctx, token); invalidateErr != nil {
			t.logger.Error("session_invalidate_failed", map[string]any{"error": invalidateErr.Error()})
		}
		t.metrics.Logout("unauthorized")
		t.logger.Warn("session_rejected", map[string]any{"path": r.URL.Path})
	}

	return resp, nil
}

func isAdminPath(path string) bool {
	return strings.Contains(path, "/admin/") && !strings.Contains(path, "/admin/auth/")
}
