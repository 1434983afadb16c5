package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"portal-admin/internal/apiclient"
	"portal-admin/internal/observability"
)

type Authenticator interface {
	Login(ctx context.Context, username, password string) (apiclient.LoginResponse, error)
	VerifyToken(ctx context.Context, token string) (int, error)
}

// Service runs the login flows against the registration service and feeds
// their outcome into the Manager.
type Service struct {
	api     Authenticator
	session *Manager
	logger  *observability.Logger
	now     func() time.Time
}

func NewService(api Authenticator, session *Manager, logger *observability.Logger) *Service {
	return &Service{api: api, session: session, logger: logger, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) Login(ctx context.Context, username, password string) error {
	if err := s.session.AllowLogin(); err != nil {
		return err
	}

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return &apiclient.ValidationError{Message: "username and password are required"}
	}

	resp, err := s.api.Login(ctx, username, password)
	if err != nil {
		return s.failed(err)
	}

	expiry := sessionExpiry(resp.Token, resp.ExpiryMinutes, s.now())
	if err := s.session.LoginUntil(ctx, resp.Token, expiry); err != nil {
		s.logger.Error("session_persist_failed", map[string]any{"error": err.Error()})
	}
	s.logger.Info("login_succeeded", map[string]any{"expires_at": expiry.UTC().Format(time.RFC3339)})
	return nil
}

// LoginWithToken is the legacy flow: the operator pastes an admin token and
// the service confirms it.
func (s *Service) LoginWithToken(ctx context.Context, token string) error {
	if err := s.session.AllowLogin(); err != nil {
		return err
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return &apiclient.ValidationError{Field: "token", Message: "admin token is required"}
	}

	minutes, err := s.api.VerifyToken(ctx, token)
	if err != nil {
		return s.failed(err)
	}

	expiry := sessionExpiry(token, minutes, s.now())
	if err := s.session.LoginUntil(ctx, token, expiry); err != nil {
		s.logger.Error("session_persist_failed", map[string]any{"error": err.Error()})
	}
	s.logger.Info("login_succeeded", map[string]any{"expires_at": expiry.UTC().Format(time.RFC3339), "legacy": true})
	return nil
}

func (s *Service) Logout(ctx context.Context) error {
	if err := s.session.Logout(ctx); err != nil {
		return err
	}
	s.logger.Info("logout", nil)
	return nil
}

// failed counts the attempt whether the service rejected the credentials or
// could not be reached.
func (s *Service) failed(err error) error {
	attempts, locked := s.session.RecordFailedAttempt()
	s.logger.Warn("login_failed", map[string]any{
		"attempts": attempts,
		"locked":   locked,
		"error":    err.Error(),
	})

	if rejected(err) {
		err = fmt.Errorf("%w: %s", ErrInvalidCredentials, rejectionMessage(err))
	}
	if locked {
		return &LockoutError{Attempts: attempts, Remaining: s.session.LockRemaining(), Err: err}
	}
	return err
}

func rejected(err error) bool {
	if errors.Is(err, apiclient.ErrUnauthorized) {
		return true
	}
	var transportErr *apiclient.TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Status == http.StatusBadRequest || transportErr.Status == http.StatusForbidden
	}
	return false
}

func rejectionMessage(err error) string {
	var authErr *apiclient.AuthError
	if errors.As(err, &authErr) && authErr.Message != "" {
		return authErr.Message
	}
	var transportErr *apiclient.TransportError
	if errors.As(err, &transportErr) && transportErr.Message != "" {
		return transportErr.Message
	}
	return "rejected by server"
}
