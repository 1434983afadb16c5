package observability

import (
	"context"
	"errors"
	"time"

	"github.com/getsentry/sentry-go"

	"portal-admin/internal/apiclient"
)

func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
	})
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// CaptureError reports unexpected failures to Sentry.
func CaptureError(err error) {
	if !Reportable(err) {
		return
	}
	sentry.CaptureException(err)
}

// Reportable is false for session expiry, local validation and caller
// cancellation, which are normal control flow.
func Reportable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, apiclient.ErrUnauthorized), apiclient.IsValidation(err):
		return false
	}
	return true
}
