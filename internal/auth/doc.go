// Package auth owns the admin session: the token and its expiry, the
// failed-login counter, and the durable copy of the token.
//
// The lockout implemented here is a client-side UX throttle only. It is not a
// security boundary: the registration service must reject invalid
// credentials on its own regardless of what this package believes.
package auth
