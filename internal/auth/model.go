package auth

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Record is the durable part of a session.
type Record struct {
	Token  string
	Expiry time.Time
}

type Snapshot struct {
	HasToken       bool
	Expiry         time.Time
	Authenticated  bool
	FailedAttempts int
	LastAttempt    time.Time
	Locked         bool
}

var ErrInvalidCredentials = errors.New("invalid credentials")

// LockoutError blocks a login submission while too many attempts have failed
// inside the lockout window.
type LockoutError struct {
	Attempts  int
	Remaining time.Duration
	Err       error
}

func (e *LockoutError) Error() string {
	minutes := int(math.Ceil(e.Remaining.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	unit := "minutes"
	if minutes == 1 {
		unit = "minute"
	}
	return fmt.Sprintf("login temporarily locked, try again in %d %s", minutes, unit)
}

func (e *LockoutError) Unwrap() error {
	return e.Err
}
