package models

import (
	"errors"
	"fmt"
)

// ErrSessionExpired matches any *SessionExpiredError via errors.Is.
var ErrSessionExpired = errors.New("session expired")

// ConfigError reports missing or invalid configuration. It is raised before
// any browser or network activity.
type ConfigError struct {
	Portal string
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: %s", e.Field)
	if e.Portal != "" {
		msg = fmt.Sprintf("config: portal %s: %s", e.Portal, e.Field)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// AuthError is a fatal authentication failure for the current job.
type AuthError struct {
	Portal string
	Stage  string
	Err    error
	// Screenshot is the diagnostic capture taken before failing, if any.
	Screenshot string
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("auth failed at %s", e.Stage)
	if e.Portal != "" {
		msg = fmt.Sprintf("auth failed for %s at %s", e.Portal, e.Stage)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// SessionExpiredError is returned when an authenticated request or page shows
// that the portal no longer accepts the session.
type SessionExpiredError struct {
	Location string
}

func (e *SessionExpiredError) Error() string {
	if e.Location == "" {
		return ErrSessionExpired.Error()
	}
	return fmt.Sprintf("%s: redirected to %s", ErrSessionExpired, e.Location)
}

func (e *SessionExpiredError) Is(target error) bool {
	return target == ErrSessionExpired
}

// ItemError is a recoverable failure scoped to a single work item.
type ItemError struct {
	Item  string
	Stage string
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %s: %s: %v", e.Item, e.Stage, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err must abort the job.
func IsFatal(err error) bool {
	var cfgErr *ConfigError
	var authErr *AuthError
	return errors.As(err, &cfgErr) || errors.As(err, &authErr)
}
