package vast

import (
	"errors"
	"fmt"
	"strings"
)

// AuthError means the provider rejected the API key. Fatal: retrying with
// the same credential cannot succeed.
type AuthError struct {
	Status int // HTTP status the provider answered with (401 or 403)
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("api key rejected (HTTP %d)", e.Status)
}

// NotFoundError means the configured target matched no rented instance.
// Returned by VerifyTarget so a stale target fails at startup rather than
// at shutdown time.
type NotFoundError struct {
	Target string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no instance matches target %q", e.Target)
}

// RemoteError is a failed provider call. Transient failures (network
// errors, timeouts, 5xx) are worth retrying; permanent ones are not.
type RemoteError struct {
	Op        string
	Status    int    // HTTP status, 0 when no response arrived
	Message   string // provider-supplied message, when present
	Transient bool
	Err       error
}

func (e *RemoteError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Status != 0 {
		fmt.Fprintf(&b, ": HTTP %d", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RemoteError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a provider failure worth retrying.
func IsTransient(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Transient
}

// IsAuth reports whether err is a rejected credential.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsNotFound reports whether err is an unmatched target.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
