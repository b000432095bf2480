package session

import "errors"

// State is the login lifecycle state of a Session.
type State int

const (
	// StateIdle means no token is held and no login is pending.
	StateIdle State = iota

	// StateAwaitingCallback means the browser was sent to the authorization
	// endpoint and the redirect has not resolved yet.
	StateAwaitingCallback

	// StateAuthenticated means a token is held.
	StateAuthenticated

	// StateFailed means the last login attempt did not yield a token.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingCallback:
		return "awaiting_callback"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrLoginInProgress rejects API calls and logins while a login is pending.
	ErrLoginInProgress = errors.New("login in progress")

	// ErrNotAuthenticated rejects API calls when no token is held.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrAuth wraps every login failure that is not a storage failure.
	ErrAuth = errors.New("authentication failed")

	// ErrLoginTimeout is reported when the redirect did not arrive in time.
	ErrLoginTimeout = errors.New("login timed out")

	// ErrNoLoginPending is returned to a redirect that arrives after its login resolved.
	ErrNoLoginPending = errors.New("no login pending")
)

// LoginResult is the outcome of one Login call: a token or an error.
type LoginResult struct {
	Token string
	Err   error
}
