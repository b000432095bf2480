// Package stimulus issues beep, vibration and shock commands to the Pavlok API.
package stimulus

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/florianilch/pavlok/internal/session"
)

// Kind is the API route name of a stimulus.
type Kind string

const (
	Beep      Kind = "beep"
	Vibration Kind = "vibration"
	Shock     Kind = "shock"
)

// Intensity bounds accepted by the API.
const (
	MinIntensity = 1
	MaxIntensity = 255
)

var (
	// ErrLoginInProgress is returned while a login is pending.
	ErrLoginInProgress = session.ErrLoginInProgress
	// ErrNotAuthenticated is returned when no token is held.
	ErrNotAuthenticated = session.ErrNotAuthenticated
	// ErrIntensityOutOfBounds is returned for intensities outside [MinIntensity, MaxIntensity].
	ErrIntensityOutOfBounds = errors.New("intensity outside accepted bounds")
	// ErrTokenExpired is returned when the API rejected the token with 401.
	// The token has been cleared; a new login is required.
	ErrTokenExpired = errors.New("token expired")
	// ErrUnknownKind is returned for a Kind other than Beep, Vibration or Shock.
	ErrUnknownKind = errors.New("unknown stimulus kind")
)

// Valid reports whether k is one of the supported stimuli.
func (k Kind) Valid() bool {
	switch k {
	case Beep, Vibration, Shock:
		return true
	default:
		return false
	}
}

// Request is a single stimulus command.
type Request struct {
	Kind      Kind
	Intensity int
}

// Validate checks the kind and the intensity bounds.
func (r Request) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, r.Kind)
	}
	if r.Intensity < MinIntensity || r.Intensity > MaxIntensity {
		return ErrIntensityOutOfBounds
	}
	return nil
}

// TransportError reports a network failure while sending a stimulus.
type TransportError struct {
	Kind Kind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UnexpectedStatusError reports a response status other than 200 or 401.
type UnexpectedStatusError struct {
	Kind       Kind
	StatusCode int
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("%s returned unknown code: %d", e.Kind, e.StatusCode)
}

// Status returns the HTTP status text of the response.
func (e *UnexpectedStatusError) Status() string {
	return http.StatusText(e.StatusCode)
}
