package call

import (
	"errors"
	"fmt"

	apperrors "mediconnect-backend/pkg/errors"
)

// ErrorKind classifies call failures by how they are handled
type ErrorKind string

const (
	// KindNotFound and KindUnauthorized end the attempt before any media is touched
	KindNotFound     ErrorKind = "not_found"
	KindUnauthorized ErrorKind = "unauthorized"
	KindLoad         ErrorKind = "load"
	KindMediaAccess  ErrorKind = "media_access"
	// KindSignaling and KindPeerConnection move an active call to error
	KindSignaling      ErrorKind = "signaling"
	KindPeerConnection ErrorKind = "peer_connection"
	// KindTeardown is only ever logged
	KindTeardown ErrorKind = "teardown"
)

// Sentinels for errors.Is
var (
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrUnauthorized   = &Error{Kind: KindUnauthorized}
	ErrLoad           = &Error{Kind: KindLoad}
	ErrMediaAccess    = &Error{Kind: KindMediaAccess}
	ErrSignaling      = &Error{Kind: KindSignaling}
	ErrPeerConnection = &Error{Kind: KindPeerConnection}
	ErrTeardown       = &Error{Kind: KindTeardown}

	ErrClosed    = errors.New("call session closed")
	ErrNotActive = errors.New("call is not active")
	// ErrBadDescriptor is wrapped by peers that cannot decode a descriptor
	// or do not accept its type. Redelivery cannot fix it.
	ErrBadDescriptor = errors.New("malformed descriptor")
)

// Error is a call failure with the message shown to the user
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error returns the user-facing message; the cause stays reachable through Unwrap
func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

func newError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// loadError maps a loader failure onto the call taxonomy
func loadError(err error) *Error {
	switch {
	case apperrors.HasCode(err, apperrors.ErrCodeAppointmentNotFound),
		apperrors.HasCode(err, apperrors.ErrCodeNotFound):
		return newError(KindNotFound, "Appointment not found", err)
	case apperrors.HasCode(err, apperrors.ErrCodeNotParticipant),
		apperrors.HasCode(err, apperrors.ErrCodeForbidden),
		apperrors.HasCode(err, apperrors.ErrCodeUnauthorized):
		return newError(KindUnauthorized, "You are not authorized to join this call", err)
	default:
		return newError(KindLoad, "Failed to load appointment details", err)
	}
}

func mediaError(err error) *Error {
	return newError(KindMediaAccess, fmt.Sprintf("Failed to access camera/microphone: %v", err), err)
}

func signalingError(err error) *Error {
	return newError(KindSignaling, "Connection failed: Could not exchange connection data", err)
}

func peerError(err error) *Error {
	return newError(KindPeerConnection, fmt.Sprintf("Connection error: %v", err), err)
}
