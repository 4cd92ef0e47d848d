package session

import (
	"errors"
	"fmt"
)

var (
	ErrPeerDisconnected   = errors.New("peer disconnected")
	ErrSignaling          = errors.New("signaling relay error")
	ErrTimeout            = errors.New("timeout")
	ErrSessionClosed      = errors.New("session closed")
	ErrNotPlaying         = errors.New("session is not in the playing state")
	ErrNotYourTurn        = errors.New("not your turn")
	ErrOutOfTurn          = errors.New("out-of-turn command")
	ErrProtocolViolation  = errors.New("protocol violation")
	ErrOutOfOrderProtocol = errors.New("gameplay message before seed assignment")
	ErrResyncFailed       = errors.New("resync failed")
)

// SessionError annotates a failure with the operation that produced it.
type SessionError struct {
	Op      string
	Err     error
	Details string
}

func (e *SessionError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *SessionError {
	return &SessionError{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *SessionError {
	return &SessionError{Op: op, Err: err, Details: details}
}
