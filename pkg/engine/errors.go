package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures for display.
type ErrorKind int

const (
	// KindValidation is an operation rejected synchronously with no state
	// change: empty input, or an operation not allowed in the current state.
	KindValidation ErrorKind = iota + 1

	// KindTransport is a backend stream failure. The turn ends with an
	// error status and the conversation is otherwise intact.
	KindTransport

	// KindPersistence is a storage read or write failure.
	KindPersistence

	// KindCorrupt is a stored record that cannot be decoded.
	KindCorrupt
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	case KindPersistence:
		return "persistence"
	case KindCorrupt:
		return "corrupt record"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the typed failure returned by engine operations and surfaced in
// snapshots.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	ErrEmptyInput     = errors.New("input is empty")
	ErrEmptyTitle     = errors.New("title is empty")
	ErrTurnActive     = errors.New("a turn is in progress")
	ErrNotIdle        = errors.New("engine is not idle")
	ErrSwitching      = errors.New("a conversation switch is in progress")
	ErrNoConversation = errors.New("no active conversation")
	ErrNothingToRetry = errors.New("last message is not a failed reply")
	ErrNothingToFlush = errors.New("no flush is pending")
	ErrUnknownID      = errors.New("unknown conversation")
	ErrClosed         = errors.New("engine closed")
)

func validation(op string, err error) *Error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
