package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// FailureKind classifies why a stream ended without Done.
type FailureKind int

const (
	ConnectionRefused FailureKind = iota + 1
	Timeout
	ProtocolError
	ServerError
)

func (k FailureKind) String() string {
	switch k {
	case ConnectionRefused:
		return "connection refused"
	case Timeout:
		return "timeout"
	case ProtocolError:
		return "protocol error"
	case ServerError:
		return "server error"
	default:
		return fmt.Sprintf("failure(%d)", int(k))
	}
}

// Failure is the typed error carried by EventFailed.
type Failure struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Message == "" {
		return f.Kind.String()
	}
	return f.Kind.String() + ": " + f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// NewProtocolError reports a response the adapter could not interpret.
func NewProtocolError(format string, args ...any) *Failure {
	return &Failure{Kind: ProtocolError, Message: fmt.Sprintf(format, args...)}
}

// NewServerError reports an error the server returned explicitly.
func NewServerError(format string, args ...any) *Failure {
	return &Failure{Kind: ServerError, Message: fmt.Sprintf(format, args...)}
}

// Classify maps a transport error onto a Failure. Errors that are already a
// *Failure are returned unchanged.
func Classify(err error) *Failure {
	if err == nil {
		return nil
	}

	var f *Failure
	if errors.As(err, &f) {
		return f
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return &Failure{Kind: ConnectionRefused, Message: err.Error(), Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Failure{Kind: Timeout, Message: err.Error(), Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Failure{Kind: Timeout, Message: err.Error(), Err: err}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return &Failure{Kind: ConnectionRefused, Message: err.Error(), Err: err}
	}

	if errors.Is(err, io.ErrUnexpectedEOF) {
		return &Failure{Kind: ProtocolError, Message: "stream ended unexpectedly", Err: err}
	}

	return &Failure{Kind: ProtocolError, Message: err.Error(), Err: err}
}
