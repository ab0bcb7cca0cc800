package storage

import "errors"

// ErrClosed is returned by drivers used after Close.
var ErrClosed = errors.New("storage driver closed")

// NotFoundError is returned when a conversation doesn't exist in the store.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "conversation not found"
	}

	return "conversation not found: " + e.ID
}

// CorruptRecordError is returned when a record exists but cannot be decoded.
type CorruptRecordError struct {
	ID  string
	Err error
}

func (e CorruptRecordError) Error() string {
	msg := "corrupt conversation record"
	if e.ID != "" {
		msg += " " + e.ID
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e CorruptRecordError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// IsCorrupt reports whether err is a CorruptRecordError.
func IsCorrupt(err error) bool {
	var cr CorruptRecordError
	return errors.As(err, &cr)
}
