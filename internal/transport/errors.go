package transport

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("transport: stream not found")
	ErrPayloadTooLarge = errors.New("transport: message payload exceeds 65535 bytes")
	ErrBlobTooLarge    = errors.New("transport: stream exceeds client size limit")
	ErrUnexpectedMsg   = errors.New("transport: unexpected message type")
)

// ParseError indicates a failure to parse a message field.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("transport: parse %s: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// RemoteError is a FETCH_ERROR received from the server. A CodeNotFound
// error matches ErrNotFound.
type RemoteError struct {
	FetchError
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("transport: server error %#x: %s", e.Code, e.Reason)
}

func (e *RemoteError) Is(target error) bool {
	return target == ErrNotFound && e.Code == CodeNotFound
}
