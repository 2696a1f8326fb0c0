package ctv

import (
	"errors"
	"fmt"
)

// Protocol violations: a run relies on tracked state that no earlier run
// has set. They mean the stream was produced by a mismatched encoder or has
// been corrupted.
var (
	ErrNoCoordinates = errors.New("ctv: no coordinates for first pixel")
	ErrNoForeground  = errors.New("ctv: no foreground color available")
	ErrNoCharacter   = errors.New("ctv: no character available")
	ErrReservedFlags = errors.New("ctv: reserved command flags set")
	ErrZeroRun       = errors.New("ctv: zero-length run")
)

// Range violations detected before anything is written.
var (
	ErrCoordinateRange = errors.New("ctv: coordinate outside int16 range")
	ErrInvalidChar     = errors.New("ctv: invalid character")
	ErrFrameTooLarge   = errors.New("ctv: frame exceeds 4 GiB")
)

// ParseError records where decoding failed. Frame is -1 for the stream
// header. Truncated input unwraps to io.ErrUnexpectedEOF.
type ParseError struct {
	Frame  int
	Field  string
	Offset int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Frame < 0 {
		return fmt.Sprintf("ctv: parse %s at offset %d: %v", e.Field, e.Offset, e.Err)
	}
	return fmt.Sprintf("ctv: frame %d: parse %s at offset %d: %v", e.Frame, e.Field, e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// CellError identifies the DiffBuffer entry that could not be encoded.
type CellError struct {
	Index int
	Err   error
}

func (e *CellError) Error() string {
	return fmt.Sprintf("ctv: cell %d: %v", e.Index, e.Err)
}

func (e *CellError) Unwrap() error {
	return e.Err
}
