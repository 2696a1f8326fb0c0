package ctv

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/zsiec/ctv/internal/glyph"
)

// Command byte flags.
const (
	flagCoords byte = 0x01 // x, y as int16
	flagRGB    byte = 0x02 // foreground r, g, b
	flagBG     byte = 0x04 // background r, g, b
	flagChar   byte = 0x08 // length-prefixed UTF-8 code point
	flagRLE    byte = 0x10 // uint16 run length

	flagReserved = ^(flagCoords | flagRGB | flagBG | flagChar | flagRLE)
)

const (
	headerSize      = 8
	frameLengthSize = 4
	maxRunLength    = math.MaxUint16
)

// Ext is the file extension for persisted streams.
const Ext = ".ctv"

// runState is the value every field holds after the most recent run. Encoder
// and decoder each own one and must evolve it identically; it is cleared only
// before the first frame of a stream.
type runState struct {
	pos     glyph.Position
	fg      glyph.Color
	bg      glyph.Color
	char    rune
	hasPos  bool
	hasFG   bool
	hasBG   bool
	hasChar bool
}

func (s *runState) reset() {
	*s = runState{}
}

// advance records that a run of n cells starting at start was emitted.
func (s *runState) advance(start glyph.Position, n int) {
	s.pos = glyph.Position{X: start.X + n - 1, Y: start.Y}
	s.hasPos = true
}

func inInt16(v int) bool {
	return v >= math.MinInt16 && v <= math.MaxInt16
}

// reader walks a byte slice, reporting overruns as ParseErrors that carry the
// frame index and absolute offset.
type reader struct {
	data  []byte
	pos   int
	frame int
}

func (r *reader) fail(field string, at int, err error) error {
	return &ParseError{Frame: r.frame, Field: field, Offset: at, Err: err}
}

func (r *reader) readBytes(field string, n int) ([]byte, error) {
	if n > len(r.data)-r.pos {
		return nil, r.fail(field, r.pos, io.ErrUnexpectedEOF)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) readByte(field string) (byte, error) {
	b, err := r.readBytes(field, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) readUint16(field string) (uint16, error) {
	b, err := r.readBytes(field, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) readInt16(field string) (int16, error) {
	v, err := r.readUint16(field)
	return int16(v), err
}

func (r *reader) readUint32(field string) (uint32, error) {
	b, err := r.readBytes(field, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) readColor(field string) (glyph.Color, error) {
	b, err := r.readBytes(field, 3)
	if err != nil {
		return glyph.Color{}, err
	}
	return glyph.RGB(b[0], b[1], b[2]), nil
}
