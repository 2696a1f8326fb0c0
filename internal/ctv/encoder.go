package ctv

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"github.com/zsiec/ctv/internal/glyph"
)

// Encoder accumulates a stream in memory. The whole stream stays resident
// because the frame count and every frame length are patched in place after
// the fact.
type Encoder struct {
	buf    []byte
	frames int
	level  int
	state  runState
}

// EncoderOption configures an Encoder.
type EncoderOption func(*Encoder)

// WithCompressionLevel sets the zstd level used by Compress and Persist.
// Levels follow the zstd command line scale; the default is 3.
func WithCompressionLevel(level int) EncoderOption {
	return func(e *Encoder) {
		e.level = level
	}
}

// NewEncoder starts a stream that plays back at framerate frames per second.
func NewEncoder(framerate uint32, opts ...EncoderOption) *Encoder {
	e := &Encoder{
		buf:   make([]byte, headerSize, 4096),
		level: DefaultCompressionLevel,
	}
	binary.LittleEndian.PutUint32(e.buf[0:4], framerate)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Framerate returns the framerate written in the header.
func (e *Encoder) Framerate() uint32 {
	return binary.LittleEndian.Uint32(e.buf[0:4])
}

// FrameCount returns the number of frames encoded so far.
func (e *Encoder) FrameCount() int {
	return e.frames
}

// Len returns the size of the uncompressed stream in bytes.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// Encode appends one frame. A rejected frame is rolled back, leaving the
// stream and the tracked state exactly as they were.
func (e *Encoder) Encode(diff glyph.DiffBuffer) error {
	if e.frames == 0 {
		e.state.reset()
	}
	saved := e.state
	start := len(e.buf)
	rollback := func(err error) error {
		e.buf = e.buf[:start]
		e.state = saved
		return err
	}

	e.buf = binary.LittleEndian.AppendUint32(e.buf, 0)

	for i := 0; i < len(diff); {
		n := runLength(diff[i:])
		if err := e.appendRun(diff[i], n); err != nil {
			return rollback(&CellError{Index: i, Err: err})
		}
		i += n
	}

	length := len(e.buf) - start - frameLengthSize
	if uint64(length) > math.MaxUint32 {
		return rollback(ErrFrameTooLarge)
	}
	binary.LittleEndian.PutUint32(e.buf[start:], uint32(length))

	e.frames++
	return nil
}

// EncodeAll encodes diffs in order, stopping at the first error.
func (e *Encoder) EncodeAll(diffs []glyph.DiffBuffer) error {
	for _, diff := range diffs {
		if err := e.Encode(diff); err != nil {
			return err
		}
	}
	return nil
}

// Finalize writes the current frame count into the header. It may be called
// any number of times; encoding can continue afterwards.
func (e *Encoder) Finalize() {
	binary.LittleEndian.PutUint32(e.buf[4:8], uint32(e.frames))
}

// Bytes finalizes the stream and returns the uncompressed buffer for a
// decoder in the same process. The slice aliases the encoder's buffer and is
// only valid until the next call to Encode.
func (e *Encoder) Bytes() []byte {
	e.Finalize()
	return e.buf
}

// Compress finalizes the stream and returns it zstd-compressed.
func (e *Encoder) Compress() ([]byte, error) {
	e.Finalize()
	return compress(e.buf, e.level)
}

// WriteTo writes the compressed stream to w.
func (e *Encoder) WriteTo(w io.Writer) (int64, error) {
	data, err := e.Compress()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// Persist compresses the stream and writes it to path atomically.
func (e *Encoder) Persist(path string) error {
	data, err := e.Compress()
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// runLength counts how many leading cells continue the first one: each is
// one column further right on the same row with identical content.
func runLength(cells glyph.DiffBuffer) int {
	first := cells[0]
	n := 1
	for n < len(cells) && n < maxRunLength {
		next := cells[n]
		want := glyph.Position{X: first.Position.X + n, Y: first.Position.Y}
		if next.Position != want || !first.Pixel.SameContent(next.Pixel) {
			break
		}
		n++
	}
	return n
}

// appendRun writes one run record, emitting only the fields that differ from
// the tracked state. Only coordinates that are actually written must fit in
// int16; positions reached implicitly by continuing a row are unbounded.
func (e *Encoder) appendRun(c glyph.Cell, n int) error {
	s := &e.state
	px := c.Pixel

	var cmd byte
	if !s.hasPos || c.Position != s.pos.Next() {
		if !inInt16(c.Position.X) || !inInt16(c.Position.Y) {
			return fmt.Errorf("%w: %v", ErrCoordinateRange, c.Position)
		}
		cmd |= flagCoords
	}
	if !s.hasFG || px.Fg != s.fg {
		cmd |= flagRGB
	}
	if px.Bg != nil && (!s.hasBG || *px.Bg != s.bg) {
		cmd |= flagBG
	}
	if !s.hasChar || px.Char != s.char {
		if !utf8.ValidRune(px.Char) {
			return fmt.Errorf("%w: %U", ErrInvalidChar, px.Char)
		}
		cmd |= flagChar
	}
	if n > 1 {
		cmd |= flagRLE
	}

	buf := append(e.buf, cmd)
	if cmd&flagCoords != 0 {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(int16(c.Position.X)))
		buf = binary.LittleEndian.AppendUint16(buf, uint16(int16(c.Position.Y)))
	}
	if cmd&flagRGB != 0 {
		rgb := px.Fg.Bytes()
		buf = append(buf, rgb[:]...)
		s.fg, s.hasFG = px.Fg, true
	}
	if cmd&flagBG != 0 {
		rgb := px.Bg.Bytes()
		buf = append(buf, rgb[:]...)
		s.bg, s.hasBG = *px.Bg, true
	}
	if cmd&flagChar != 0 {
		buf = append(buf, byte(utf8.RuneLen(px.Char)))
		buf = utf8.AppendRune(buf, px.Char)
		s.char, s.hasChar = px.Char, true
	}
	if cmd&flagRLE != 0 {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(n))
	}

	e.buf = buf
	s.advance(c.Position, n)
	return nil
}
