package ctv

import (
	"encoding/binary"
	"fmt"
	"io"
	"iter"
	"unicode/utf8"

	"github.com/zsiec/ctv/internal/glyph"
)

// Decoder replays a stream one frame at a time from a fully resident buffer.
// Any parse failure is sticky: once Next has returned an error it keeps
// returning that error until Rewind.
type Decoder struct {
	data       []byte
	off        int
	framerate  uint32
	frameCount uint32
	index      int
	state      runState
	err        error
}

// NewDecoder reads an uncompressed stream, such as the result of
// Encoder.Bytes. The decoder keeps a reference to data.
func NewDecoder(data []byte) (*Decoder, error) {
	if len(data) < headerSize {
		return nil, &ParseError{Frame: -1, Field: "header", Offset: len(data), Err: io.ErrUnexpectedEOF}
	}
	return &Decoder{
		data:       data,
		off:        headerSize,
		framerate:  binary.LittleEndian.Uint32(data[0:4]),
		frameCount: binary.LittleEndian.Uint32(data[4:8]),
	}, nil
}

// Decompress reads a compressed stream, such as the result of
// Encoder.Compress or the contents of a .ctv file.
func Decompress(blob []byte) (*Decoder, error) {
	data, err := decompress(blob)
	if err != nil {
		return nil, err
	}
	return NewDecoder(data)
}

// Framerate returns the playback rate recorded in the header.
func (d *Decoder) Framerate() uint32 {
	return d.framerate
}

// FrameCount returns the frame count recorded in the header. Decoding itself
// runs until the buffer is exhausted and does not rely on it.
func (d *Decoder) FrameCount() uint32 {
	return d.frameCount
}

// Index returns the number of frames decoded since the start.
func (d *Decoder) Index() int {
	return d.index
}

// Size returns the length of the uncompressed stream.
func (d *Decoder) Size() int {
	return len(d.data)
}

// More reports whether Next has another frame to return.
func (d *Decoder) More() bool {
	return d.err == nil && d.off < len(d.data)
}

// Next decodes the next frame. It returns io.EOF once every frame has been
// read.
func (d *Decoder) Next() (glyph.DiffBuffer, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.off >= len(d.data) {
		return nil, io.EOF
	}
	if d.index == 0 {
		d.state.reset()
	}

	diff, err := d.decodeFrame()
	if err != nil {
		d.err = err
		return nil, err
	}
	d.index++
	return diff, nil
}

// Frames yields every remaining frame in order. Iteration stops after the
// first error, which is yielded with a nil DiffBuffer.
func (d *Decoder) Frames() iter.Seq2[glyph.DiffBuffer, error] {
	return func(yield func(glyph.DiffBuffer, error) bool) {
		for {
			diff, err := d.Next()
			if err == io.EOF {
				return
			}
			if !yield(diff, err) || err != nil {
				return
			}
		}
	}
}

// Rewind restarts decoding from the first frame.
func (d *Decoder) Rewind() {
	d.off = headerSize
	d.index = 0
	d.err = nil
	d.state.reset()
}

func (d *Decoder) decodeFrame() (glyph.DiffBuffer, error) {
	r := &reader{data: d.data, pos: d.off, frame: d.index}

	length, err := r.readUint32("frame_length")
	if err != nil {
		return nil, err
	}
	if uint64(length) > uint64(len(d.data)-r.pos) {
		return nil, r.fail("frame_length", d.off, io.ErrUnexpectedEOF)
	}
	end := r.pos + int(length)

	// Bound the reader to this frame so a run cannot spill into the next.
	r.data = d.data[:end]

	var diff glyph.DiffBuffer
	for r.pos < end {
		diff, err = d.decodeRun(r, diff)
		if err != nil {
			return nil, err
		}
	}

	d.off = end
	return diff, nil
}

// decodeRun reads one run record and appends its expanded cells to diff.
func (d *Decoder) decodeRun(r *reader, diff glyph.DiffBuffer) (glyph.DiffBuffer, error) {
	s := &d.state
	start := r.pos

	cmd, err := r.readByte("command")
	if err != nil {
		return diff, err
	}
	if cmd&flagReserved != 0 {
		return diff, r.fail("command", start, fmt.Errorf("%w: 0x%02x", ErrReservedFlags, cmd))
	}

	var pos glyph.Position
	if cmd&flagCoords != 0 {
		x, err := r.readInt16("x")
		if err != nil {
			return diff, err
		}
		y, err := r.readInt16("y")
		if err != nil {
			return diff, err
		}
		pos = glyph.Position{X: int(x), Y: int(y)}
	} else {
		if !s.hasPos {
			return diff, r.fail("coords", start, ErrNoCoordinates)
		}
		pos = s.pos.Next()
	}

	if cmd&flagRGB != 0 {
		fg, err := r.readColor("fg")
		if err != nil {
			return diff, err
		}
		s.fg, s.hasFG = fg, true
	}
	if !s.hasFG {
		return diff, r.fail("fg", start, ErrNoForeground)
	}

	if cmd&flagBG != 0 {
		bg, err := r.readColor("bg")
		if err != nil {
			return diff, err
		}
		s.bg, s.hasBG = bg, true
	}

	if cmd&flagChar != 0 {
		n, err := r.readByte("char_length")
		if err != nil {
			return diff, err
		}
		at := r.pos
		b, err := r.readBytes("char", int(n))
		if err != nil {
			return diff, err
		}
		ch, size := utf8.DecodeRune(b)
		if size == 0 || size != len(b) || (ch == utf8.RuneError && size == 1) {
			return diff, r.fail("char", at, fmt.Errorf("%w: % x", ErrInvalidChar, b))
		}
		s.char, s.hasChar = ch, true
	}
	if !s.hasChar {
		return diff, r.fail("char", start, ErrNoCharacter)
	}

	run := 1
	if cmd&flagRLE != 0 {
		v, err := r.readUint16("run_length")
		if err != nil {
			return diff, err
		}
		if v == 0 {
			return diff, r.fail("run_length", r.pos-2, ErrZeroRun)
		}
		run = int(v)
	}

	var bg *glyph.Color
	if s.hasBG {
		c := s.bg
		bg = &c
	}
	for i := 0; i < run; i++ {
		p := glyph.Position{X: pos.X + i, Y: pos.Y}
		diff = append(diff, glyph.Cell{
			Position: p,
			Pixel:    glyph.Pixel{Char: s.char, Fg: s.fg, Bg: bg, Position: p},
		})
	}

	s.advance(pos, run)
	return diff, nil
}
