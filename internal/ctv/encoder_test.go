package ctv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/zsiec/ctv/internal/glyph"
)

var (
	red   = glyph.RGB(255, 0, 0)
	green = glyph.RGB(0, 255, 0)
	blue  = glyph.RGB(0, 0, 255)
	grey  = glyph.RGB(128, 128, 128)
)

func cell(ch rune, fg glyph.Color, bg *glyph.Color, x, y int) glyph.Cell {
	p := glyph.Position{X: x, Y: y}
	return glyph.Cell{Position: p, Pixel: glyph.Pixel{Char: ch, Fg: fg, Bg: bg, Position: p}}
}

func row(ch rune, fg glyph.Color, bg *glyph.Color, x, y, n int) glyph.DiffBuffer {
	d := make(glyph.DiffBuffer, n)
	for i := range d {
		d[i] = cell(ch, fg, bg, x+i, y)
	}
	return d
}

// frameBody returns the record bytes of frame idx in an uncompressed stream.
func frameBody(t *testing.T, data []byte, idx int) []byte {
	t.Helper()
	off := headerSize
	for i := 0; ; i++ {
		if off+frameLengthSize > len(data) {
			t.Fatalf("stream has no frame %d", idx)
		}
		n := int(binary.LittleEndian.Uint32(data[off:]))
		body := data[off+frameLengthSize : off+frameLengthSize+n]
		if i == idx {
			return body
		}
		off += frameLengthSize + n
	}
}

func TestEncodeSinglePixelBytes(t *testing.T) {
	t.Parallel()
	enc := NewEncoder(24)
	if err := enc.Encode(glyph.DiffBuffer{cell('A', red, nil, 0, 0)}); err != nil {
		t.Fatal(err)
	}

	want := []byte{
		24, 0, 0, 0, // framerate
		1, 0, 0, 0, // frame count
		10, 0, 0, 0, // frame length
		flagCoords | flagRGB | flagChar,
		0, 0, 0, 0, // x, y
		255, 0, 0, // fg
		1, 'A', // char
	}
	if got := enc.Bytes(); !bytes.Equal(got, want) {
		t.Fatalf("bytes = % x\nwant    % x", got, want)
	}
}

func TestEncodeRunOfTen(t *testing.T) {
	t.Parallel()
	enc := NewEncoder(30)
	if err := enc.Encode(row('#', green, nil, 0, 0, 10)); err != nil {
		t.Fatal(err)
	}

	body := frameBody(t, enc.Bytes(), 0)
	want := []byte{
		flagCoords | flagRGB | flagChar | flagRLE,
		0, 0, 0, 0,
		0, 255, 0,
		1, '#',
		10, 0,
	}
	if !bytes.Equal(body, want) {
		t.Fatalf("frame = % x, want % x", body, want)
	}
}

func TestEncodeRunSplitsAtUint16(t *testing.T) {
	t.Parallel()
	enc := NewEncoder(30)
	if err := enc.Encode(row('.', grey, nil, 0, 3, 70000)); err != nil {
		t.Fatal(err)
	}

	body := frameBody(t, enc.Bytes(), 0)
	want := []byte{
		flagCoords | flagRGB | flagChar | flagRLE,
		0, 0, 3, 0,
		128, 128, 128,
		1, '.',
		0xff, 0xff, // 65535
		flagRLE,
		0x71, 0x11, // 4465
	}
	if !bytes.Equal(body, want) {
		t.Fatalf("frame = % x, want % x", body, want)
	}
}

func TestEncodeFirstRunCarriesAllFlags(t *testing.T) {
	t.Parallel()
	// Black space at the origin looks like a plausible default but must still
	// be spelled out in full.
	enc := NewEncoder(1)
	if err := enc.Encode(glyph.DiffBuffer{cell(' ', glyph.Color{}, nil, 0, 0)}); err != nil {
		t.Fatal(err)
	}
	cmd := frameBody(t, enc.Bytes(), 0)[0]
	for _, f := range []byte{flagCoords, flagRGB, flagChar} {
		if cmd&f == 0 {
			t.Errorf("cmd = %#02x, missing flag %#02x", cmd, f)
		}
	}
	if cmd&(flagBG|flagRLE) != 0 {
		t.Errorf("cmd = %#02x, unexpected BG or RLE", cmd)
	}
}

func TestEncodeOmitsUnchangedFields(t *testing.T) {
	t.Parallel()
	enc := NewEncoder(1)
	diff := glyph.DiffBuffer{
		cell('a', red, nil, 0, 0),
		cell('b', red, nil, 1, 0),  // char only
		cell('b', blue, nil, 2, 0), // fg only
		cell('b', blue, nil, 7, 0), // coords only
	}
	if err := enc.Encode(diff); err != nil {
		t.Fatal(err)
	}

	body := frameBody(t, enc.Bytes(), 0)
	want := []byte{
		flagCoords | flagRGB | flagChar, 0, 0, 0, 0, 255, 0, 0, 1, 'a',
		flagChar, 1, 'b',
		flagRGB, 0, 0, 255,
		flagCoords, 7, 0, 0, 0,
	}
	if !bytes.Equal(body, want) {
		t.Fatalf("frame = % x\nwant    % x", body, want)
	}
}

func TestEncodeCarriesStateAcrossFrames(t *testing.T) {
	t.Parallel()
	enc := NewEncoder(1)
	if err := enc.Encode(glyph.DiffBuffer{cell('x', red, nil, 4, 2)}); err != nil {
		t.Fatal(err)
	}
	if err := enc.Encode(glyph.DiffBuffer{cell('x', red, nil, 5, 2)}); err != nil {
		t.Fatal(err)
	}

	body := frameBody(t, enc.Bytes(), 1)
	if want := []byte{0}; !bytes.Equal(body, want) {
		t.Fatalf("second frame = % x, want % x", body, want)
	}
}

func TestEncodeBackgroundOnlyWhenChanged(t *testing.T) {
	t.Parallel()
	enc := NewEncoder(1)
	diff := glyph.DiffBuffer{
		cell('a', red, &blue, 0, 0),
		cell('b', red, &blue, 1, 0),
		cell('c', red, nil, 2, 0),
		cell('d', red, &green, 3, 0),
	}
	if err := enc.Encode(diff); err != nil {
		t.Fatal(err)
	}

	body := frameBody(t, enc.Bytes(), 0)
	want := []byte{
		flagCoords | flagRGB | flagBG | flagChar, 0, 0, 0, 0, 255, 0, 0, 0, 0, 255, 1, 'a',
		flagChar, 1, 'b',
		flagChar, 1, 'c',
		flagBG | flagChar, 0, 255, 0, 1, 'd',
	}
	if !bytes.Equal(body, want) {
		t.Fatalf("frame = % x\nwant    % x", body, want)
	}
}

func TestEncodeMultiByteChar(t *testing.T) {
	t.Parallel()
	enc := NewEncoder(1)
	if err := enc.Encode(glyph.DiffBuffer{cell('█', red, nil, 0, 0)}); err != nil {
		t.Fatal(err)
	}
	body := frameBody(t, enc.Bytes(), 0)
	want := []byte{3, 0xe2, 0x96, 0x88}
	if got := body[len(body)-4:]; !bytes.Equal(got, want) {
		t.Fatalf("char field = % x, want % x", got, want)
	}
}

func TestEncodeEmptyFrame(t *testing.T) {
	t.Parallel()
	enc := NewEncoder(10)
	if err := enc.Encode(nil); err != nil {
		t.Fatal(err)
	}
	want := []byte{10, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0}
	if got := enc.Bytes(); !bytes.Equal(got, want) {
		t.Fatalf("bytes = % x, want % x", got, want)
	}
}

func TestEncodeCoordinateRange(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		pos  glyph.Position
	}{
		{"x too large", glyph.Position{X: 32768}},
		{"x too small", glyph.Position{X: -32769}},
		{"y too large", glyph.Position{Y: 40000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := NewEncoder(1)
			err := enc.Encode(glyph.DiffBuffer{cell('a', red, nil, tt.pos.X, tt.pos.Y)})
			if !errors.Is(err, ErrCoordinateRange) {
				t.Fatalf("err = %v, want ErrCoordinateRange", err)
			}
		})
	}

	enc := NewEncoder(1)
	edge := glyph.DiffBuffer{cell('a', red, nil, -32768, 32767), cell('b', red, nil, 32767, -32768)}
	if err := enc.Encode(edge); err != nil {
		t.Fatalf("int16 extremes rejected: %v", err)
	}
}

func TestEncodeRejectedFrameRollsBack(t *testing.T) {
	t.Parallel()
	enc := NewEncoder(1)
	if err := enc.Encode(glyph.DiffBuffer{cell('a', red, nil, 0, 0)}); err != nil {
		t.Fatal(err)
	}
	before := append([]byte(nil), enc.Bytes()...)

	bad := glyph.DiffBuffer{
		cell('z', blue, nil, 1, 0),
		cell('z', blue, nil, 50000, 0),
	}
	err := enc.Encode(bad)
	var ce *CellError
	if !errors.As(err, &ce) || ce.Index != 1 {
		t.Fatalf("err = %v, want CellError at index 1", err)
	}
	if enc.FrameCount() != 1 {
		t.Fatalf("FrameCount = %d after rejected frame, want 1", enc.FrameCount())
	}
	if !bytes.Equal(enc.Bytes(), before) {
		t.Fatal("rejected frame left bytes behind")
	}

	// State must be the pre-failure state: 'a' red at (0,0).
	if err := enc.Encode(glyph.DiffBuffer{cell('a', red, nil, 1, 0)}); err != nil {
		t.Fatal(err)
	}
	if body := frameBody(t, enc.Bytes(), 1); !bytes.Equal(body, []byte{0}) {
		t.Fatalf("frame after rollback = % x, want 00", body)
	}
}

func TestEncodeInvalidChar(t *testing.T) {
	t.Parallel()
	enc := NewEncoder(1)
	err := enc.Encode(glyph.DiffBuffer{cell(0xD800, red, nil, 0, 0)})
	if !errors.Is(err, ErrInvalidChar) {
		t.Fatalf("err = %v, want ErrInvalidChar", err)
	}
}

func TestFinalizePatchesFrameCount(t *testing.T) {
	t.Parallel()
	enc := NewEncoder(60)
	for range 3 {
		if err := enc.Encode(glyph.DiffBuffer{cell('a', red, nil, 0, 0)}); err != nil {
			t.Fatal(err)
		}
	}
	data := enc.Bytes()
	if n := binary.LittleEndian.Uint32(data[4:8]); n != 3 {
		t.Fatalf("frame count = %d, want 3", n)
	}
	if enc.Framerate() != 60 {
		t.Fatalf("Framerate = %d, want 60", enc.Framerate())
	}
	if enc.Len() != len(data) {
		t.Fatalf("Len = %d, want %d", enc.Len(), len(data))
	}
}
