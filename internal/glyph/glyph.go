// Package glyph defines the value types shared by the frame codec and the
// player: terminal cell colors, positions, pixels, and the per-frame
// DiffBuffer that lists every cell that changed since the previous frame.
package glyph

import (
	"fmt"
	"math"
)

// Color is a foreground or background color with channels in [0, 1].
// Equality is exact; two colors that quantize to the same 8-bit value but
// differ in their float channels are different colors.
type Color struct {
	R, G, B float64
}

// RGB builds a Color from 8-bit channel values.
func RGB(r, g, b uint8) Color {
	return Color{R: Dequantize(r), G: Dequantize(g), B: Dequantize(b)}
}

// Quantize maps a channel value in [0, 1] to 0..255 by rounding to the
// nearest step. Values outside the range are clamped and NaN maps to 0.
// Encoders that truncate with int(c*255) emit different bytes for values
// between steps, so 0.999 is 255 here and 254 there.
func Quantize(c float64) uint8 {
	switch {
	case math.IsNaN(c) || c <= 0:
		return 0
	case c >= 1:
		return 255
	}
	return uint8(math.Round(c * 255))
}

// Dequantize is the inverse of Quantize for on-wire channel values.
func Dequantize(q uint8) float64 {
	return float64(q) / 255
}

// Bytes returns the quantized channels in r, g, b order.
func (c Color) Bytes() [3]byte {
	return [3]byte{Quantize(c.R), Quantize(c.G), Quantize(c.B)}
}

// Quantized returns the color after a round trip through 8-bit channels.
func (c Color) Quantized() Color {
	b := c.Bytes()
	return RGB(b[0], b[1], b[2])
}

func (c Color) String() string {
	b := c.Bytes()
	return fmt.Sprintf("#%02x%02x%02x", b[0], b[1], b[2])
}

// Position is a terminal cell coordinate.
type Position struct {
	X, Y int
}

// Next returns the cell immediately to the right on the same row.
func (p Position) Next() Position {
	return Position{X: p.X + 1, Y: p.Y}
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Pixel is one glyph cell. Bg is nil when the cell has no background color.
type Pixel struct {
	Char     rune
	Fg       Color
	Bg       *Color
	Position Position
}

// SameContent reports whether two pixels render identically, ignoring
// their positions.
func (p Pixel) SameContent(o Pixel) bool {
	if p.Char != o.Char || p.Fg != o.Fg {
		return false
	}
	if (p.Bg == nil) != (o.Bg == nil) {
		return false
	}
	return p.Bg == nil || *p.Bg == *o.Bg
}

// Cell pairs a changed position with the pixel now drawn there.
type Cell struct {
	Position Position
	Pixel    Pixel
}

// DiffBuffer is the ordered list of cells that changed in one frame. Order is
// preserved by the codec; row-major order gives the best run-length
// compression.
type DiffBuffer []Cell

// Append adds a pixel at its own position.
func (d DiffBuffer) Append(p Pixel) DiffBuffer {
	return append(d, Cell{Position: p.Position, Pixel: p})
}

// Text lays out s left to right starting at pos, one cell per rune.
func Text(s string, fg Color, bg *Color, pos Position) DiffBuffer {
	var d DiffBuffer
	i := 0
	for _, r := range s {
		at := Position{X: pos.X + i, Y: pos.Y}
		d = d.Append(Pixel{Char: r, Fg: fg, Bg: bg, Position: at})
		i++
	}
	return d
}
