// Package pattern produces synthetic glyph animations and turns consecutive
// frames into the row-major diffs the encoder consumes. It stands in for a
// real video-to-glyph converter when generating test streams.
package pattern

import (
	"github.com/zsiec/ctv/internal/glyph"
)

// Grid is a W×H screen of glyphs. A cell whose Char is zero is blank and is
// never emitted by Diff.
type Grid struct {
	W, H  int
	cells []glyph.Pixel
}

// NewGrid returns a blank grid.
func NewGrid(w, h int) *Grid {
	return &Grid{W: w, H: h, cells: make([]glyph.Pixel, w*h)}
}

// Set stores px at (x, y); out-of-bounds writes are ignored.
func (g *Grid) Set(x, y int, px glyph.Pixel) {
	if x < 0 || y < 0 || x >= g.W || y >= g.H {
		return
	}
	px.Position = glyph.Position{X: x, Y: y}
	g.cells[y*g.W+x] = px
}

// At returns the pixel at (x, y).
func (g *Grid) At(x, y int) glyph.Pixel {
	return g.cells[y*g.W+x]
}

// Clone returns a deep copy of g.
func (g *Grid) Clone() *Grid {
	c := &Grid{W: g.W, H: g.H, cells: make([]glyph.Pixel, len(g.cells))}
	copy(c.cells, g.cells)
	return c
}

// Diff lists, in row-major order, the non-blank cells of next that differ
// from prev. A nil prev yields every non-blank cell. Grids must be the same
// size.
func Diff(prev, next *Grid) glyph.DiffBuffer {
	var diff glyph.DiffBuffer
	for i, px := range next.cells {
		if px.Char == 0 {
			continue
		}
		if prev != nil && prev.cells[i].SameContent(px) {
			continue
		}
		diff = diff.Append(px)
	}
	return diff
}
