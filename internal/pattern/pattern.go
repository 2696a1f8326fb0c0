package pattern

import (
	"fmt"
	"math"
	"slices"

	"github.com/zsiec/ctv/internal/glyph"
)

// Generator paints frame number frame onto g. g holds the previous frame
// when called, so a generator may repaint only what moves.
type Generator func(frame int, g *Grid)

var generators = map[string]Generator{
	"bars":   bars,
	"plasma": plasma,
	"scroll": scroll,
}

// Names returns the registered generator names, sorted.
func Names() []string {
	names := make([]string, 0, len(generators))
	for name := range generators {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Lookup returns the generator registered under name.
func Lookup(name string) (Generator, error) {
	gen, ok := generators[name]
	if !ok {
		return nil, fmt.Errorf("pattern: unknown pattern %q (have %v)", name, Names())
	}
	return gen, nil
}

// Run paints frames frames of gen on a w×h grid and passes each frame's diff
// against its predecessor to emit. The first diff holds the whole screen.
func Run(gen Generator, w, h, frames int, emit func(glyph.DiffBuffer) error) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("pattern: invalid size %dx%d", w, h)
	}
	var prev *Grid
	cur := NewGrid(w, h)
	for i := 0; i < frames; i++ {
		gen(i, cur)
		if err := emit(Diff(prev, cur)); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		if prev == nil {
			prev = cur.Clone()
		} else {
			copy(prev.cells, cur.cells)
		}
	}
	return nil
}

var (
	black    = glyph.RGB(0, 0, 0)
	barColor = []glyph.Color{
		glyph.RGB(192, 192, 192),
		glyph.RGB(192, 192, 0),
		glyph.RGB(0, 192, 192),
		glyph.RGB(0, 192, 0),
		glyph.RGB(192, 0, 192),
		glyph.RGB(192, 0, 0),
		glyph.RGB(0, 0, 192),
	}
)

// bars draws static color bars with a marker sweeping across the bottom row.
func bars(frame int, g *Grid) {
	bg := black
	for y := 0; y < g.H-1; y++ {
		for x := 0; x < g.W; x++ {
			c := barColor[x*len(barColor)/g.W]
			g.Set(x, y, glyph.Pixel{Char: '█', Fg: c, Bg: &bg})
		}
	}
	marker := frame % g.W
	for x := 0; x < g.W; x++ {
		px := glyph.Pixel{Char: '─', Fg: glyph.RGB(96, 96, 96), Bg: &bg}
		if x == marker {
			px = glyph.Pixel{Char: '▲', Fg: glyph.RGB(255, 255, 255), Bg: &bg}
		}
		g.Set(x, g.H-1, px)
	}
}

const ramp = " .:-=+*#%@"

// plasma draws an animated interference field. Values are bucketed so that
// neighbouring cells often share content and form runs.
func plasma(frame int, g *Grid) {
	bg := black
	t := float64(frame)
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			fx, fy := float64(x), float64(y)
			v := math.Sin(fx/6+t/8) + math.Sin(fy/3-t/10) + math.Sin((fx+fy)/8+t/12)
			v = (v + 3) / 6
			idx := min(int(v*float64(len(ramp))), len(ramp)-1)
			level := uint8(idx * 255 / (len(ramp) - 1))
			g.Set(x, y, glyph.Pixel{
				Char: rune(ramp[idx]),
				Fg:   glyph.RGB(level, 64, 255-level),
				Bg:   &bg,
			})
		}
	}
}

const marquee = " ctv glyph stream "

// scroll moves a marquee across the middle row with a color cycling per
// frame. It leaves the rest of the screen blank.
func scroll(frame int, g *Grid) {
	y := g.H / 2
	hue := uint8(frame * 7)
	fg := glyph.RGB(255, hue, 255-hue)
	text := []rune(marquee)
	for x := 0; x < g.W; x++ {
		r := text[(x+frame)%len(text)]
		g.Set(x, y, glyph.Pixel{Char: r, Fg: fg})
	}
}
