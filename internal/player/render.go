package player

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/zsiec/ctv/internal/glyph"
)

// Discard accepts every frame and draws nothing. It is useful for measuring
// decode throughput.
var Discard Renderer = RendererFunc(func(context.Context, int, glyph.DiffBuffer) error {
	return nil
})

// DumpRenderer writes a line per changed cell in a plain, diffable text form:
//
//	frame 3 x=10 y=2 char='#' fg=#ff8020 bg=#000010
type DumpRenderer struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewDumpRenderer returns a DumpRenderer writing to w.
func NewDumpRenderer(w io.Writer) *DumpRenderer {
	return &DumpRenderer{w: bufio.NewWriter(w)}
}

func (d *DumpRenderer) Render(_ context.Context, frame int, diff glyph.DiffBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, c := range diff {
		px := c.Pixel
		fmt.Fprintf(d.w, "frame %d x=%d y=%d char=%q fg=%s", frame, c.Position.X, c.Position.Y, px.Char, px.Fg)
		if px.Bg != nil {
			fmt.Fprintf(d.w, " bg=%s", px.Bg)
		}
		if err := d.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return d.w.Flush()
}
