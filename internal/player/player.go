// Package player replays a decoded glyph stream at its recorded framerate,
// handing each frame to a Renderer while collecting playback statistics.
package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/ctv/internal/glyph"
)

// DefaultBuffer is how many frames the decoder may run ahead of playback.
const DefaultBuffer = 30

// Source yields frames in order, returning io.EOF after the last one.
// *ctv.Decoder satisfies it.
type Source interface {
	Next() (glyph.DiffBuffer, error)
	Framerate() uint32
	FrameCount() uint32
}

// Renderer turns one decoded frame into output. Frames arrive in stream
// order; frame is the zero-based index.
type Renderer interface {
	Render(ctx context.Context, frame int, diff glyph.DiffBuffer) error
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(ctx context.Context, frame int, diff glyph.DiffBuffer) error

func (f RendererFunc) Render(ctx context.Context, frame int, diff glyph.DiffBuffer) error {
	return f(ctx, frame, diff)
}

// Config controls pacing.
type Config struct {
	// Speed scales the recorded framerate; 0 means 1.
	Speed float64
	// Unpaced renders frames as fast as the renderer accepts them.
	Unpaced bool
	// Buffer is the decode-ahead depth; 0 means DefaultBuffer.
	Buffer int
	// Log defaults to slog.Default().
	Log *slog.Logger
}

// Player drives one playback of a Source.
type Player struct {
	log      *slog.Logger
	src      Source
	renderer Renderer
	cfg      Config
	stats    *Stats
}

type decoded struct {
	index int
	diff  glyph.DiffBuffer
}

// New creates a Player. The Source must not be used by anyone else while
// the player runs.
func New(src Source, r Renderer, cfg Config) *Player {
	if cfg.Speed <= 0 {
		cfg.Speed = 1
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	target := float64(src.Framerate()) * cfg.Speed
	return &Player{
		log:      log.With("component", "player"),
		src:      src,
		renderer: r,
		cfg:      cfg,
		stats:    newStats(int64(src.FrameCount()), target),
	}
}

// Stats returns the live statistics collector.
func (p *Player) Stats() *Stats {
	return p.stats
}

// interval is the time budget per frame, or 0 when playback is unpaced.
func (p *Player) interval() time.Duration {
	fps := float64(p.src.Framerate()) * p.cfg.Speed
	if p.cfg.Unpaced || fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}

// Run plays the stream to the end. It returns nil when every frame was
// rendered or ctx was cancelled, and the first decode or render error
// otherwise.
func (p *Player) Run(ctx context.Context) error {
	frames := make(chan decoded, p.cfg.Buffer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(frames)
		return p.decode(gctx, frames)
	})
	g.Go(func() error {
		return p.play(gctx, frames)
	})

	err := g.Wait()
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		p.log.Info("playback cancelled", "frames", p.stats.Snapshot().FramesShown)
		return nil
	}
	return err
}

// decode runs ahead of playback, filling frames until the source ends.
func (p *Player) decode(ctx context.Context, frames chan<- decoded) error {
	for i := 0; ; i++ {
		diff, err := p.src.Next()
		if err == io.EOF {
			p.log.Debug("decoder finished", "frames", i)
			return nil
		}
		if err != nil {
			return fmt.Errorf("decode frame %d: %w", i, err)
		}

		select {
		case frames <- decoded{index: i, diff: diff}:
			p.stats.setBuffered(len(frames))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// play renders frames on a fixed schedule anchored at the first frame, so a
// slow frame is made up by shorter waits afterwards instead of drifting.
func (p *Player) play(ctx context.Context, frames <-chan decoded) error {
	interval := p.interval()
	p.log.Info("playback started",
		"framerate", p.src.Framerate(),
		"speed", p.cfg.Speed,
		"interval", interval,
		"frames", p.src.FrameCount(),
	)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	var start time.Time
	for {
		var f decoded
		select {
		case <-ctx.Done():
			return ctx.Err()
		case next, ok := <-frames:
			if !ok {
				snap := p.stats.Snapshot()
				p.log.Info("playback finished",
					"frames", snap.FramesShown,
					"speed", fmt.Sprintf("%.2f", snap.PlaybackSpeed),
				)
				return nil
			}
			f = next
		}

		frameStart := time.Now()
		if start.IsZero() {
			start = frameStart
			p.stats.start(start)
		}

		if err := p.renderer.Render(ctx, f.index, f.diff); err != nil {
			return fmt.Errorf("render frame %d: %w", f.index, err)
		}

		var idle time.Duration
		late := false
		if interval > 0 {
			due := start.Add(time.Duration(f.index+1) * interval)
			if idle = time.Until(due); idle > 0 {
				timer.Reset(idle)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-timer.C:
				}
			} else {
				idle = 0
				late = true
			}
		}

		p.stats.recordFrame(len(f.diff), time.Since(frameStart)-idle, idle, late, time.Now())
	}
}
