package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zsiec/ctv/internal/ctv"
	"github.com/zsiec/ctv/internal/glyph"
	"github.com/zsiec/ctv/internal/pattern"
	"github.com/zsiec/ctv/internal/player"
)

func runGen(_ context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "gen", "<out.ctv>")
	patternFlag := fs.String("pattern", "plasma", "pattern: "+strings.Join(pattern.Names(), ", "))
	sizeFlag := fs.String("size", "80x24", "screen size in cells, WxH")
	framesFlag := fs.Int("frames", 90, "number of frames")
	framerateFlag := fs.Uint("framerate", uint(e.cfg.Encode.Framerate), "playback framerate")
	levelFlag := fs.Int("level", e.cfg.Encode.CompressionLevel, "zstd compression level")
	if err := parse(fs, args, 1); err != nil {
		return err
	}

	gen, err := pattern.Lookup(*patternFlag)
	if err != nil {
		return err
	}
	w, h, err := parseSize(*sizeFlag)
	if err != nil {
		return err
	}
	if *framerateFlag == 0 || uint64(*framerateFlag) > math.MaxUint32 {
		return fmt.Errorf("framerate %d out of range", *framerateFlag)
	}

	enc := ctv.NewEncoder(uint32(*framerateFlag), ctv.WithCompressionLevel(*levelFlag))
	cells := 0
	if err := pattern.Run(gen, w, h, *framesFlag, func(d glyph.DiffBuffer) error {
		cells += len(d)
		return enc.Encode(d)
	}); err != nil {
		return err
	}

	out := fs.Arg(0)
	if err := enc.Persist(out); err != nil {
		return err
	}
	fi, err := os.Stat(out)
	if err != nil {
		return err
	}
	slog.Info("stream written",
		"path", out,
		"pattern", *patternFlag,
		"frames", enc.FrameCount(),
		"cells", cells,
		"raw_bytes", enc.Len(),
		"compressed_bytes", fi.Size(),
	)
	return nil
}

func parseSize(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("size %q: want WxH", s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil || w <= 0 {
		return 0, 0, fmt.Errorf("size %q: bad width", s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h <= 0 {
		return 0, 0, fmt.Errorf("size %q: bad height", s)
	}
	return w, h, nil
}

func runInfo(_ context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "info", "<file.ctv>")
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	path := fs.Arg(0)
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	d, err := ctv.Open(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(e.stdout, "file:        %s\n", path)
	fmt.Fprintf(e.stdout, "framerate:   %d\n", d.Framerate())
	fmt.Fprintf(e.stdout, "frames:      %d\n", d.FrameCount())
	fmt.Fprintf(e.stdout, "duration:    %s\n", duration(d.FrameCount(), d.Framerate()))
	fmt.Fprintf(e.stdout, "raw bytes:   %d\n", d.Size())
	fmt.Fprintf(e.stdout, "compressed:  %d\n", fi.Size())
	return nil
}

func duration(frames, framerate uint32) time.Duration {
	if framerate == 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(framerate)
}

func runVerify(_ context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "verify", "<file.ctv>")
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	d, err := ctv.Open(fs.Arg(0))
	if err != nil {
		return err
	}

	frames, cells := 0, 0
	for diff, err := range d.Frames() {
		if err != nil {
			return fmt.Errorf("verify %s: %w", fs.Arg(0), err)
		}
		frames++
		cells += len(diff)
	}
	if uint32(frames) != d.FrameCount() {
		return fmt.Errorf("verify %s: decoded %d frames, header says %d", fs.Arg(0), frames, d.FrameCount())
	}
	fmt.Fprintf(e.stdout, "ok: %d frames, %d cells\n", frames, cells)
	return nil
}

func runPlay(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "play", "<file.ctv | name>")
	speedFlag := fs.Float64("speed", e.cfg.Play.Speed, "playback speed factor")
	bufferFlag := fs.Int("buffer", e.cfg.Play.Buffer, "frames decoded ahead")
	unpacedFlag := fs.Bool("unpaced", e.cfg.Play.Unpaced, "render frames as fast as they decode")
	discardFlag := fs.Bool("discard", false, "decode without printing cells")
	addrFlag := fs.String("addr", "", "fetch the stream from this server instead of a file")
	fpFlag := fs.String("fingerprint", "", "server certificate SHA-256, hex (with -addr)")
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	if *speedFlag <= 0 {
		return fmt.Errorf("speed must be positive, got %v", *speedFlag)
	}

	var (
		d   *ctv.Decoder
		err error
	)
	if *addrFlag != "" {
		d, err = fetchDecoder(ctx, *addrFlag, *fpFlag, fs.Arg(0))
	} else {
		d, err = ctv.Open(fs.Arg(0))
	}
	if err != nil {
		return err
	}

	var r player.Renderer = player.Discard
	if !*discardFlag {
		r = player.NewDumpRenderer(e.stdout)
	}
	p := player.New(d, r, player.Config{
		Speed:   *speedFlag,
		Unpaced: *unpacedFlag,
		Buffer:  *bufferFlag,
	})
	runErr := p.Run(ctx)

	snap := p.Stats().Snapshot()
	slog.Info("playback stats",
		"frames_shown", snap.FramesShown,
		"total_frames", snap.TotalFrames,
		"cells", snap.CellsRendered,
		"idle_ms_avg", snap.IdleMsAvg,
		"late_frames", snap.LateFrames,
		"target_fps", snap.TargetFPS,
		"actual_fps", snap.ActualFPS,
		"speed", snap.PlaybackSpeed,
	)
	return runErr
}
