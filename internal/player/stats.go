package player

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is a point-in-time view of playback progress.
type Snapshot struct {
	FramesShown    int64   `json:"framesShown"`
	TotalFrames    int64   `json:"totalFrames"`
	CellsRendered  int64   `json:"cellsRendered"`
	LastFrameCells int     `json:"lastFrameCells"`
	BufferedFrames int     `json:"bufferedFrames"`
	RenderMsAvg    float64 `json:"renderMsAvg"`
	IdleMsAvg      float64 `json:"idleMsAvg"`
	IdleMsLast     float64 `json:"idleMsLast"`
	LateFrames     int64   `json:"lateFrames"`
	TargetFPS      float64 `json:"targetFps"`
	ActualFPS      float64 `json:"actualFps"`
	PlaybackSpeed  float64 `json:"playbackSpeed"`
	ElapsedMs      int64   `json:"elapsedMs"`
}

// Stats accumulates playback telemetry. The playback goroutine writes it and
// any goroutine may take Snapshots.
type Stats struct {
	totalFrames int64
	targetFPS   float64

	buffered atomic.Int32

	mu         sync.Mutex
	startedAt  time.Time
	lastAt     time.Time
	frames     int64
	cells      int64
	lastCells  int
	renderTime time.Duration
	idleTime   time.Duration
	lastIdle   time.Duration
	late       int64
}

func newStats(totalFrames int64, targetFPS float64) *Stats {
	return &Stats{totalFrames: totalFrames, targetFPS: targetFPS}
}

func (s *Stats) setBuffered(n int) {
	s.buffered.Store(int32(n))
}

func (s *Stats) start(t time.Time) {
	s.mu.Lock()
	s.startedAt = t
	s.mu.Unlock()
}

// recordFrame logs one rendered frame. late marks a paced frame that
// finished after its slot had already ended.
func (s *Stats) recordFrame(cells int, render, idle time.Duration, late bool, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frames++
	s.cells += int64(cells)
	s.lastCells = cells
	s.renderTime += render
	s.idleTime += idle
	s.lastIdle = idle
	s.lastAt = now
	if late {
		s.late++
	}
}

// Snapshot returns the current statistics.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		FramesShown:    s.frames,
		TotalFrames:    s.totalFrames,
		CellsRendered:  s.cells,
		LastFrameCells: s.lastCells,
		BufferedFrames: int(s.buffered.Load()),
		IdleMsLast:     ms(s.lastIdle),
		LateFrames:     s.late,
		TargetFPS:      s.targetFPS,
	}
	if s.frames > 0 {
		snap.RenderMsAvg = ms(s.renderTime) / float64(s.frames)
		snap.IdleMsAvg = ms(s.idleTime) / float64(s.frames)
	}
	if !s.startedAt.IsZero() {
		elapsed := s.lastAt.Sub(s.startedAt)
		snap.ElapsedMs = elapsed.Milliseconds()
		if elapsed > 0 {
			snap.ActualFPS = float64(s.frames) / elapsed.Seconds()
		}
	}
	if s.targetFPS > 0 {
		snap.PlaybackSpeed = snap.ActualFPS / s.targetFPS
	}
	return snap
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
