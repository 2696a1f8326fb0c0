// Package library keeps the set of persisted glyph streams a process can
// serve, keyed by name, with add/remove/list operations used by the
// transport server and the CLI.
package library

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/zsiec/ctv/internal/ctv"
)

// Entry is one compressed stream held in memory.
type Entry struct {
	Key        string
	Framerate  uint32
	FrameCount uint32
	RawSize    int
	AddedAt    time.Time
	blob       []byte
}

// Blob returns the compressed stream. Callers must not modify it.
func (e *Entry) Blob() []byte {
	return e.blob
}

// Library manages the set of available streams.
type Library struct {
	log     *slog.Logger
	mu      sync.RWMutex
	entries map[string]*Entry
}

// New creates an empty library. If log is nil, slog.Default() is used.
func New(log *slog.Logger) *Library {
	if log == nil {
		log = slog.Default()
	}
	return &Library{
		log:     log.With("component", "library"),
		entries: make(map[string]*Entry),
	}
}

// Add registers a compressed stream under key after decoding every frame
// once, so a stored entry always plays to the end. It returns false if key
// is taken.
func (l *Library) Add(key string, blob []byte) (*Entry, bool, error) {
	d, err := ctv.Decompress(blob)
	if err != nil {
		return nil, false, fmt.Errorf("library: %s: %w", key, err)
	}
	for _, err := range d.Frames() {
		if err != nil {
			return nil, false, fmt.Errorf("library: %s: %w", key, err)
		}
	}

	e := &Entry{
		Key:        key,
		Framerate:  d.Framerate(),
		FrameCount: d.FrameCount(),
		RawSize:    d.Size(),
		AddedAt:    time.Now(),
		blob:       blob,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[key]; ok {
		l.log.Warn("stream already exists, rejecting duplicate", "key", key)
		return nil, false, nil
	}
	l.entries[key] = e
	l.log.Info("stream added", "key", key, "frames", e.FrameCount, "framerate", e.Framerate, "bytes", len(blob))
	return e, true, nil
}

// Get returns the entry for key.
func (l *Library) Get(key string) (*Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[key]
	return e, ok
}

// Remove drops key from the library.
func (l *Library) Remove(key string) {
	l.mu.Lock()
	_, ok := l.entries[key]
	delete(l.entries, key)
	l.mu.Unlock()

	if ok {
		l.log.Info("stream removed", "key", key)
	}
}

// List returns all entries sorted by key.
func (l *Library) List() []*Entry {
	l.mu.RLock()
	out := make([]*Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	l.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Entry) int {
		return strings.Compare(a.Key, b.Key)
	})
	return out
}

// LoadDir adds every .ctv file in dir, keyed by file name without the
// extension. Unreadable or invalid files are logged and skipped; the number
// of streams added is returned.
func (l *Library) LoadDir(dir string) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+ctv.Ext))
	if err != nil {
		return 0, err
	}

	added := 0
	for _, path := range paths {
		blob, err := os.ReadFile(path)
		if err != nil {
			l.log.Warn("skipping unreadable stream", "path", path, "error", err)
			continue
		}
		key := strings.TrimSuffix(filepath.Base(path), ctv.Ext)
		_, ok, err := l.Add(key, blob)
		if err != nil {
			l.log.Warn("skipping invalid stream", "path", path, "error", err)
			continue
		}
		if ok {
			added++
		}
	}
	return added, nil
}
