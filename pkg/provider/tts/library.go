package tts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var _ Provider = (*Library)(nil)

// Library serves pre-rendered clips from disk and falls back to a live
// backend for anything not in the library. Recurring facilitator lines
// (session openers, check-ins, closers) are rendered once and reused, which
// keeps their latency at zero and their delivery identical across sessions.
//
// Clips are raw s16le mono files named <sha256(text)>.pcm. On a fallback
// synthesis the clip is written back to the library directory best-effort.
type Library struct {
	dir        string
	sampleRate int
	backend    Provider

	mu    sync.Mutex
	known map[string]struct{}
}

// NewLibrary creates a Library over dir. backend may be nil, in which case
// misses return an error instead of synthesizing.
func NewLibrary(dir string, sampleRate int, backend Provider) (*Library, error) {
	if dir == "" {
		return nil, errors.New("tts: library dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("tts: create library dir: %w", err)
	}

	known := make(map[string]struct{})
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if strings.HasSuffix(d.Name(), ".pcm") {
			known[strings.TrimSuffix(d.Name(), ".pcm")] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("tts: scan library dir: %w", err)
	}

	return &Library{
		dir:        dir,
		sampleRate: sampleRate,
		backend:    backend,
		known:      known,
	}, nil
}

// Synthesize returns the pre-rendered clip for text when one exists,
// otherwise delegates to the backend and stores the result.
func (l *Library) Synthesize(ctx context.Context, text string, voice Voice) (Clip, error) {
	key := clipKey(text)

	l.mu.Lock()
	_, hit := l.known[key]
	l.mu.Unlock()

	if hit {
		pcm, err := os.ReadFile(filepath.Join(l.dir, key+".pcm"))
		if err == nil {
			return Clip{PCM: pcm, SampleRate: l.sampleRate}, nil
		}
		// Fall through to the backend; the index was stale.
	}

	if l.backend == nil {
		return Clip{}, fmt.Errorf("tts: no pre-rendered clip for %q and no backend configured", text)
	}
	clip, err := l.backend.Synthesize(ctx, text, voice)
	if err != nil {
		return Clip{}, err
	}

	if clip.SampleRate == l.sampleRate {
		if err := os.WriteFile(filepath.Join(l.dir, key+".pcm"), clip.PCM, 0o644); err == nil {
			l.mu.Lock()
			l.known[key] = struct{}{}
			l.mu.Unlock()
		}
	}
	return clip, nil
}

func clipKey(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}
