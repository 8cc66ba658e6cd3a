package vad

import "github.com/akrusz/meditation-pal/pkg/audio"

// PreRoll is a bounded FIFO of the most recent capture frames, maintained
// while no utterance is in progress. When an onset is detected its contents
// seed the new utterance buffer so the first syllables are never lost.
//
// PreRoll is confined to the frame-pump goroutine; it is not safe for
// concurrent use.
type PreRoll struct {
	frames   []audio.Frame
	capacity int
}

// NewPreRoll creates a buffer retaining up to capacity frames. A capacity of
// 20 frames of 4096 samples at 48 kHz is roughly 1.7 s of context.
func NewPreRoll(capacity int) *PreRoll {
	if capacity <= 0 {
		capacity = 1
	}
	return &PreRoll{
		frames:   make([]audio.Frame, 0, capacity),
		capacity: capacity,
	}
}

// Push appends a frame, evicting the oldest once the buffer is full.
func (p *PreRoll) Push(frame audio.Frame) {
	if len(p.frames) == p.capacity {
		copy(p.frames, p.frames[1:])
		p.frames[len(p.frames)-1] = frame
		return
	}
	p.frames = append(p.frames, frame)
}

// Drain returns the buffered frames in arrival order and empties the buffer.
func (p *PreRoll) Drain() []audio.Frame {
	out := make([]audio.Frame, len(p.frames))
	copy(out, p.frames)
	p.frames = p.frames[:0]
	return out
}

// Clear discards the buffered frames without returning them. Used when the
// buffer is known to be contaminated by synthesized-speech bleed, e.g.
// immediately after a barge-in, so leaked playback audio never seeds an
// utterance.
func (p *PreRoll) Clear() { p.frames = p.frames[:0] }

// Len returns the number of buffered frames.
func (p *PreRoll) Len() int { return len(p.frames) }
