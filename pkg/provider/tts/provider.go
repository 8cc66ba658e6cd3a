// Package tts defines the Provider interface for Text-to-Speech backends.
//
// Facilitator replies are short guided prompts, so synthesis is a batch
// operation: one text in, one PCM clip out. The session layer owns playback
// pacing and cancellation; a cancelled ctx abandons the synthesis call.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"time"
)

// Voice describes a synthesis voice configuration.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Stability and SimilarityBoost tune synthesis character on providers
	// that support them (0–1, zero means provider default).
	Stability       float64
	SimilarityBoost float64

	// Speed adjusts speaking rate where supported (1.0 = default). Guided
	// practice reads slower than conversation.
	Speed float64
}

// Clip is one synthesized utterance.
type Clip struct {
	// PCM is raw signed 16-bit little-endian mono audio at SampleRate.
	PCM []byte

	// SampleRate of PCM in Hz.
	SampleRate int

	// Latency is how long synthesis took, for the stage-latency metrics.
	// Zero for clips served from the pre-rendered library.
	Latency time.Duration
}

// Duration returns the playback length of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	samples := len(c.PCM) / 2
	return time.Duration(samples) * time.Second / time.Duration(c.SampleRate)
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text as speech in the given voice. A zero-value
	// voice uses the provider's default.
	Synthesize(ctx context.Context, text string, voice Voice) (Clip, error)
}
