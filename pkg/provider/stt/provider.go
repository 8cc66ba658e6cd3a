// Package stt defines the Provider interface for Speech-to-Text backends.
//
// Unlike streaming recognizers, the turn-taking controller hands backends
// complete utterance snapshots: a contiguous float32 sample buffer covering
// one utterance attempt, already resampled to the backend's preferred rate.
// The backend transcribes the whole snapshot in one call. Requests carry a
// generation tag that the caller uses to discard results that were superseded
// while the backend was working; backends must echo it untouched.
//
// Implementations must be safe for concurrent use: speculative submission
// means a second request can start before the first returns.
package stt

import (
	"context"
	"time"
)

// Request is one utterance snapshot bound for transcription.
type Request struct {
	// Samples is mono PCM in the range [-1, 1] at SampleRate.
	Samples []float32

	// SampleRate of Samples in Hz. Whisper-family models expect 16000.
	SampleRate int

	// Language is the BCP-47 language hint (e.g., "en"). Empty lets the
	// backend auto-detect when supported.
	Language string

	// Generation is the caller's utterance attempt tag, echoed in the
	// result. Backends must not interpret it.
	Generation uint64

	// CommandOnly marks a short-burst control-word candidate. Echoed in the
	// result; backends may use it to pick a faster decode path.
	CommandOnly bool
}

// Result is the transcription outcome for one Request.
type Result struct {
	// Text is the transcript with leading and trailing whitespace trimmed.
	// Empty means the backend heard nothing intelligible.
	Text string

	// Generation and CommandOnly echo the request tags.
	Generation  uint64
	CommandOnly bool

	// Latency is how long the backend took, for the stage-latency metrics.
	Latency time.Duration
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use and must honor ctx
// cancellation where the underlying API allows it; CGO backends that cannot
// interrupt inference run the call to completion and let the caller discard
// the result.
type Provider interface {
	// Transcribe runs recognition over one utterance snapshot. The returned
	// Result echoes the request's Generation and CommandOnly tags even on a
	// successful empty transcript.
	Transcribe(ctx context.Context, req Request) (Result, error)
}
