// Package vad implements energy-based voice activity detection for the
// meditation session pipeline.
//
// The detector classifies fixed-size capture frames into one of three states
// (Silence, OnsetPending, Speaking) using a speech threshold scaled off an
// adaptive noise floor. A fixed cutoff misclassifies quiet rooms (too
// insensitive) or noisy ones (too trigger-happy); floor-relative scaling
// adapts to ambient conditions while a fixed minimum guards against a
// near-zero floor making the detector hypersensitive.
//
// The detector is a pure classifier: it owns no audio buffers and performs no
// I/O. All timing derives from frame timestamps, never the wall clock, so a
// test can drive the full state machine deterministically by synthesizing
// frames. A Detector is confined to the single goroutine that pumps frames;
// it is not safe for concurrent use.
package vad

import "time"

// State enumerates the detector's listening states. Exactly one is active
// per listening session.
type State int

const (
	// StateSilence means no speech is being tracked; the noise floor adapts.
	StateSilence State = iota

	// StateOnsetPending means energy crossed the threshold but the onset has
	// not yet lasted long enough to rule out a click or pop.
	StateOnsetPending

	// StateSpeaking means a confirmed utterance is in progress.
	StateSpeaking
)

// String returns the lowercase state name for logs and metrics attributes.
func (s State) String() string {
	switch s {
	case StateSilence:
		return "silence"
	case StateOnsetPending:
		return "onset_pending"
	case StateSpeaking:
		return "speaking"
	}
	return "unknown"
}

// Event signals a state transition that requires action from the caller.
type Event int

const (
	// EventNone: no transition this frame.
	EventNone Event = iota

	// EventOnset: Silence → OnsetPending. The caller should seed the new
	// utterance buffer with the pre-roll contents.
	EventOnset

	// EventSpeechConfirmed: OnsetPending → Speaking. The onset survived the
	// minimum speech duration.
	EventSpeechConfirmed

	// EventNoiseRejected: OnsetPending → Silence. The burst was too short to
	// be speech; the partial buffer is a command candidate, not garbage.
	EventNoiseRejected

	// EventUtteranceEnded: Speaking → Silence with the utterance long enough
	// to be conversational input.
	EventUtteranceEnded

	// EventShortUtterance: Speaking → Silence but below the minimum utterance
	// duration; the buffer goes down the command-candidate path.
	EventShortUtterance
)

// String returns the lowercase event name for logs and metrics attributes.
func (e Event) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventOnset:
		return "onset"
	case EventSpeechConfirmed:
		return "speech_confirmed"
	case EventNoiseRejected:
		return "noise_rejected"
	case EventUtteranceEnded:
		return "utterance_ended"
	case EventShortUtterance:
		return "short_utterance"
	}
	return "unknown"
}

// Result is the detector's verdict for a single frame.
type Result struct {
	// State is the detector state after processing the frame.
	State State

	// Event is the transition triggered by this frame, if any.
	Event Event

	// IsSpeech reports whether the frame's energy exceeded the adaptive
	// threshold.
	IsSpeech bool

	// Energy is the frame's RMS energy.
	Energy float64

	// Threshold is the adaptive speech threshold the frame was compared
	// against.
	Threshold float64

	// SpeechDuration is the elapsed time since utterance onset. Zero outside
	// OnsetPending/Speaking.
	SpeechDuration time.Duration

	// SilenceDuration is the continuous below-threshold time since the last
	// above-threshold frame. Zero while speech is active.
	SilenceDuration time.Duration

	// Resumed reports that an above-threshold frame arrived during Speaking
	// after a run of silence, the signal that any in-flight speculative
	// transcription is now stale.
	Resumed bool
}

// Config holds the detector's thresholds and timing windows.
type Config struct {
	// EnergyFloor is the fixed minimum speech threshold on the normalized
	// RMS scale. The effective threshold is
	// max(EnergyFloor, NoiseMultiplier × noise floor).
	EnergyFloor float64

	// NoiseMultiplier scales the adaptive noise floor into a speech
	// threshold.
	NoiseMultiplier float64

	// MinSpeechDuration is the cumulative above-threshold time required to
	// confirm an onset as speech. Rejects clicks and pops.
	MinSpeechDuration time.Duration

	// NoiseRejectGap is the below-threshold gap that aborts an unconfirmed
	// onset.
	NoiseRejectGap time.Duration

	// BaseSilence is the non-ramped end-of-utterance silence window. It is
	// also the point at which the coordinator submits a speculative
	// transcription.
	BaseSilence time.Duration

	// SilenceRamp extends the end-of-utterance window proportionally to the
	// utterance length so far (seconds of extra tolerance per second of
	// speech). Longer utterances earn more room for thinking pauses.
	SilenceRamp float64

	// MaxSilence caps the ramped end-of-utterance window.
	MaxSilence time.Duration

	// MinUtteranceDuration is the floor below which a finalized utterance is
	// routed to the command-candidate path instead of conversation.
	MinUtteranceDuration time.Duration
}

// DefaultConfig returns the detector tuning used by the live pipeline.
func DefaultConfig() Config {
	return Config{
		EnergyFloor:          0.015,
		NoiseMultiplier:      3,
		MinSpeechDuration:    500 * time.Millisecond,
		NoiseRejectGap:       200 * time.Millisecond,
		BaseSilence:          1500 * time.Millisecond,
		SilenceRamp:          0.1,
		MaxSilence:           4 * time.Second,
		MinUtteranceDuration: 4 * time.Second,
	}
}
