package audio

import "time"

// Frame represents a single fixed-size frame of captured audio flowing
// through the turn-taking pipeline. Frames are the atomic unit of transport:
// the capture device produces them at a steady cadence, the detector
// classifies them, and buffers retain them until an utterance is assembled.
type Frame struct {
	// Samples holds normalized mono amplitudes in the range [-1, 1].
	Samples []float32

	// SampleRate in Hz (e.g., 48000 from a browser capture node, 16000 for
	// transcription input).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to session start.
	Timestamp time.Duration
}

// Duration returns the playback length of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}
