package vad

import (
	"time"

	"github.com/akrusz/meditation-pal/pkg/audio"
)

// Detector is the frame-level speech state machine. It tracks onset,
// continuation, and end of speech from RMS energy relative to an adaptive
// noise floor.
type Detector struct {
	cfg   Config
	noise *NoiseEstimator

	state State

	// All timestamps are frame-relative, taken from audio.Frame.Timestamp.
	onsetAt      time.Duration
	lastSpeechAt time.Duration

	// aboveAccum is the cumulative above-threshold time since onset, used to
	// confirm OnsetPending → Speaking.
	aboveAccum time.Duration
}

// NewDetector creates a detector with the given tuning. Zero-valued fields in
// cfg fall back to [DefaultConfig].
func NewDetector(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.EnergyFloor <= 0 {
		cfg.EnergyFloor = def.EnergyFloor
	}
	if cfg.NoiseMultiplier <= 0 {
		cfg.NoiseMultiplier = def.NoiseMultiplier
	}
	if cfg.MinSpeechDuration <= 0 {
		cfg.MinSpeechDuration = def.MinSpeechDuration
	}
	if cfg.NoiseRejectGap <= 0 {
		cfg.NoiseRejectGap = def.NoiseRejectGap
	}
	if cfg.BaseSilence <= 0 {
		cfg.BaseSilence = def.BaseSilence
	}
	if cfg.SilenceRamp <= 0 {
		cfg.SilenceRamp = def.SilenceRamp
	}
	if cfg.MaxSilence <= 0 {
		cfg.MaxSilence = def.MaxSilence
	}
	if cfg.MinUtteranceDuration <= 0 {
		cfg.MinUtteranceDuration = def.MinUtteranceDuration
	}
	return &Detector{
		cfg:   cfg,
		noise: NewNoiseEstimator(),
	}
}

// State returns the current detector state.
func (d *Detector) State() State { return d.state }

// NoiseFloor returns the current adaptive noise floor estimate.
func (d *Detector) NoiseFloor() float64 { return d.noise.Floor() }

// Threshold returns the current effective speech threshold:
// max(EnergyFloor, NoiseMultiplier × noise floor).
func (d *Detector) Threshold() float64 {
	t := d.cfg.NoiseMultiplier * d.noise.Floor()
	if t < d.cfg.EnergyFloor {
		t = d.cfg.EnergyFloor
	}
	return t
}

// BaseSilence returns the non-ramped end-of-utterance window; the speculative
// transcription trigger point.
func (d *Detector) BaseSilence() time.Duration { return d.cfg.BaseSilence }

// MinUtterance returns the minimum duration below which an ended utterance is
// classified as a command candidate instead of conversational speech.
func (d *Detector) MinUtterance() time.Duration { return d.cfg.MinUtteranceDuration }

// adaptiveSilence computes the end-of-utterance window for an utterance of
// the given length: min(base + ramp × length, max). Longer utterances earn
// more tolerance for thinking pauses.
func (d *Detector) adaptiveSilence(speechDur time.Duration) time.Duration {
	w := d.cfg.BaseSilence + time.Duration(d.cfg.SilenceRamp*float64(speechDur))
	if w > d.cfg.MaxSilence {
		w = d.cfg.MaxSilence
	}
	return w
}

// Process classifies one frame and advances the state machine. The caller
// must only feed frames that survived playback arbitration; suppressed frames
// must never reach the detector or the noise floor would absorb speaker
// bleed.
func (d *Detector) Process(frame audio.Frame) Result {
	now := frame.Timestamp
	energy := audio.RMS(frame.Samples)
	threshold := d.Threshold()
	isSpeech := energy > threshold

	res := Result{
		Event:     EventNone,
		IsSpeech:  isSpeech,
		Energy:    energy,
		Threshold: threshold,
	}

	switch d.state {
	case StateSilence:
		if isSpeech {
			d.state = StateOnsetPending
			d.onsetAt = now
			d.lastSpeechAt = now
			d.aboveAccum = frame.Duration()
			res.Event = EventOnset
		} else {
			d.noise.Update(energy)
		}

	case StateOnsetPending:
		if isSpeech {
			d.lastSpeechAt = now
			d.aboveAccum += frame.Duration()
			if d.aboveAccum >= d.cfg.MinSpeechDuration {
				d.state = StateSpeaking
				res.Event = EventSpeechConfirmed
			}
		} else if now-d.lastSpeechAt > d.cfg.NoiseRejectGap {
			// Too short to be speech. The partial buffer is still submitted
			// as a command candidate rather than dropped.
			res.Event = EventNoiseRejected
			res.SpeechDuration = now - d.onsetAt
			res.SilenceDuration = now - d.lastSpeechAt
			d.enterSilence()
		}

	case StateSpeaking:
		if isSpeech {
			if now-d.lastSpeechAt > frame.Duration() {
				res.Resumed = true
			}
			d.lastSpeechAt = now
		} else {
			silence := now - d.lastSpeechAt
			speechDur := now - d.onsetAt
			if silence >= d.adaptiveSilence(speechDur) {
				if speechDur >= d.cfg.MinUtteranceDuration {
					res.Event = EventUtteranceEnded
				} else {
					res.Event = EventShortUtterance
				}
				res.SpeechDuration = speechDur
				res.SilenceDuration = silence
				d.enterSilence()
			}
		}
	}

	if d.state != StateSilence {
		res.SpeechDuration = now - d.onsetAt
		if !isSpeech {
			res.SilenceDuration = now - d.lastSpeechAt
		}
	}
	res.State = d.state
	return res
}

// enterSilence returns to StateSilence and restarts the fast noise
// calibration window so residual playback bleed does not bias the floor.
func (d *Detector) enterSilence() {
	d.state = StateSilence
	d.onsetAt = 0
	d.lastSpeechAt = 0
	d.aboveAccum = 0
	d.noise.Recalibrate()
}

// Reset re-initializes every mutable field for a new listening session,
// including the noise floor itself.
func (d *Detector) Reset() {
	d.enterSilence()
	d.noise.Reset()
}
