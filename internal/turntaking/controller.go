// Package turntaking decides when the user has the floor.
//
// A single [Controller] per session consumes capture frames in arrival order
// and turns them into tagged actions: cancel playback, submit audio for
// transcription, finalize an utterance. It composes the energy detector from
// internal/vad with playback arbitration (barge-in, watchdog, cooldown), a
// pre-roll buffer, and the speculative transcription coordinator.
//
// The controller performs no I/O and never reads the wall clock; every timer
// derives from frame timestamps. It is confined to the session's frame-pump
// goroutine: asynchronous transcription results must be marshaled onto that
// goroutine and handed to [Controller.OnTranscript] between frames.
package turntaking

import (
	"time"

	"github.com/akrusz/meditation-pal/internal/vad"
	"github.com/akrusz/meditation-pal/pkg/audio"
)

// Config tunes the controller. Zero-valued fields fall back to
// [DefaultConfig].
type Config struct {
	// VAD is the energy detector tuning, passed through to
	// [vad.NewDetector].
	VAD vad.Config

	// BargeInThreshold is the elevated energy bar a frame must clear to
	// count toward a barge-in while synthesized speech is playing.
	BargeInThreshold float64

	// BargeInFrames is the number of consecutive qualifying frames that
	// confirm a barge-in.
	BargeInFrames int

	// WatchdogWindow is how long the playback belief may disagree with the
	// backend's progress reports before being forced back to idle.
	WatchdogWindow time.Duration

	// Cooldown suppresses new onsets for this long after playback ends.
	Cooldown time.Duration

	// PreRollFrames is the capacity of the pre-onset context buffer.
	PreRollFrames int

	// TargetSampleRate is the rate utterance audio is resampled to before
	// submission.
	TargetSampleRate int
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		VAD:              vad.DefaultConfig(),
		BargeInThreshold: 0.04,
		BargeInFrames:    3,
		WatchdogWindow:   1500 * time.Millisecond,
		Cooldown:         800 * time.Millisecond,
		PreRollFrames:    20,
		TargetSampleRate: 16000,
	}
}

// Controller is the per-session turn-taking state machine. Not safe for
// concurrent use; see the package comment for the confinement rules.
type Controller struct {
	cfg Config

	det     *vad.Detector
	preroll *vad.PreRoll
	arb     *arbiter
	spec    *speculator

	utterance  []audio.Frame
	collecting bool
	muted      bool

	// now is the timestamp of the most recently processed frame; the only
	// clock the controller knows.
	now time.Duration
}

// NewController creates a controller with the given tuning. Zero-valued
// fields in cfg fall back to [DefaultConfig].
func NewController(cfg Config) *Controller {
	def := DefaultConfig()
	if cfg.BargeInThreshold <= 0 {
		cfg.BargeInThreshold = def.BargeInThreshold
	}
	if cfg.BargeInFrames <= 0 {
		cfg.BargeInFrames = def.BargeInFrames
	}
	if cfg.WatchdogWindow <= 0 {
		cfg.WatchdogWindow = def.WatchdogWindow
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.PreRollFrames <= 0 {
		cfg.PreRollFrames = def.PreRollFrames
	}
	if cfg.TargetSampleRate <= 0 {
		cfg.TargetSampleRate = def.TargetSampleRate
	}
	return &Controller{
		cfg:     cfg,
		det:     vad.NewDetector(cfg.VAD),
		preroll: vad.NewPreRoll(cfg.PreRollFrames),
		arb:     newArbiter(cfg.BargeInThreshold, cfg.BargeInFrames, cfg.WatchdogWindow, cfg.Cooldown),
		spec:    newSpeculator(),
	}
}

// OnFrame consumes one capture frame and returns the actions the session loop
// must perform, in order. A nil return means keep listening.
func (c *Controller) OnFrame(frame audio.Frame) []Action {
	c.now = frame.Timestamp
	if c.muted {
		return nil
	}

	energy := audio.RMS(frame.Samples)
	active := c.det.State() != vad.StateSilence

	var actions []Action
	v, tripped := c.arb.observe(c.now, energy, active)
	if tripped {
		actions = append(actions, Action{Kind: ActionWatchdogReset})
	}

	switch v {
	case verdictSuppress:
		return actions
	case verdictBargeIn:
		actions = append(actions, Action{Kind: ActionCancelPlayback})
		// Everything buffered so far overlaps playback and carries speaker
		// bleed. The triggering frame itself is the only trustworthy seed.
		c.preroll.Clear()
		c.utterance = c.utterance[:0]
		c.collecting = false
	}

	res := c.det.Process(frame)

	if res.Resumed {
		c.spec.invalidate()
	}

	switch res.Event {
	case vad.EventOnset:
		c.utterance = append(c.utterance[:0], c.preroll.Drain()...)
		c.utterance = append(c.utterance, frame)
		c.collecting = true

	case vad.EventNoiseRejected, vad.EventShortUtterance:
		c.utterance = append(c.utterance, frame)
		actions = append(actions, c.submit(ActionSubmitCommand, true))
		c.spec.advance()
		c.endUtterance()

	case vad.EventUtteranceEnded:
		c.utterance = append(c.utterance, frame)
		text, have, needSubmit := c.spec.utteranceEnded()
		switch {
		case have:
			actions = append(actions, Action{Kind: ActionFinalizeUtterance, Text: text})
		case needSubmit:
			actions = append(actions, c.submit(ActionSubmitUtterance, false))
			c.spec.markFinalSubmitted()
		}
		c.endUtterance()

	default:
		if c.collecting {
			c.utterance = append(c.utterance, frame)
		} else {
			c.preroll.Push(frame)
		}
	}

	// Speculative trigger: the base silence window elapsed mid-utterance but
	// the adaptive window has not fired yet. Submit once per generation.
	// Utterances still under the command-candidate cutoff never trigger it;
	// their transcript would be discarded as stale when the short-utterance
	// path resolves them.
	if res.State == vad.StateSpeaking && !res.IsSpeech &&
		res.SpeechDuration >= c.det.MinUtterance() &&
		res.SilenceDuration >= c.det.BaseSilence() && c.spec.needsSpeculative() {
		actions = append(actions, c.submit(ActionSubmitSpeculative, false))
		c.spec.markSubmitted()
	}

	return actions
}

// submit snapshots the utterance buffer into a transcription request tagged
// with the current generation.
func (c *Controller) submit(kind ActionKind, commandOnly bool) Action {
	samples, dur := assembleUtterance(c.utterance, c.cfg.TargetSampleRate)
	return Action{
		Kind: kind,
		Request: &TranscribeRequest{
			Generation:  c.spec.currentGeneration(),
			Samples:     samples,
			SampleRate:  c.cfg.TargetSampleRate,
			CommandOnly: commandOnly,
			Duration:    dur,
			SubmittedAt: c.now,
		},
	}
}

// endUtterance clears the capture buffer once an utterance attempt resolved.
func (c *Controller) endUtterance() {
	c.utterance = c.utterance[:0]
	c.collecting = false
}

// OnTranscript hands an asynchronous transcription result to the controller
// and returns what to do with it. Must be called from the frame-pump
// goroutine, never concurrently with OnFrame.
func (c *Controller) OnTranscript(res TranscriptResult) Outcome {
	if res.CommandOnly {
		// Command candidates bypass generation matching: toggling mute is
		// valid even if the speaker kept talking after saying it, and the
		// transcript itself never enters the conversation.
		if res.Err != nil {
			return Outcome{Kind: OutcomeResume}
		}
		if cmd := ParseCommand(res.Text); cmd != CommandNone {
			return Outcome{Kind: OutcomeCommand, Command: cmd}
		}
		return Outcome{Kind: OutcomeResume}
	}
	return c.spec.onResult(res)
}

// PlaybackStarted tells the controller synthesized speech began.
func (c *Controller) PlaybackStarted() { c.arb.playbackStarted() }

// PlaybackFinished tells the controller synthesized speech ended cleanly and
// opens the cooldown window.
func (c *Controller) PlaybackFinished() { c.arb.playbackFinished(c.now) }

// ReportPlaybackProgress forwards the playback backend's self-report; the
// watchdog compares it against the controller's belief.
func (c *Controller) ReportPlaybackProgress(playing bool) { c.arb.reportProgress(playing) }

// SetMuted toggles microphone processing. Muting mid-utterance abandons the
// utterance and resets the detector.
func (c *Controller) SetMuted(muted bool) {
	if muted == c.muted {
		return
	}
	c.muted = muted
	if muted {
		c.det.Reset()
		c.preroll.Clear()
		c.endUtterance()
		c.spec.advance()
	}
}

// Muted reports whether microphone processing is disabled.
func (c *Controller) Muted() bool { return c.muted }

// Generation returns the current utterance generation, for diagnostics.
func (c *Controller) Generation() uint64 { return c.spec.currentGeneration() }

// PlaybackState returns the controller's current playback belief.
func (c *Controller) PlaybackState() PlaybackState { return c.arb.state }

// VADState returns the detector's current state.
func (c *Controller) VADState() vad.State { return c.det.State() }

// Reset restores every mutable field for a fresh session, including the
// detector's noise floor. The generation counter keeps advancing so results
// from before the reset can never be consumed after it.
func (c *Controller) Reset() {
	c.det.Reset()
	c.preroll.Clear()
	c.arb.reset()
	c.spec.reset()
	c.endUtterance()
	c.muted = false
	c.now = 0
}
