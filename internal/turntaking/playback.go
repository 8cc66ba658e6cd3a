package turntaking

import "time"

// PlaybackState is the controller's belief about the synthesized-speech
// channel. Microphone frames are interpreted differently depending on it:
// while playing, capture picks up speaker bleed, so frames are held to the
// barge-in bar instead of the ordinary speech threshold.
type PlaybackState int

const (
	// PlaybackIdle: no synthesized speech; frames flow to the detector.
	PlaybackIdle PlaybackState = iota
	// PlaybackPlaying: synthesized speech is (believed to be) audible;
	// frames are suppressed unless they clear the barge-in threshold.
	PlaybackPlaying
)

// String returns the lowercase state name for logs.
func (s PlaybackState) String() string {
	if s == PlaybackPlaying {
		return "playing"
	}
	return "idle"
}

// verdict is the arbiter's per-frame decision.
type verdict int

const (
	// verdictPass: feed the frame to the detector.
	verdictPass verdict = iota
	// verdictSuppress: discard the frame.
	verdictSuppress
	// verdictBargeIn: the frame completed a barge-in run; cancel playback
	// and seed the detector with this frame.
	verdictBargeIn
)

const noDeadline = time.Duration(-1)

// arbiter decides, frame by frame, whether microphone audio is trustworthy.
// It owns the playback belief, the barge-in run counter, the stuck-playback
// watchdog, and the post-playback cooldown. All time is frame-relative.
type arbiter struct {
	bargeThreshold float64
	bargeFrames    int
	watchdog       time.Duration
	cooldown       time.Duration

	state    PlaybackState
	bargeRun int

	// cooldownUntil suppresses new onsets after playback ends; speaker echo
	// tails linger briefly in the capture path.
	cooldownUntil time.Duration

	// progressPlaying is the backend's last self-report. mismatchSince marks
	// when belief and report started to disagree; noDeadline when they agree.
	progressPlaying bool
	mismatchSince   time.Duration
}

func newArbiter(bargeThreshold float64, bargeFrames int, watchdog, cooldown time.Duration) *arbiter {
	return &arbiter{
		bargeThreshold: bargeThreshold,
		bargeFrames:    bargeFrames,
		watchdog:       watchdog,
		cooldown:       cooldown,
		mismatchSince:  noDeadline,
	}
}

// playbackStarted records that the backend began emitting synthesized speech.
func (a *arbiter) playbackStarted() {
	a.state = PlaybackPlaying
	a.bargeRun = 0
	a.progressPlaying = true
	a.mismatchSince = noDeadline
}

// playbackFinished records a clean end of playback and opens the cooldown
// window.
func (a *arbiter) playbackFinished(now time.Duration) {
	a.state = PlaybackIdle
	a.bargeRun = 0
	a.progressPlaying = false
	a.mismatchSince = noDeadline
	a.cooldownUntil = now + a.cooldown
}

// reportProgress stores the playback backend's own claim about whether it is
// still emitting audio. The watchdog compares it against the arbiter's belief.
func (a *arbiter) reportProgress(playing bool) {
	a.progressPlaying = playing
}

// observe runs the arbitration for one frame of the given energy and returns
// the verdict plus whether the watchdog fired on this frame. utteranceActive
// reports whether the detector is mid-utterance: the cooldown only blocks new
// onsets and noise adaptation, never an utterance already in flight (a
// barge-in seeds one while its own cooldown window is open).
//
// The watchdog covers the failure mode where the finished notification is
// lost: the controller would believe playback continues forever and the
// microphone would stay deaf. If the backend stops reporting progress while
// the belief is still "playing" and the disagreement persists past the
// watchdog window, the belief is forcibly reset to idle.
func (a *arbiter) observe(now time.Duration, energy float64, utteranceActive bool) (verdict, bool) {
	tripped := false
	if a.state == PlaybackPlaying {
		if !a.progressPlaying {
			if a.mismatchSince == noDeadline {
				a.mismatchSince = now
			} else if now-a.mismatchSince >= a.watchdog {
				a.playbackFinished(now)
				tripped = true
			}
		} else {
			a.mismatchSince = noDeadline
		}
	}

	if a.state == PlaybackPlaying {
		if energy >= a.bargeThreshold {
			a.bargeRun++
			if a.bargeRun >= a.bargeFrames {
				a.state = PlaybackIdle
				a.bargeRun = 0
				a.cooldownUntil = now + a.cooldown
				return verdictBargeIn, tripped
			}
			// Part of a possible barge-in run, but not yet confirmed; the
			// frame is consumed by the counter and never reaches the
			// detector.
			return verdictSuppress, tripped
		}
		// A broken run starts over. Loud playback bleed produces isolated
		// hot frames; only a sustained run is the user.
		a.bargeRun = 0
		return verdictSuppress, tripped
	}

	if now < a.cooldownUntil && !utteranceActive {
		return verdictSuppress, tripped
	}
	return verdictPass, tripped
}

// reset restores the arbiter to its initial idle state.
func (a *arbiter) reset() {
	a.state = PlaybackIdle
	a.bargeRun = 0
	a.cooldownUntil = 0
	a.progressPlaying = false
	a.mismatchSince = noDeadline
}
