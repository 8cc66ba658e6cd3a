package turntaking

import (
	"testing"
	"time"

	"github.com/akrusz/meditation-pal/internal/vad"
	"github.com/akrusz/meditation-pal/pkg/audio"
)

const step = 100 * time.Millisecond

// frameAt builds a 100 ms frame of constant amplitude at 16 kHz so its RMS
// energy equals amp exactly.
func frameAt(amp float32, ts time.Duration) audio.Frame {
	samples := make([]float32, 1600)
	for i := range samples {
		samples[i] = amp
	}
	return audio.Frame{Samples: samples, SampleRate: 16000, Timestamp: ts}
}

// pump feeds count consecutive frames of constant amplitude starting at start
// and returns every action emitted along the way.
func pump(c *Controller, amp float32, start time.Duration, count int) []Action {
	var out []Action
	for i := range count {
		out = append(out, c.OnFrame(frameAt(amp, start+time.Duration(i)*step))...)
	}
	return out
}

func actionsOfKind(actions []Action, kind ActionKind) []Action {
	var out []Action
	for _, a := range actions {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

func TestController_BargeInRequiresConsecutiveFrames(t *testing.T) {
	t.Parallel()

	c := NewController(Config{})
	c.PlaybackStarted()

	// An interrupted run must start over: the middle frame resets the count.
	for i, amp := range []float32{0.05, 0.01, 0.05, 0.01} {
		if got := c.OnFrame(frameAt(amp, time.Duration(i)*step)); len(got) != 0 {
			t.Fatalf("frame %d emitted %v, want nothing", i, got)
		}
	}
	if c.PlaybackState() != PlaybackPlaying {
		t.Error("broken run cancelled playback")
	}

	// Three consecutive loud frames confirm the barge-in.
	actions := pump(c, 0.05, 4*step, 3)
	if got := actionsOfKind(actions, ActionCancelPlayback); len(got) != 1 {
		t.Fatalf("loud run emitted %v, want one cancel_playback", actions)
	}
	if c.PlaybackState() != PlaybackIdle {
		t.Error("playback state = playing after barge-in, want idle")
	}
	// The triggering frame seeds the detector directly.
	if c.VADState() != vad.StateOnsetPending {
		t.Errorf("vad state = %v after barge-in, want onset_pending", c.VADState())
	}
}

func TestController_BargeInDiscardsContaminatedPreRoll(t *testing.T) {
	t.Parallel()

	c := NewController(Config{})
	pump(c, 0.003, 0, 10) // ambient frames fill the pre-roll
	c.PlaybackStarted()
	pump(c, 0.05, time.Second, 3) // barge-in

	// Continue the seeded utterance into the command path and inspect the
	// submitted snapshot: it must start at the triggering frame, without the
	// ten pre-playback frames.
	pump(c, 0.05, 1300*time.Millisecond, 10)
	var submit []Action
	for i := range 30 {
		acts := c.OnFrame(frameAt(0.001, 2300*time.Millisecond+time.Duration(i)*step))
		if submit = actionsOfKind(acts, ActionSubmitCommand); len(submit) > 0 {
			break
		}
	}
	if len(submit) == 0 {
		t.Fatal("seeded utterance never reached a submit")
	}
	if n := len(submit[0].Request.Samples); n > 30*1600 {
		t.Errorf("snapshot has %d samples; pre-roll from before playback leaked in", n)
	}
}

func TestController_PlaybackSuppressesQuietFrames(t *testing.T) {
	t.Parallel()

	c := NewController(Config{})
	c.PlaybackStarted()
	c.ReportPlaybackProgress(true)

	pump(c, 0.02, 0, 20) // above speech threshold, below barge-in bar
	if c.VADState() != vad.StateSilence {
		t.Errorf("vad state = %v during playback, want silence", c.VADState())
	}
}

func TestController_WatchdogForcesIdleExactlyOnce(t *testing.T) {
	t.Parallel()

	c := NewController(Config{})
	c.PlaybackStarted()
	c.ReportPlaybackProgress(false) // finished notification was lost

	actions := pump(c, 0.001, 0, 40)
	trips := actionsOfKind(actions, ActionWatchdogReset)
	if len(trips) != 1 {
		t.Fatalf("watchdog tripped %d times, want exactly 1", len(trips))
	}
	if c.PlaybackState() != PlaybackIdle {
		t.Error("playback state = playing after watchdog, want idle")
	}
}

func TestController_WatchdogToleratesProgress(t *testing.T) {
	t.Parallel()

	c := NewController(Config{})
	c.PlaybackStarted()
	c.ReportPlaybackProgress(true)

	actions := pump(c, 0.001, 0, 40) // 4 s, well past the window
	if trips := actionsOfKind(actions, ActionWatchdogReset); len(trips) != 0 {
		t.Errorf("watchdog tripped %d times with healthy progress, want 0", len(trips))
	}
	if c.PlaybackState() != PlaybackPlaying {
		t.Error("playback state = idle, want playing")
	}
}

func TestController_CooldownBlocksOnsets(t *testing.T) {
	t.Parallel()

	c := NewController(Config{})
	c.PlaybackStarted()
	c.OnFrame(frameAt(0.001, 0))
	c.PlaybackFinished()

	// Loud frames inside the 800 ms window are echo tail, not onsets.
	pump(c, 0.05, step, 7) // t = 100..700 ms
	if c.VADState() != vad.StateSilence {
		t.Fatalf("vad state = %v inside cooldown, want silence", c.VADState())
	}

	c.OnFrame(frameAt(0.05, 800*time.Millisecond))
	if c.VADState() != vad.StateOnsetPending {
		t.Errorf("vad state = %v after cooldown, want onset_pending", c.VADState())
	}
}

func TestController_GenerationIncrementsOncePerResume(t *testing.T) {
	t.Parallel()

	c := NewController(Config{})
	pump(c, 0.05, 0, 11) // confirmed speech through t=1.0s
	gen := c.Generation()

	pump(c, 0.001, 1100*time.Millisecond, 6)   // pause, below end-of-utterance
	actions := pump(c, 0.05, 1700*time.Millisecond, 5) // resume

	if got := c.Generation(); got != gen+1 {
		t.Errorf("generation = %d after one resume, want %d", got, gen+1)
	}
	if len(actions) != 0 {
		t.Errorf("resume emitted %v, want nothing", actions)
	}
}

func TestController_SpeculativeSubmitAtBaseSilence(t *testing.T) {
	t.Parallel()

	c := NewController(Config{})
	pump(c, 0.05, 0, 51) // 5.1 s of speech

	actions := pump(c, 0.001, 5100*time.Millisecond, 15) // through t=6.5s
	subs := actionsOfKind(actions, ActionSubmitSpeculative)
	if len(subs) != 1 {
		t.Fatalf("speculative submits = %d, want exactly 1", len(subs))
	}
	req := subs[0].Request
	if req.Generation != c.Generation() {
		t.Errorf("request generation = %d, want current %d", req.Generation, c.Generation())
	}
	if req.CommandOnly {
		t.Error("speculative request marked command-only")
	}
	if req.SampleRate != 16000 {
		t.Errorf("request sample rate = %d, want 16000", req.SampleRate)
	}
}

func TestController_CachedSpeculativeFinalizesWithoutResubmit(t *testing.T) {
	t.Parallel()

	c := NewController(Config{})
	pump(c, 0.05, 0, 51)
	actions := pump(c, 0.001, 5100*time.Millisecond, 15)
	req := actionsOfKind(actions, ActionSubmitSpeculative)[0].Request

	out := c.OnTranscript(TranscriptResult{Generation: req.Generation, Text: "breathing feels easier today"})
	if out.Kind != OutcomeCached {
		t.Fatalf("early result outcome = %v, want cached", out.Kind)
	}

	// Silence continues until the adaptive window fires; the cached text is
	// reused, no second request goes out.
	actions = pump(c, 0.001, 6600*time.Millisecond, 15)
	fin := actionsOfKind(actions, ActionFinalizeUtterance)
	if len(fin) != 1 {
		t.Fatalf("finalize actions = %d, want 1 (got %v)", len(fin), actions)
	}
	if fin[0].Text != "breathing feels easier today" {
		t.Errorf("finalized text = %q", fin[0].Text)
	}
	for _, kind := range []ActionKind{ActionSubmitSpeculative, ActionSubmitUtterance} {
		if got := actionsOfKind(actions, kind); len(got) != 0 {
			t.Errorf("unexpected %v after cached result", kind)
		}
	}
}

func TestController_LateResultFinalizesAfterUtteranceEnd(t *testing.T) {
	t.Parallel()

	c := NewController(Config{})
	pump(c, 0.05, 0, 51)
	actions := pump(c, 0.001, 5100*time.Millisecond, 30) // past the adaptive window
	req := actionsOfKind(actions, ActionSubmitSpeculative)[0].Request

	// The utterance ended while the request was in flight: no new submit,
	// no finalize yet.
	if got := actionsOfKind(actions, ActionSubmitUtterance); len(got) != 0 {
		t.Fatal("resubmitted while a speculative request was in flight")
	}
	if got := actionsOfKind(actions, ActionFinalizeUtterance); len(got) != 0 {
		t.Fatal("finalized before the transcript arrived")
	}

	out := c.OnTranscript(TranscriptResult{Generation: req.Generation, Text: "still here"})
	if out.Kind != OutcomeFinalText || out.Text != "still here" {
		t.Errorf("outcome = %v %q, want final_text %q", out.Kind, out.Text, "still here")
	}
}

func TestController_StaleResultDroppedAfterResume(t *testing.T) {
	t.Parallel()

	c := NewController(Config{})
	pump(c, 0.05, 0, 51)
	actions := pump(c, 0.001, 5100*time.Millisecond, 15)
	req := actionsOfKind(actions, ActionSubmitSpeculative)[0].Request

	pump(c, 0.05, 6600*time.Millisecond, 3) // speaker resumes

	out := c.OnTranscript(TranscriptResult{Generation: req.Generation, Text: "half a thought"})
	if out.Kind != OutcomeStale {
		t.Errorf("outcome = %v for superseded generation, want stale", out.Kind)
	}
}

func TestController_EmptyTranscriptResumesListening(t *testing.T) {
	t.Parallel()

	c := NewController(Config{})
	pump(c, 0.05, 0, 51)
	pump(c, 0.001, 5100*time.Millisecond, 30)

	out := c.OnTranscript(TranscriptResult{Generation: c.Generation(), Text: ""})
	if out.Kind != OutcomeResume {
		t.Errorf("outcome = %v for empty transcript, want resume", out.Kind)
	}
}

func TestController_ShortUtteranceBecomesCommandCandidate(t *testing.T) {
	t.Parallel()

	c := NewController(Config{})
	pump(c, 0.05, 0, 12) // 1.2 s of speech

	var submit []Action
	for i := 12; i <= 40; i++ {
		acts := c.OnFrame(frameAt(0.001, time.Duration(i)*step))
		if submit = actionsOfKind(acts, ActionSubmitCommand); len(submit) > 0 {
			break
		}
	}
	if len(submit) != 1 {
		t.Fatal("short utterance never produced a command candidate")
	}
	req := submit[0].Request
	if !req.CommandOnly {
		t.Error("command candidate not marked command-only")
	}

	out := c.OnTranscript(TranscriptResult{Generation: req.Generation, Text: "Mute.", CommandOnly: true})
	if out.Kind != OutcomeCommand || out.Command != CommandMute {
		t.Errorf("outcome = %v/%v, want command/mute", out.Kind, out.Command)
	}
}

func TestController_ShortUtteranceSkipsSpeculativeSubmit(t *testing.T) {
	t.Parallel()

	c := NewController(Config{})
	pump(c, 0.05, 0, 12) // 1.2 s of speech, under the 4 s utterance minimum

	// Sustained silence walks past the base silence window and through the
	// adaptive one. The burst resolves as a single command candidate; a
	// speculative request here would be guaranteed stale.
	actions := pump(c, 0.001, 1200*time.Millisecond, 35)
	if got := actionsOfKind(actions, ActionSubmitSpeculative); len(got) != 0 {
		t.Fatalf("short burst emitted %d speculative submits, want 0", len(got))
	}
	if got := actionsOfKind(actions, ActionSubmitUtterance); len(got) != 0 {
		t.Fatalf("short burst emitted %d utterance submits, want 0", len(got))
	}
	if got := actionsOfKind(actions, ActionSubmitCommand); len(got) != 1 {
		t.Fatalf("command submits = %d, want exactly 1", len(got))
	}
}

func TestController_NonCommandTranscriptIsDiscarded(t *testing.T) {
	t.Parallel()

	c := NewController(Config{})
	out := c.OnTranscript(TranscriptResult{Generation: c.Generation(), Text: "nice weather", CommandOnly: true})
	if out.Kind != OutcomeResume {
		t.Errorf("outcome = %v, want resume: stray phrases must never reach the conversation", out.Kind)
	}
}

func TestController_MuteDropsFrames(t *testing.T) {
	t.Parallel()

	c := NewController(Config{})
	c.SetMuted(true)

	if got := pump(c, 0.05, 0, 20); len(got) != 0 {
		t.Errorf("muted controller emitted %v", got)
	}
	if c.VADState() != vad.StateSilence {
		t.Errorf("vad state = %v while muted, want silence", c.VADState())
	}

	c.SetMuted(false)
	pump(c, 0.05, 2*time.Second, 5)
	if c.VADState() != vad.StateSpeaking {
		t.Errorf("vad state = %v after unmute, want speaking", c.VADState())
	}
}

func TestController_PreRollSeedsUtterance(t *testing.T) {
	t.Parallel()

	c := NewController(Config{})
	pump(c, 0.003, 0, 5)                  // ambient context
	pump(c, 0.05, 500*time.Millisecond, 12) // speech t=0.5..1.6s

	var submit []Action
	for i := range 30 {
		acts := c.OnFrame(frameAt(0.001, 1700*time.Millisecond+time.Duration(i)*step))
		if submit = actionsOfKind(acts, ActionSubmitCommand); len(submit) > 0 {
			break
		}
	}
	if len(submit) == 0 {
		t.Fatal("utterance never submitted")
	}
	// 5 pre-roll + 12 speech + 18 trailing silence frames of 1600 samples.
	if got := len(submit[0].Request.Samples); got != 35*1600 {
		t.Errorf("snapshot = %d samples, want %d including pre-roll", got, 35*1600)
	}
}

func TestController_EndToEndSession(t *testing.T) {
	t.Parallel()

	c := NewController(Config{})

	// Ambient noise settles the floor; nothing is emitted.
	if got := pump(c, 0.003, 0, 20); len(got) != 0 {
		t.Fatalf("ambient frames emitted %v", got)
	}

	// A 5 s utterance, then sustained silence.
	pump(c, 0.05, 2*time.Second, 50)
	actions := pump(c, 0.001, 7*time.Second, 40)
	req := actionsOfKind(actions, ActionSubmitSpeculative)[0].Request

	out := c.OnTranscript(TranscriptResult{Generation: req.Generation, Text: "I have been feeling scattered"})
	if out.Kind != OutcomeFinalText {
		t.Fatalf("outcome = %v, want final_text", out.Kind)
	}

	// Assistant replies; the user talks over it.
	c.PlaybackStarted()
	c.ReportPlaybackProgress(true)
	actions = pump(c, 0.05, 12*time.Second, 3)
	if got := actionsOfKind(actions, ActionCancelPlayback); len(got) != 1 {
		t.Fatalf("barge-in emitted %v, want one cancel_playback", actions)
	}
	if c.VADState() != vad.StateOnsetPending {
		t.Errorf("vad state = %v after barge-in, want onset_pending", c.VADState())
	}
}

func TestAssembleUtterance_Resamples(t *testing.T) {
	t.Parallel()

	frames := []audio.Frame{
		{Samples: make([]float32, 4800), SampleRate: 48000, Timestamp: 0},
		{Samples: make([]float32, 4800), SampleRate: 48000, Timestamp: step},
	}
	samples, dur := assembleUtterance(frames, 16000)
	if len(samples) != 3200 {
		t.Errorf("assembled %d samples, want 3200", len(samples))
	}
	if dur != 200*time.Millisecond {
		t.Errorf("duration = %v, want 200ms", dur)
	}
}

func TestAssembleUtterance_Empty(t *testing.T) {
	t.Parallel()

	samples, dur := assembleUtterance(nil, 16000)
	if samples != nil || dur != 0 {
		t.Errorf("empty assembly = %d samples, %v", len(samples), dur)
	}
}
