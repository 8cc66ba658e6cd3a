package vad

import (
	"testing"
	"time"

	"github.com/akrusz/meditation-pal/pkg/audio"
)

// constFrame builds a 100 ms frame of constant amplitude so its RMS energy
// equals amp exactly.
func constFrame(amp float32, ts time.Duration) audio.Frame {
	samples := make([]float32, 1600)
	for i := range samples {
		samples[i] = amp
	}
	return audio.Frame{Samples: samples, SampleRate: 16000, Timestamp: ts}
}

// feed pushes count consecutive 100 ms frames of constant amplitude starting
// at start and returns the last result.
func feed(d *Detector, amp float32, start time.Duration, count int) Result {
	var res Result
	for i := range count {
		res = d.Process(constFrame(amp, start+time.Duration(i)*100*time.Millisecond))
	}
	return res
}

func TestDetector_SilenceStaysSilent(t *testing.T) {
	t.Parallel()

	d := NewDetector(Config{})
	res := feed(d, 0.003, 0, 50)

	if res.State != StateSilence {
		t.Errorf("state = %v, want silence", res.State)
	}
	if res.Event != EventNone {
		t.Errorf("event = %v, want none", res.Event)
	}
}

func TestDetector_NoiseFloorConvergesToAmbient(t *testing.T) {
	t.Parallel()

	d := NewDetector(Config{})
	prev := d.NoiseFloor()
	if prev != initialNoiseFloor {
		t.Fatalf("initial floor = %v, want %v", prev, initialNoiseFloor)
	}

	// Ambient energy below the initial floor: the estimate must decrease
	// monotonically toward the ambient mean.
	for i := range 200 {
		d.Process(constFrame(0.003, time.Duration(i)*100*time.Millisecond))
		floor := d.NoiseFloor()
		if floor > prev {
			t.Fatalf("floor rose from %v to %v at frame %d", prev, floor, i)
		}
		prev = floor
	}
	if prev < 0.003 || prev > 0.004 {
		t.Errorf("converged floor = %v, want ≈0.003", prev)
	}
}

func TestDetector_OnsetThenConfirm(t *testing.T) {
	t.Parallel()

	d := NewDetector(Config{})

	res := d.Process(constFrame(0.05, 0))
	if res.Event != EventOnset {
		t.Fatalf("first speech frame event = %v, want onset", res.Event)
	}
	if res.State != StateOnsetPending {
		t.Fatalf("state = %v, want onset_pending", res.State)
	}

	// Four more 100 ms speech frames accumulate the 500 ms minimum.
	var got Result
	for i := 1; i <= 4; i++ {
		got = d.Process(constFrame(0.05, time.Duration(i)*100*time.Millisecond))
	}
	if got.Event != EventSpeechConfirmed {
		t.Errorf("event after 500 ms of speech = %v, want speech_confirmed", got.Event)
	}
	if got.State != StateSpeaking {
		t.Errorf("state = %v, want speaking", got.State)
	}
}

func TestDetector_OnsetGapsAreTolerated(t *testing.T) {
	t.Parallel()

	d := NewDetector(Config{})
	d.Process(constFrame(0.05, 0))

	// A single 100 ms dip inside the onset must not reset the state; brief
	// pauses inside word onsets are part of the utterance.
	res := d.Process(constFrame(0.001, 100*time.Millisecond))
	if res.State != StateOnsetPending {
		t.Errorf("state after short dip = %v, want onset_pending", res.State)
	}
	if res.Event != EventNone {
		t.Errorf("event = %v, want none", res.Event)
	}
}

func TestDetector_NoiseReject(t *testing.T) {
	t.Parallel()

	d := NewDetector(Config{})
	d.Process(constFrame(0.05, 0))

	// Below-threshold frames until the 200 ms reject gap is exceeded.
	d.Process(constFrame(0.001, 100*time.Millisecond))
	d.Process(constFrame(0.001, 200*time.Millisecond))
	res := d.Process(constFrame(0.001, 300*time.Millisecond))

	if res.Event != EventNoiseRejected {
		t.Fatalf("event = %v, want noise_rejected", res.Event)
	}
	if res.State != StateSilence {
		t.Errorf("state = %v, want silence", res.State)
	}
}

func TestDetector_ShortUtteranceRoutedToCommandPath(t *testing.T) {
	t.Parallel()

	d := NewDetector(Config{})

	// 1.2 s of speech, then silence until the adaptive window fires. Total
	// utterance span stays below the 4 s minimum.
	feed(d, 0.05, 0, 12)
	var res Result
	for i := 12; i <= 40; i++ {
		res = d.Process(constFrame(0.001, time.Duration(i)*100*time.Millisecond))
		if res.Event != EventNone {
			break
		}
	}
	if res.Event != EventShortUtterance {
		t.Fatalf("event = %v, want short_utterance", res.Event)
	}
}

func TestDetector_LongUtteranceFinalized(t *testing.T) {
	t.Parallel()

	d := NewDetector(Config{})

	feed(d, 0.05, 0, 51) // 5.1 s of speech
	var res Result
	for i := 51; i <= 120; i++ {
		res = d.Process(constFrame(0.001, time.Duration(i)*100*time.Millisecond))
		if res.Event != EventNone {
			break
		}
	}
	if res.Event != EventUtteranceEnded {
		t.Fatalf("event = %v, want utterance_ended", res.Event)
	}
	if res.SpeechDuration < 4*time.Second {
		t.Errorf("speech duration = %v, want ≥ 4 s", res.SpeechDuration)
	}
}

func TestDetector_AdaptiveWindowGrowsWithUtterance(t *testing.T) {
	t.Parallel()

	d := NewDetector(Config{})

	short := d.adaptiveSilence(1 * time.Second)
	long := d.adaptiveSilence(20 * time.Second)
	capped := d.adaptiveSilence(5 * time.Minute)

	if long <= short {
		t.Errorf("adaptive window did not grow: %v then %v", short, long)
	}
	if capped != d.cfg.MaxSilence {
		t.Errorf("window = %v, want capped at %v", capped, d.cfg.MaxSilence)
	}
}

func TestDetector_ResumedFlagAfterPause(t *testing.T) {
	t.Parallel()

	d := NewDetector(Config{})

	feed(d, 0.05, 0, 11) // confirmed speech through t=1.0s
	feed(d, 0.001, 1100*time.Millisecond, 5)
	res := d.Process(constFrame(0.05, 1600*time.Millisecond))

	if !res.Resumed {
		t.Error("Resumed = false after speech resumed mid-pause, want true")
	}
	if res.State != StateSpeaking {
		t.Errorf("state = %v, want speaking", res.State)
	}
}

func TestNoiseEstimator_RecalibrateRestoresFastCoefficient(t *testing.T) {
	t.Parallel()

	n := NewNoiseEstimator()
	for range noiseCalibrationSamples + 10 {
		n.Update(0.003)
	}

	// One update past the calibration window moves the floor by the slow
	// coefficient.
	slowBefore := n.Floor()
	n.Update(0.02)
	slowDelta := n.Floor() - slowBefore

	// After Recalibrate the same update moves it by the fast coefficient.
	n.Recalibrate()
	fastBefore := n.Floor()
	n.Update(0.02)
	fastDelta := n.Floor() - fastBefore

	if fastDelta <= slowDelta {
		t.Errorf("fast delta %v not greater than slow delta %v", fastDelta, slowDelta)
	}
}

func TestNoiseEstimator_Reset(t *testing.T) {
	t.Parallel()

	n := NewNoiseEstimator()
	for range 50 {
		n.Update(0.2)
	}
	n.Reset()
	if got := n.Floor(); got != initialNoiseFloor {
		t.Errorf("floor after reset = %v, want %v", got, initialNoiseFloor)
	}
}

func TestDetector_ThresholdNeverBelowFixedFloor(t *testing.T) {
	t.Parallel()

	d := NewDetector(Config{})
	// Drive the noise floor toward zero.
	feed(d, 0.0001, 0, 300)

	if got := d.Threshold(); got < d.cfg.EnergyFloor {
		t.Errorf("threshold = %v, want ≥ fixed floor %v", got, d.cfg.EnergyFloor)
	}
}
