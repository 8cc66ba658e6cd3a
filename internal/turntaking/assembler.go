package turntaking

import (
	"time"

	"github.com/akrusz/meditation-pal/pkg/audio"
)

// assembleUtterance concatenates captured frames into one contiguous sample
// buffer at targetRate, ready for the transcription backend. Capture and
// transcription rarely agree on a sample rate (browsers deliver 44.1 or
// 48 kHz, recognition models want 16 kHz), so the concatenated buffer is
// resampled in one pass. The returned duration is the capture-side span.
func assembleUtterance(frames []audio.Frame, targetRate int) ([]float32, time.Duration) {
	if len(frames) == 0 {
		return nil, 0
	}

	srcRate := frames[0].SampleRate
	total := 0
	var dur time.Duration
	for _, f := range frames {
		total += len(f.Samples)
		dur += f.Duration()
	}

	joined := make([]float32, 0, total)
	for _, f := range frames {
		samples := f.Samples
		if f.SampleRate != srcRate {
			// Mixed-rate buffers only happen when the client renegotiates
			// capture mid-utterance; normalize the stragglers first.
			samples = audio.Resample(samples, f.SampleRate, srcRate)
		}
		joined = append(joined, samples...)
	}

	return audio.Resample(joined, srcRate, targetRate), dur
}
