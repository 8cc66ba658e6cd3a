package audio

import (
	"math"
	"testing"
)

func TestRMS_Empty(t *testing.T) {
	t.Parallel()
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
}

func TestRMS_ConstantAmplitude(t *testing.T) {
	t.Parallel()

	samples := make([]float32, 4096)
	for i := range samples {
		samples[i] = 0.5
	}
	if got := RMS(samples); math.Abs(got-0.5) > 1e-6 {
		t.Errorf("RMS of constant 0.5 = %v, want 0.5", got)
	}
}

func TestRMS_Sine(t *testing.T) {
	t.Parallel()

	// RMS of a full-scale sine is 1/√2.
	samples := make([]float32, 48000)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 48000))
	}
	want := 1 / math.Sqrt2
	if got := RMS(samples); math.Abs(got-want) > 1e-3 {
		t.Errorf("RMS of sine = %v, want %v", got, want)
	}
}
