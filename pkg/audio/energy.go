package audio

import "math"

// RMS returns the root-mean-square energy of the samples, a proxy for
// loudness on the same normalized [0, 1] scale as the sample amplitudes.
// An empty slice has zero energy.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
