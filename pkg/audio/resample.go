package audio

import "math"

// Resample converts normalized float32 mono samples from srcRate to dstRate
// using linear interpolation. When the rates already match, the input slice
// is returned unchanged without copying; callers rely on this identity fast
// path being exact.
//
// The output length is round(len(samples) × dstRate ⁄ srcRate). For each
// output index the fractional source position is computed, the two bounding
// source samples are blended by the fractional part, and the final source
// sample is clamped so the read never runs past the end of the input.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 {
		return samples
	}
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}

	dstLen := int(math.Round(float64(len(samples)) * float64(dstRate) / float64(srcRate)))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range out {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		if srcIdx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := srcPos - float64(srcIdx)
		s0 := float64(samples[srcIdx])
		s1 := float64(samples[srcIdx+1])
		out[i] = float32(s0*(1-frac) + s1*frac)
	}
	return out
}
