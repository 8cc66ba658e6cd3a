package audio

import (
	"encoding/binary"
	"math"
)

// Float32FromLE decodes little-endian IEEE-754 float32 PCM bytes (the wire
// format of browser AudioWorklet capture) into a sample slice. A trailing
// partial value is ignored.
func Float32FromLE(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := range n {
		bits := binary.LittleEndian.Uint32(b[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// Float32ToLE encodes samples as little-endian IEEE-754 float32 PCM bytes.
func Float32ToLE(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

// Int16ToFloat32 converts 16-bit signed little-endian PCM bytes (the output
// format of most synthesis backends) to normalized float32 samples.
func Int16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := range n {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Float32ToInt16 converts normalized float32 samples to 16-bit signed PCM,
// clamping out-of-range amplitudes instead of wrapping.
func Float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := float64(s) * 32767.0
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i] = int16(v)
	}
	return out
}
