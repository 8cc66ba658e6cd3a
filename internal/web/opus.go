package web

import (
	"fmt"

	"layeh.com/gopus"

	"github.com/akrusz/meditation-pal/pkg/audio"
)

// Clips go to the browser as mono Opus at 20 ms frame size.
const (
	opusChannels    = 1
	opusFrameSizeMS = 20
	// maxOpusPacket bounds a single encoded packet. Far above what a 20 ms
	// mono speech frame produces.
	maxOpusPacket = 4000
)

// opusRate maps a clip sample rate onto one the Opus codec accepts. Clips at
// an unsupported rate are resampled to 48 kHz before encoding.
func opusRate(rate int) int {
	switch rate {
	case 8000, 12000, 16000, 24000, 48000:
		return rate
	}
	return 48000
}

// opusEncoder wraps a gopus encoder for one output sample rate. Encoder state
// carries across packets, so each connection keeps its own encoders.
type opusEncoder struct {
	enc       *gopus.Encoder
	rate      int
	frameSize int
}

func newOpusEncoder(rate int) (*opusEncoder, error) {
	enc, err := gopus.NewEncoder(rate, opusChannels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("web: create opus encoder: %w", err)
	}
	return &opusEncoder{
		enc:       enc,
		rate:      rate,
		frameSize: rate * opusFrameSizeMS / 1000,
	}, nil
}

// encodeClip encodes little-endian int16 PCM into a sequence of Opus packets,
// resampling to the encoder rate if needed and zero-padding the final frame.
func (e *opusEncoder) encodeClip(pcm []byte, srcRate int) ([][]byte, error) {
	samples := audio.Int16ToFloat32(pcm)
	if srcRate != e.rate {
		samples = audio.Resample(samples, srcRate, e.rate)
	}
	ints := audio.Float32ToInt16(samples)

	packets := make([][]byte, 0, (len(ints)+e.frameSize-1)/e.frameSize)
	for off := 0; off < len(ints); off += e.frameSize {
		end := min(off+e.frameSize, len(ints))
		frame := ints[off:end]
		if len(frame) < e.frameSize {
			padded := make([]int16, e.frameSize)
			copy(padded, frame)
			frame = padded
		}
		pkt, err := e.enc.Encode(frame, e.frameSize, maxOpusPacket)
		if err != nil {
			return nil, fmt.Errorf("web: opus encode: %w", err)
		}
		packets = append(packets, pkt)
	}
	return packets, nil
}
