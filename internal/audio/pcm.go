// Package audio owns PCM post-processing and playback.
package audio

import (
	"encoding/binary"
	"math"
)

// ApplyVolume scales 16-bit mono PCM in place. The configured volume
// [0,1] maps through a power curve to perceptual loudness so low
// settings do not sound disproportionately quiet.
func ApplyVolume(pcm []byte, volume float64) {
	if volume >= 1.0 {
		return
	}
	if volume <= 0 {
		for i := range pcm {
			pcm[i] = 0
		}
		return
	}
	gain := math.Pow(volume, 2.0)
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(binary.LittleEndian.Uint16(pcm[i:]))
		binary.LittleEndian.PutUint16(pcm[i:], uint16(int16(float64(s)*gain)))
	}
}

// Resample converts 16-bit mono PCM between sample rates using linear
// interpolation. Good enough for speech; no anti-aliasing filter.
func Resample(pcm []byte, fromRate, toRate int) []byte {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(toRate) / int64(fromRate))
	if dstSamples == 0 {
		return nil
	}
	out := make([]byte, dstSamples*2)
	ratio := float64(fromRate) / float64(toRate)
	for i := 0; i < dstSamples; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		s0 := sampleAt(pcm, idx)
		s1 := sampleAt(pcm, idx+1)
		v := float64(s0)*(1-frac) + float64(s1)*frac
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

func sampleAt(pcm []byte, idx int) int16 {
	if idx*2+1 >= len(pcm) {
		idx = len(pcm)/2 - 1
	}
	return int16(binary.LittleEndian.Uint16(pcm[idx*2:]))
}

// Silence produces ms milliseconds of 16-bit mono silence at rate.
func Silence(ms int, rate int) []byte {
	if ms <= 0 || rate <= 0 {
		return nil
	}
	samples := rate * ms / 1000
	return make([]byte, samples*2)
}

// DurationMS computes the playback duration of a 16-bit mono buffer.
func DurationMS(byteLen, rate int) float64 {
	if rate <= 0 {
		return 0
	}
	return float64(byteLen) / 2.0 / float64(rate) * 1000.0
}
