package audio

import (
	"encoding/binary"
	"testing"
)

func pcm16(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestApplyVolumeFull(t *testing.T) {
	buf := pcm16(1000, -1000)
	ApplyVolume(buf, 1.0)
	if int16(binary.LittleEndian.Uint16(buf)) != 1000 {
		t.Fatal("full volume must not modify samples")
	}
}

func TestApplyVolumeZeroSilences(t *testing.T) {
	buf := pcm16(1000, -1000)
	ApplyVolume(buf, 0)
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("expected silence at byte %d", i)
		}
	}
}

func TestApplyVolumePowerCurve(t *testing.T) {
	buf := pcm16(10000)
	ApplyVolume(buf, 0.5)
	got := int16(binary.LittleEndian.Uint16(buf))
	// 0.5^2 = 0.25 gain
	if got != 2500 {
		t.Fatalf("expected 2500, got %d", got)
	}
}

func TestResampleIdentity(t *testing.T) {
	buf := pcm16(1, 2, 3)
	out := Resample(buf, 22050, 22050)
	if &out[0] != &buf[0] {
		t.Fatal("same-rate resample should return the input")
	}
}

func TestResampleDoublesLength(t *testing.T) {
	buf := pcm16(0, 100, 200, 300)
	out := Resample(buf, 11025, 22050)
	if len(out) != len(buf)*2 {
		t.Fatalf("expected %d bytes, got %d", len(buf)*2, len(out))
	}
	// Interpolated midpoint between first two samples.
	mid := int16(binary.LittleEndian.Uint16(out[2:]))
	if mid != 50 {
		t.Fatalf("expected interpolated 50, got %d", mid)
	}
}

func TestResampleHalvesLength(t *testing.T) {
	buf := pcm16(0, 100, 200, 300)
	out := Resample(buf, 44100, 22050)
	if len(out) != len(buf)/2 {
		t.Fatalf("expected %d bytes, got %d", len(buf)/2, len(out))
	}
}

func TestSilenceLength(t *testing.T) {
	buf := Silence(200, 22050)
	if len(buf) != 22050/5*2 {
		t.Fatalf("unexpected silence length %d", len(buf))
	}
	for _, b := range buf {
		if b != 0 {
			t.Fatal("silence must be zero-valued")
		}
	}
}

func TestDurationMS(t *testing.T) {
	// One second of 16-bit mono at 22050 Hz.
	if d := DurationMS(22050*2, 22050); d != 1000 {
		t.Fatalf("expected 1000ms, got %f", d)
	}
	if d := DurationMS(0, 22050); d != 0 {
		t.Fatalf("expected 0ms, got %f", d)
	}
}
