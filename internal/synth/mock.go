package synth

import (
	"context"
	"strings"
)

const mockSampleRate = 22050

// mockEngine synthesizes deterministic placeholder audio without any
// native runtime. Used for development and tests.
type mockEngine struct{}

func NewMockEngine() Engine { return &mockEngine{} }

func (m *mockEngine) Name() string { return "mock" }

func (m *mockEngine) Load(_ context.Context, modelPath string) (Model, error) {
	return &mockModel{path: modelPath}, nil
}

type mockModel struct {
	path   string
	closed bool
}

func (m *mockModel) SampleRate() int { return mockSampleRate }

func (m *mockModel) Close() error {
	m.closed = true
	return nil
}

// Phonemize splits on sentence punctuation and treats each rune as one
// phoneme, which is close enough to exercise the chunker.
func (m *mockModel) Phonemize(_ context.Context, text string) ([][]string, error) {
	var sentences [][]string
	var current []string
	for _, r := range strings.TrimSpace(text) {
		current = append(current, string(r))
		if r == '.' || r == '!' || r == '?' {
			sentences = append(sentences, current)
			current = nil
		}
	}
	if len(current) > 0 {
		sentences = append(sentences, current)
	}
	return sentences, nil
}

// Synthesize emits 160 samples per phoneme of a low-amplitude square
// wave so duration scales with input length.
func (m *mockModel) Synthesize(_ context.Context, phonemes []string, _ Params) ([]byte, error) {
	const samplesPerPhoneme = 160
	pcm := make([]byte, len(phonemes)*samplesPerPhoneme*2)
	for i := 0; i < len(pcm); i += 2 {
		var v int16 = 1000
		if (i/2)%64 >= 32 {
			v = -1000
		}
		pcm[i] = byte(v)
		pcm[i+1] = byte(v >> 8)
	}
	return pcm, nil
}
