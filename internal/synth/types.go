// Package synth wraps the neural voice engine behind a narrow model
// interface and runs the synthesis worker.
package synth

import "context"

// Params are the per-alias synthesis knobs passed through to the model.
type Params struct {
	Speaker     int
	LengthScale float64
	NoiseScale  float64
	NoiseW      float64
}

// Model is a loaded voice model. Implementations are not required to be
// safe for concurrent use; the synthesis worker is the only caller.
type Model interface {
	// Phonemize converts text into per-sentence phoneme sequences.
	Phonemize(ctx context.Context, text string) ([][]string, error)
	// Synthesize produces mono 16-bit signed PCM at SampleRate for one
	// phoneme sequence.
	Synthesize(ctx context.Context, phonemes []string, p Params) ([]byte, error)
	SampleRate() int
	Close() error
}

// Engine loads voice models from their on-disk reference.
type Engine interface {
	Load(ctx context.Context, modelPath string) (Model, error)
	Name() string
}
