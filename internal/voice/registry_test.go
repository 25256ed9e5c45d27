package voice

import (
	"errors"
	"testing"

	"github.com/vocalcast/speakerd/internal/config"
)

func testAliases() map[string]config.VoiceAlias {
	return map[string]config.VoiceAlias{
		"Amy":    {Model: "/models/amy.onnx", Volume: 1.0, LengthScale: 1.0, NoiseScale: 0.667, NoiseW: 0.8},
		"Broken": {Model: ""},
	}
}

func TestResolve(t *testing.T) {
	r := NewRegistry(testAliases(), "Amy")

	alias, err := r.Resolve("Amy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alias.Model != "/models/amy.onnx" {
		t.Fatalf("unexpected model %q", alias.Model)
	}
}

func TestResolveDefault(t *testing.T) {
	r := NewRegistry(testAliases(), "Amy")
	alias, err := r.Resolve("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alias.Name != "Amy" {
		t.Fatalf("expected default alias, got %q", alias.Name)
	}
}

func TestResolveUnknown(t *testing.T) {
	r := NewRegistry(testAliases(), "Amy")
	if _, err := r.Resolve("Ghost"); !errors.Is(err, ErrUnknownVoice) {
		t.Fatalf("expected ErrUnknownVoice, got %v", err)
	}
}

func TestResolveMissingModel(t *testing.T) {
	r := NewRegistry(testAliases(), "Amy")
	if _, err := r.Resolve("Broken"); !errors.Is(err, ErrMissingModel) {
		t.Fatalf("expected ErrMissingModel, got %v", err)
	}
}

func TestNamesSorted(t *testing.T) {
	r := NewRegistry(testAliases(), "Amy")
	names := r.Names()
	if len(names) != 2 || names[0] != "Amy" || names[1] != "Broken" {
		t.Fatalf("unexpected names %v", names)
	}
}
