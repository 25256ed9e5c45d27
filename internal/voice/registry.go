// Package voice resolves user-configured voice aliases to their model
// reference and synthesis parameters.
package voice

import (
	"errors"
	"sort"
	"sync"

	"github.com/vocalcast/speakerd/internal/config"
)

var (
	ErrUnknownVoice = errors.New("unknown voice alias")
	ErrMissingModel = errors.New("voice alias has no model reference")
)

// Alias is a resolved voice binding.
type Alias struct {
	Name string
	config.VoiceAlias
}

// Registry holds the configured aliases. Reads vastly outnumber
// updates; updates replace the whole table.
type Registry struct {
	mu           sync.RWMutex
	aliases      map[string]config.VoiceAlias
	defaultVoice string
}

func NewRegistry(aliases map[string]config.VoiceAlias, defaultVoice string) *Registry {
	table := make(map[string]config.VoiceAlias, len(aliases))
	for name, alias := range aliases {
		table[name] = alias
	}
	return &Registry{aliases: table, defaultVoice: defaultVoice}
}

// Resolve looks up an alias by name. An empty name resolves to the
// default voice. An alias without a model reference fails fast here so
// it can never reach synthesis.
func (r *Registry) Resolve(name string) (Alias, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = r.defaultVoice
	}
	alias, ok := r.aliases[name]
	if !ok {
		return Alias{}, ErrUnknownVoice
	}
	if alias.Model == "" {
		return Alias{Name: name}, ErrMissingModel
	}
	return Alias{Name: name, VoiceAlias: alias}, nil
}

// Names returns the configured alias names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.aliases))
	for name := range r.aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Replace swaps in a new alias table.
func (r *Registry) Replace(aliases map[string]config.VoiceAlias, defaultVoice string) {
	table := make(map[string]config.VoiceAlias, len(aliases))
	for name, alias := range aliases {
		table[name] = alias
	}
	r.mu.Lock()
	r.aliases = table
	r.defaultVoice = defaultVoice
	r.mu.Unlock()
}
