package server

import (
	"sync"

	"github.com/vocalcast/speakerd/internal/protocol"
)

// subscriptions is the per-connection event filter. Subscribe adds to
// the set, Unsubscribe removes from it; a connection starts with an
// empty filter and receives nothing.
type subscriptions struct {
	mu      sync.Mutex
	sources map[string]map[string]struct{}
}

func newSubscriptions() *subscriptions {
	return &subscriptions{sources: make(map[string]map[string]struct{})}
}

// expand resolves "*" wildcards against the known event catalog.
// Unknown sources or types pass through unchanged so a controller can
// subscribe ahead of a daemon upgrade that adds them.
func expand(events map[string][]string) map[string][]string {
	out := make(map[string][]string)
	for source, types := range events {
		if source == "*" {
			for known := range protocol.KnownEvents {
				out[known] = append(out[known], types...)
			}
			continue
		}
		out[source] = append(out[source], types...)
	}
	for source, types := range out {
		expanded := make([]string, 0, len(types))
		for _, typ := range types {
			if typ == "*" {
				expanded = append(expanded, protocol.KnownEvents[source]...)
				continue
			}
			expanded = append(expanded, typ)
		}
		out[source] = expanded
	}
	return out
}

// add unions the requested events into the filter.
func (s *subscriptions) add(events map[string][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for source, types := range expand(events) {
		set, ok := s.sources[source]
		if !ok {
			set = make(map[string]struct{})
			s.sources[source] = set
		}
		for _, typ := range types {
			set[typ] = struct{}{}
		}
	}
}

// remove drops the requested events from the filter. Removing events
// that were never subscribed is a no-op.
func (s *subscriptions) remove(events map[string][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for source, types := range expand(events) {
		set, ok := s.sources[source]
		if !ok {
			continue
		}
		for _, typ := range types {
			delete(set, typ)
		}
		if len(set) == 0 {
			delete(s.sources, source)
		}
	}
}

// matches reports whether the filter admits the given event.
func (s *subscriptions) matches(source, eventType string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sources[source]
	if !ok {
		return false
	}
	_, ok = set[eventType]
	return ok
}

// active lists the current filter, for the subscribe/unsubscribe
// response body.
func (s *subscriptions) active() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]string, len(s.sources))
	for source, set := range s.sources {
		types := make([]string, 0, len(set))
		for typ := range set {
			types = append(types, typ)
		}
		out[source] = types
	}
	return out
}
