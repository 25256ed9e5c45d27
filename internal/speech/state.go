package speech

import "sync/atomic"

// State carries the engine-wide flags shared by the ingestion path and
// the workers. Constructed once and passed to every component; workers
// only ever read it at their loop boundaries.
type State struct {
	enabled atomic.Bool
	paused  atomic.Bool
}

func NewState() *State {
	s := &State{}
	s.enabled.Store(true)
	return s
}

func (s *State) Enabled() bool        { return s.enabled.Load() }
func (s *State) SetEnabled(v bool)    { s.enabled.Store(v) }
func (s *State) Paused() bool         { return s.paused.Load() }
func (s *State) SetPaused(v bool)     { s.paused.Store(v) }
