package instrumentation

import "sync/atomic"

// Switch turns one instrumentation on or off. The zero value is inactive.
type Switch struct {
	active atomic.Bool
}

func (s *Switch) Activate() {
	s.active.Store(true)
}

func (s *Switch) Deactivate() {
	s.active.Store(false)
}

func (s *Switch) IsActive() bool {
	return s != nil && s.active.Load()
}
