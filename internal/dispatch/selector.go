package dispatch

import (
	"errors"

	"dispatch-server/internal/store"
)

// ErrNoInstanceAvailable indicates that every instance in the roster is
// disconnected or the roster is empty.
var ErrNoInstanceAvailable = errors.New("no connected instance available")

// InstanceSelector rotates sends across a roster of gateway instances so
// consecutive messages alternate between numbers. The cursor survives roster
// refreshes by position, which keeps the rotation stable when the roster
// contents are unchanged.
type InstanceSelector struct {
	instances []store.GatewayInstance
	cursor    int
}

func NewInstanceSelector(instances []store.GatewayInstance) *InstanceSelector {
	return &InstanceSelector{instances: instances}
}

// SetRoster replaces the candidate set, keeping the cursor position modulo
// the new size.
func (s *InstanceSelector) SetRoster(instances []store.GatewayInstance) {
	s.instances = instances
	if len(instances) > 0 {
		s.cursor %= len(instances)
	} else {
		s.cursor = 0
	}
}

// Next returns the instance for the next send, skipping entries whose status
// is not connected. It probes at most one full rotation before giving up
// with ErrNoInstanceAvailable.
func (s *InstanceSelector) Next() (store.GatewayInstance, error) {
	n := len(s.instances)
	for i := 0; i < n; i++ {
		candidate := s.instances[s.cursor]
		s.cursor = (s.cursor + 1) % n
		if candidate.Status == store.InstanceStatusConnected {
			return candidate, nil
		}
	}
	return store.GatewayInstance{}, ErrNoInstanceAvailable
}
