package registry

import (
	"go.uber.org/zap"
)

// Snapshot is the serialized form of a registry.
type Snapshot struct {
	Version        string        `json:"version"`
	NonFlooding    []Participant `json:"non_flooding"`
	Flooding       []Participant `json:"flooding"`
	FloodMsgID     int           `json:"flood_msg_id,omitempty"`
	FloodCallbacks []string      `json:"flood_callbacks,omitempty"`
}

// Snapshot captures the registry state.
func (r *Registry) Snapshot() Snapshot {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	s := Snapshot{
		Version:        r.version,
		NonFlooding:    make([]Participant, 0, len(r.nonFlooding)),
		Flooding:       make([]Participant, 0, len(r.flooding)),
		FloodMsgID:     r.floodMsgID,
		FloodCallbacks: append([]string(nil), r.floodCallbacks...),
	}
	for _, p := range r.nonFlooding {
		s.NonFlooding = append(s.NonFlooding, p)
	}
	for _, p := range r.flooding {
		s.Flooding = append(s.Flooding, p)
	}
	return s
}

// Restore rebuilds a registry from a snapshot, keeping the snapshot's version
// tag so a later sweep can detect and discard incompatible state.
func Restore(logger *zap.Logger, s Snapshot) *Registry {
	r := New(logger)
	r.version = s.Version
	for _, p := range s.NonFlooding {
		p.Flooding = false
		r.nonFlooding[p.UserID] = p
	}
	for _, p := range s.Flooding {
		p.Flooding = true
		delete(r.nonFlooding, p.UserID)
		r.flooding[p.UserID] = p
	}
	r.floodMsgID = s.FloodMsgID
	r.floodCallbacks = append([]string(nil), s.FloodCallbacks...)
	return r
}
