// Package registry tracks the participants of one chat that are currently mid-challenge.
package registry

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// SchemaVersion tags serialized registries. Snapshots carrying any other
// version are discarded on load instead of migrated.
const SchemaVersion = "0.0.2"

// Participant is one restricted participant waiting for verification.
// Entries are replaced, never mutated in place.
type Participant struct {
	UserID         int64     `json:"user_id"`
	JoinMsgID      int       `json:"join_msg_id"`
	ChallengeMsgID int       `json:"challenge_msg_id"`
	InviterID      int64     `json:"inviter_id,omitempty"` // 0 when bundled into a flood challenge
	Flooding       bool      `json:"flooding"`
	CreatedAt      time.Time `json:"created_at"`
}

// Registry holds two disjoint partitions of pending participants keyed by
// user id, plus the bookkeeping of the shared flood challenge message.
type Registry struct {
	mutex          sync.RWMutex
	logger         *zap.Logger
	version        string
	nonFlooding    map[int64]Participant
	flooding       map[int64]Participant
	floodMsgID     int
	floodCallbacks []string
}

// New creates an empty registry at the current schema version.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		logger:      logger,
		version:     SchemaVersion,
		nonFlooding: make(map[int64]Participant),
		flooding:    make(map[int64]Participant),
	}
}

// Version returns the schema version this registry was created or restored with.
func (r *Registry) Version() string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.version
}

// Add inserts p into the partition matching its flooding flag, evicting any
// previous entry for the same user from either partition.
func (r *Registry) Add(p Participant) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if old, ok := r.popLocked(p.UserID); ok {
		r.logger.Debug("Evicted stale registry entry",
			zap.Int64("userID", old.UserID),
			zap.Int("oldJoinMsgID", old.JoinMsgID),
			zap.Int("newJoinMsgID", p.JoinMsgID),
			zap.Bool("oldFlooding", old.Flooding))
	}

	if p.Flooding {
		r.flooding[p.UserID] = p
	} else {
		r.nonFlooding[p.UserID] = p
	}
}

// Get looks up a participant, probing the flooding partition first.
func (r *Registry) Get(userID int64) (Participant, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if p, ok := r.flooding[userID]; ok {
		return p, true
	}
	p, ok := r.nonFlooding[userID]
	return p, ok
}

// Pop removes and returns a participant, probing the flooding partition first.
func (r *Registry) Pop(userID int64) (Participant, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.popLocked(userID)
}

// PopMatching removes the participant only if its entry belongs to the given
// join event. A timer left over from an earlier join cannot resolve a newer challenge.
func (r *Registry) PopMatching(userID int64, joinMsgID int) (Participant, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if p, ok := r.flooding[userID]; ok {
		if p.JoinMsgID != joinMsgID {
			return Participant{}, false
		}
		delete(r.flooding, userID)
		return p, true
	}
	if p, ok := r.nonFlooding[userID]; ok {
		if p.JoinMsgID != joinMsgID {
			return Participant{}, false
		}
		delete(r.nonFlooding, userID)
		return p, true
	}
	return Participant{}, false
}

func (r *Registry) popLocked(userID int64) (Participant, bool) {
	if p, ok := r.flooding[userID]; ok {
		delete(r.flooding, userID)
		return p, true
	}
	if p, ok := r.nonFlooding[userID]; ok {
		delete(r.nonFlooding, userID)
		return p, true
	}
	return Participant{}, false
}

// FindByChallengeMessage returns the participant whose challenge was sent as msgID.
// Flood-bundled participants share one message; the first match is returned.
func (r *Registry) FindByChallengeMessage(msgID int) (Participant, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if msgID == 0 {
		return Participant{}, false
	}
	for _, p := range r.flooding {
		if p.ChallengeMsgID == msgID {
			return p, true
		}
	}
	for _, p := range r.nonFlooding {
		if p.ChallengeMsgID == msgID {
			return p, true
		}
	}
	return Participant{}, false
}

// Len returns the total number of pending participants.
func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.flooding) + len(r.nonFlooding)
}

// FloodingLen returns the size of the flooding partition.
func (r *Registry) FloodingLen() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.flooding)
}

// NonFloodingLen returns the size of the non-flooding partition.
func (r *Registry) NonFloodingLen() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.nonFlooding)
}

// FloodMessage returns the shared flood challenge message id, 0 when none.
func (r *Registry) FloodMessage() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.floodMsgID
}

// FloodCallbacks returns a copy of the shared challenge button payloads.
// The first element is the accept payload.
func (r *Registry) FloodCallbacks() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return append([]string(nil), r.floodCallbacks...)
}

// SetFloodMessage records the shared challenge message and its button payloads.
// Callers serialize this through the chat's flood coordinator.
func (r *Registry) SetFloodMessage(msgID int, callbacks []string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.floodMsgID = msgID
	r.floodCallbacks = append([]string(nil), callbacks...)
}

// ClearFloodMessage forgets the shared challenge message and returns its id.
func (r *Registry) ClearFloodMessage() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	id := r.floodMsgID
	r.floodMsgID = 0
	r.floodCallbacks = nil
	return id
}

// Expire removes every participant created at or before cutoff and returns
// how many entries were checked and freed.
func (r *Registry) Expire(cutoff time.Time) (checked, freed int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, part := range []map[int64]Participant{r.flooding, r.nonFlooding} {
		for id, p := range part {
			checked++
			if !p.CreatedAt.After(cutoff) {
				delete(part, id)
				freed++
			}
		}
	}
	return checked, freed
}
