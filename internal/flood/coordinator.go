// Package flood bundles burst joins into one shared challenge and rate limits chat commands.
package flood

import (
	"crypto/subtle"
	"sync"

	"antispambot/internal/registry"
)

// ShouldFlood decides whether a join is folded into the shared challenge.
// threshold 0 never floods, 1 always floods, otherwise the join floods once
// pending+1 reaches the threshold. Bots are always challenged individually.
func ShouldFlood(threshold, pending int, isBot bool) bool {
	if isBot {
		return false
	}
	switch threshold {
	case 0:
		return false
	case 1:
		return true
	default:
		return pending+1 >= threshold
	}
}

// Coordinator serializes the shared challenge bookkeeping of one chat.
// Methods documented as requiring the lock must be called between Lock and Unlock.
type Coordinator struct {
	mutex sync.Mutex
	reg   *registry.Registry
}

// NewCoordinator creates the coordinator for a chat registry.
func NewCoordinator(reg *registry.Registry) *Coordinator {
	return &Coordinator{reg: reg}
}

// Lock acquires the chat's flood lock.
func (c *Coordinator) Lock() {
	c.mutex.Lock()
}

// Unlock releases the chat's flood lock.
func (c *Coordinator) Unlock() {
	c.mutex.Unlock()
}

// SharedMessage returns the current shared challenge message id. Requires the lock.
func (c *Coordinator) SharedMessage() int {
	return c.reg.FloodMessage()
}

// ReplaceShared records a new shared challenge message and returns the id of
// the message it replaces, 0 when there was none. Requires the lock.
func (c *Coordinator) ReplaceShared(msgID int, callbacks []string) int {
	old := c.reg.FloodMessage()
	c.reg.SetFloodMessage(msgID, callbacks)
	return old
}

// ReleaseIfIdle clears the shared challenge once the flooding partition is
// empty and returns the message to delete. Requires the lock.
func (c *Coordinator) ReleaseIfIdle() (int, bool) {
	if c.reg.FloodingLen() > 0 {
		return 0, false
	}
	id := c.reg.ClearFloodMessage()
	return id, id != 0
}

// IsSharedAccept reports whether payload is the accept button of the shared challenge.
func (c *Coordinator) IsSharedAccept(payload string) bool {
	callbacks := c.reg.FloodCallbacks()
	if len(callbacks) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(callbacks[0]), []byte(payload)) == 1
}
