// Package store keeps per-chat message history, cached administrator lists and persisted chat state.
package store

import (
	"strconv"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
)

// DefaultFalsePositiveRate of the author prefilter.
const DefaultFalsePositiveRate = 0.01

// MessageEntry is one message seen in a chat.
type MessageEntry struct {
	AuthorID  int64     `json:"author_id"`
	MessageID int       `json:"message_id"`
	At        time.Time `json:"at"`
}

// MessageHistory is a bounded, arrival-ordered list of recent messages of one
// chat. A bloom filter over author ids short-circuits lookups for authors
// that have not posted.
type MessageHistory struct {
	entries           []MessageEntry
	authors           *bloom.BloomFilter
	mutex             sync.RWMutex
	capacity          int
	falsePositiveRate float64
}

// NewMessageHistory creates a history holding at most capacity entries.
func NewMessageHistory(capacity int, falsePositiveRate float64) *MessageHistory {
	if capacity < 1 {
		capacity = 1
	}
	h := &MessageHistory{
		capacity:          capacity,
		falsePositiveRate: falsePositiveRate,
	}
	h.authors = h.newFilter()
	return h
}

func (h *MessageHistory) newFilter() *bloom.BloomFilter {
	return bloom.NewWithEstimates(uint(h.capacity), h.falsePositiveRate)
}

func authorKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Record appends a message, dropping the oldest entry when full.
func (h *MessageHistory) Record(e MessageEntry) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.entries = append(h.entries, e)
	h.authors.AddString(authorKey(e.AuthorID))

	if over := len(h.entries) - h.capacity; over > 0 {
		h.entries = append(h.entries[:0:0], h.entries[over:]...)
	}
}

// TakeNewer removes and returns the ids of messages by author with an id
// greater than afterMsgID.
func (h *MessageHistory) TakeNewer(authorID int64, afterMsgID int) []int {
	return h.take(func(e MessageEntry) bool {
		return e.AuthorID == authorID && e.MessageID > afterMsgID
	}, authorID)
}

// TakeAuthor removes and returns the ids of every message by author.
func (h *MessageHistory) TakeAuthor(authorID int64) []int {
	return h.take(func(e MessageEntry) bool {
		return e.AuthorID == authorID
	}, authorID)
}

func (h *MessageHistory) take(match func(MessageEntry) bool, authorID int64) []int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if !h.authors.TestString(authorKey(authorID)) {
		return nil
	}

	var taken []int
	kept := h.entries[:0]
	for _, e := range h.entries {
		if match(e) {
			taken = append(taken, e.MessageID)
			continue
		}
		kept = append(kept, e)
	}
	h.entries = kept

	if len(taken) > 0 {
		h.rebuildFilter()
	}
	return taken
}

// Expire drops entries recorded at or before cutoff.
func (h *MessageHistory) Expire(cutoff time.Time) (checked, freed int) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	checked = len(h.entries)
	kept := h.entries[:0]
	for _, e := range h.entries {
		if e.At.After(cutoff) {
			kept = append(kept, e)
		}
	}
	freed = checked - len(kept)
	h.entries = kept

	if freed > 0 {
		h.rebuildFilter()
	}
	return checked, freed
}

// bloom filters cannot delete, so the filter is rebuilt from what remains
func (h *MessageHistory) rebuildFilter() {
	h.authors = h.newFilter()
	for _, e := range h.entries {
		h.authors.AddString(authorKey(e.AuthorID))
	}
}

// Len returns the number of stored entries.
func (h *MessageHistory) Len() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.entries)
}

// Entries returns a copy of the stored entries, oldest first.
func (h *MessageHistory) Entries() []MessageEntry {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return append([]MessageEntry(nil), h.entries...)
}

// Load replaces the history with entries, keeping only the newest that fit.
func (h *MessageHistory) Load(entries []MessageEntry) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if over := len(entries) - h.capacity; over > 0 {
		entries = entries[over:]
	}
	h.entries = append([]MessageEntry(nil), entries...)
	h.rebuildFilter()
}
