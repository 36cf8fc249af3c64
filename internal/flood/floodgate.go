package flood

import (
	"sync"
	"time"
)

const (
	// sweepInterval is how often idle keys are dropped
	sweepInterval = 10 * time.Minute
)

// Floodgate is a sliding window rate limiter keyed by arbitrary strings,
// used to throttle chat commands such as mentioning all administrators.
type Floodgate struct {
	limit     int
	window    time.Duration
	entries   map[string]*keyEntry
	mutex     sync.RWMutex
	now       func() time.Time
	stopSweep chan struct{}
	stopOnce  sync.Once
}

// keyEntry holds the accepted hits of one key inside the current window
type keyEntry struct {
	hits     []time.Time
	lastSeen time.Time
}

// NewFloodgate allows at most limit hits per key within window.
func NewFloodgate(limit int, window time.Duration) *Floodgate {
	if limit < 1 {
		limit = 1
	}
	fg := &Floodgate{
		limit:     limit,
		window:    window,
		entries:   make(map[string]*keyEntry),
		now:       time.Now,
		stopSweep: make(chan struct{}),
	}

	go fg.sweepLoop()

	return fg
}

// Stop ends the background sweep.
func (fg *Floodgate) Stop() {
	fg.stopOnce.Do(func() { close(fg.stopSweep) })
}

// Allow records a hit for key. When the key is over its limit the hit is not
// recorded and the time until the oldest hit leaves the window is returned.
func (fg *Floodgate) Allow(key string) (bool, time.Duration) {
	now := fg.now()

	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	entry, ok := fg.entries[key]
	if !ok {
		entry = &keyEntry{hits: make([]time.Time, 0, fg.limit)}
		fg.entries[key] = entry
	}
	entry.lastSeen = now

	windowStart := now.Add(-fg.window)
	kept := entry.hits[:0]
	for _, ts := range entry.hits {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}
	entry.hits = kept

	if len(entry.hits) >= fg.limit {
		return false, entry.hits[0].Add(fg.window).Sub(now)
	}

	entry.hits = append(entry.hits, now)
	return true, 0
}

func (fg *Floodgate) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fg.sweep()
		case <-fg.stopSweep:
			return
		}
	}
}

// sweep drops keys idle for longer than the window
func (fg *Floodgate) sweep() {
	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	cutoff := fg.now().Add(-fg.window)
	for key, entry := range fg.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(fg.entries, key)
		}
	}
}

// Stats reports the limiter state.
func (fg *Floodgate) Stats() Stats {
	fg.mutex.RLock()
	defer fg.mutex.RUnlock()

	return Stats{
		ActiveKeys:    len(fg.entries),
		Limit:         fg.limit,
		WindowSeconds: int(fg.window.Seconds()),
	}
}

// Stats contains floodgate statistics
type Stats struct {
	ActiveKeys    int `json:"active_keys"`
	Limit         int `json:"limit"`
	WindowSeconds int `json:"window_seconds"`
}
