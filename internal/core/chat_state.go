package core

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"antispambot/internal/flood"
	"antispambot/internal/registry"
	"antispambot/internal/settings"
	"antispambot/internal/store"
)

// Legacy snapshot keys written by older releases.
var legacyKeys = []string{"my_msg", "rest_users"}

// settingsSession is an administrator's pending edit of one option.
type settingsSession struct {
	at       time.Time
	callerID int64
	item     settings.Name
}

// ChatState owns everything the engine knows about one chat. The registry
// and its flood coordinator are swapped together when the garbage collector
// discards an incompatible registry.
type ChatState struct {
	ID int64

	mutex    sync.RWMutex
	registry *registry.Registry
	flood    *flood.Coordinator
	legacy   map[string]json.RawMessage

	settings *settings.Store
	history  *store.MessageHistory

	sessionMutex sync.Mutex
	session      *settingsSession
}

func newChatState(id int64, historySize int, logger *zap.Logger) *ChatState {
	reg := registry.New(logger)
	return &ChatState{
		ID:       id,
		registry: reg,
		flood:    flood.NewCoordinator(reg),
		settings: settings.NewStore(),
		history:  store.NewMessageHistory(historySize, store.DefaultFalsePositiveRate),
	}
}

// Registry returns the chat's current participant registry.
func (c *ChatState) Registry() *registry.Registry {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.registry
}

// Flood returns the coordinator bound to the current registry.
func (c *ChatState) Flood() *flood.Coordinator {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.flood
}

// Settings returns the chat's settings overlay.
func (c *ChatState) Settings() *settings.Store {
	return c.settings
}

// History returns the chat's recent message history.
func (c *ChatState) History() *store.MessageHistory {
	return c.history
}

func (c *ChatState) resetRegistry(logger *zap.Logger) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.registry = registry.New(logger)
	c.flood = flood.NewCoordinator(c.registry)
}

func (c *ChatState) dropLegacy() []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var dropped []string
	for key := range c.legacy {
		dropped = append(dropped, key)
	}
	c.legacy = nil
	return dropped
}

func (c *ChatState) beginSession(callerID int64, item settings.Name, now time.Time) {
	c.sessionMutex.Lock()
	defer c.sessionMutex.Unlock()
	c.session = &settingsSession{at: now, callerID: callerID, item: item}
}

func (c *ChatState) hasSession(callerID int64) bool {
	c.sessionMutex.Lock()
	defer c.sessionMutex.Unlock()
	return c.session != nil && c.session.callerID == callerID
}

// takeSession returns the pending session when callerID owns it. The session is
// cleared when it is returned or has expired.
func (c *ChatState) takeSession(callerID int64, now time.Time) (*settingsSession, SettingsStatus) {
	c.sessionMutex.Lock()
	defer c.sessionMutex.Unlock()

	s := c.session
	if s == nil || s.callerID != callerID {
		return nil, SettingsIgnored
	}
	c.session = nil
	if now.Sub(s.at) > SettingsSessionTimeout {
		return nil, SettingsExpired
	}
	return s, SettingsSaved
}

func (c *ChatState) cancelSession() bool {
	c.sessionMutex.Lock()
	defer c.sessionMutex.Unlock()
	had := c.session != nil
	c.session = nil
	return had
}

type chatSnapshot struct {
	Registry registry.Snapshot                 `json:"registry"`
	Settings map[settings.Name]*settings.Value `json:"settings"`
	History  []store.MessageEntry              `json:"history"`
}

func (c *ChatState) marshal() ([]byte, error) {
	c.mutex.RLock()
	snap := chatSnapshot{
		Registry: c.registry.Snapshot(),
		Settings: c.settings.Overlay(),
		History:  c.history.Entries(),
	}
	legacy := make(map[string]json.RawMessage, len(c.legacy))
	for k, v := range c.legacy {
		legacy[k] = v
	}
	c.mutex.RUnlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat %d: %w", c.ID, err)
	}
	if len(legacy) == 0 {
		return data, nil
	}

	// Keep legacy keys until the garbage collector has logged and dropped them.
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, fmt.Errorf("failed to merge legacy keys of chat %d: %w", c.ID, err)
	}
	for k, v := range legacy {
		merged[k] = v
	}
	return json.Marshal(merged)
}

func unmarshalChatState(id int64, data []byte, historySize int, logger *zap.Logger) (*ChatState, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode chat %d: %w", id, err)
	}

	var snap chatSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode chat %d: %w", id, err)
	}

	c := newChatState(id, historySize, logger)
	if _, ok := raw["registry"]; ok {
		c.registry = registry.Restore(logger, snap.Registry)
		c.flood = flood.NewCoordinator(c.registry)
	}
	c.settings = settings.RestoreStore(snap.Settings)
	c.history.Load(snap.History)

	for _, key := range legacyKeys {
		if v, ok := raw[key]; ok {
			if c.legacy == nil {
				c.legacy = make(map[string]json.RawMessage)
			}
			c.legacy[key] = v
		}
	}
	return c, nil
}
