package core

import (
	"context"

	"go.uber.org/zap"

	"antispambot/internal/registry"
)

// RunGarbageCollection expires stale state of every chat. It only removes
// entries and never triggers moderation actions for what it expires.
func (e *Engine) RunGarbageCollection() (stats GCStats) {
	defer e.guard("gc", 0, nil)

	cutoff := e.now().Add(-GCHorizon)
	for _, state := range e.snapshotChats() {
		stats.Chats++

		if dropped := state.dropLegacy(); len(dropped) > 0 {
			stats.LegacyKeysDropped += len(dropped)
			e.logger.Warn("Dropped legacy chat state keys",
				zap.Int64("chatID", state.ID),
				zap.Strings("keys", dropped))
		}

		if v := state.Registry().Version(); v != registry.SchemaVersion {
			stats.RegistriesReset++
			e.logger.Warn("Discarding registry with incompatible version",
				zap.Int64("chatID", state.ID),
				zap.String("version", v),
				zap.String("want", registry.SchemaVersion))
			state.resetRegistry(e.logger.Named("registry"))
		}

		checked, freed := state.Registry().Expire(cutoff)
		stats.UsersChecked += checked
		stats.UsersFreed += freed

		// A shared challenge with nobody left on it would never be cleaned up.
		coord := state.Flood()
		coord.Lock()
		if msgID, ok := coord.ReleaseIfIdle(); ok {
			e.logger.Debug("Released idle flood challenge",
				zap.Int64("chatID", state.ID),
				zap.Int("msgID", msgID))
			e.deleteMessage(context.Background(), state.ID, msgID)
		}
		coord.Unlock()

		checked, freed = state.History().Expire(cutoff)
		stats.MessagesChecked += checked
		stats.MessagesFreed += freed
	}

	e.recorder.RecordGC("users", stats.UsersFreed)
	e.recorder.RecordGC("messages", stats.MessagesFreed)
	e.recorder.RecordGC("registries", stats.RegistriesReset)

	e.logger.Info("Garbage collection finished",
		zap.Int("chats", stats.Chats),
		zap.Int("usersChecked", stats.UsersChecked),
		zap.Int("usersFreed", stats.UsersFreed),
		zap.Int("messagesChecked", stats.MessagesChecked),
		zap.Int("messagesFreed", stats.MessagesFreed),
		zap.Int("registriesReset", stats.RegistriesReset))
	return stats
}
