package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Restore loads every persisted chat. Chats that fail to decode are skipped.
func (e *Engine) Restore(ctx context.Context) error {
	if e.states == nil {
		return nil
	}

	blobs, err := e.states.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load chat state: %w", err)
	}

	e.chatsMutex.Lock()
	defer e.chatsMutex.Unlock()
	for chatID, data := range blobs {
		state, err := unmarshalChatState(chatID, data, e.config.App.StoreChatMessages, e.logger.Named("registry"))
		if err != nil {
			e.logger.Warn("Skipping unreadable chat state",
				zap.Int64("chatID", chatID),
				zap.Error(err))
			continue
		}
		e.chats[chatID] = state
	}

	e.logger.Info("Restored chat state", zap.Int("chats", len(blobs)))
	return nil
}

// Flush writes a snapshot of every chat.
func (e *Engine) Flush(ctx context.Context) {
	if e.states == nil {
		return
	}
	for _, state := range e.snapshotChats() {
		e.flushChat(ctx, state)
	}
}

func (e *Engine) flushChat(ctx context.Context, state *ChatState) {
	if e.states == nil {
		return
	}
	data, err := state.marshal()
	if err != nil {
		e.logger.Error("Failed to serialize chat state",
			zap.Int64("chatID", state.ID),
			zap.Error(err))
		return
	}
	if err := e.states.Save(ctx, state.ID, data); err != nil {
		e.logger.Error("Failed to persist chat state",
			zap.Int64("chatID", state.ID),
			zap.Error(err))
	}
}
