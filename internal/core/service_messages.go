package core

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"antispambot/internal/settings"
	"antispambot/internal/store"
)

// RecordMessage appends a group message to the chat's history.
func (e *Engine) RecordMessage(msg ChatMessage) {
	at := msg.At
	if at.IsZero() {
		at = e.now()
	}
	e.chat(msg.ChatID).History().Record(store.MessageEntry{
		AuthorID:  msg.AuthorID,
		MessageID: msg.MessageID,
		At:        at,
	})
}

// OnMemberLeft deletes the "member left" notice when the chat asks for it.
func (e *Engine) OnMemberLeft(ctx context.Context, chatID int64, msgID int) {
	e.deleteIfEnabled(ctx, chatID, msgID, settings.DelLeaveMsg)
}

// OnServiceMessage deletes other service notices when the chat asks for it.
func (e *Engine) OnServiceMessage(ctx context.Context, chatID int64, msgID int) {
	e.deleteIfEnabled(ctx, chatID, msgID, settings.DelServiceMsg)
}

func (e *Engine) deleteIfEnabled(ctx context.Context, chatID int64, msgID int, option settings.Name) {
	if !e.chat(chatID).Settings().Bool(option) {
		e.logger.Debug("Keeping service message",
			zap.Int64("chatID", chatID),
			zap.Int("messageID", msgID),
			zap.String("option", string(option)))
		return
	}
	e.deleteMessage(ctx, chatID, msgID)
}

// OnAtAdmins mentions the chat's administrators, at most once per rate limit
// window. Requests inside the window get a short lived notice instead.
func (e *Engine) OnAtAdmins(ctx context.Context, chatID int64, msgID int) {
	defer e.guard("admins", chatID, nil)

	allowed, retryAfter := e.adminGate.Allow(strconv.FormatInt(chatID, 10))
	if !allowed {
		notice := e.sendNotice(ctx, chatID, msgID, e.localizer.T("admins.wait", retryAfter.Seconds()))
		e.scheduleDelete(chatID, RateLimitNoticeDelay, msgID, notice)
		return
	}

	mentions, err := e.frontend.AdminMentions(ctx, chatID)
	if err != nil {
		e.logger.Warn("Failed to list administrators",
			zap.Int64("chatID", chatID),
			zap.Error(err))
		return
	}
	if len(mentions) == 0 {
		e.sendNotice(ctx, chatID, msgID, e.localizer.T("admins.none"))
		return
	}
	e.sendNotice(ctx, chatID, msgID, strings.Join(mentions, "  "))
}
