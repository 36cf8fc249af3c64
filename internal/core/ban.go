package core

import (
	"context"
	"slices"

	"go.uber.org/zap"
)

// OnExplicitBanCommand kicks the participants behind the replied message.
// Pending challenges are resolved without an answer check.
func (e *Engine) OnExplicitBanCommand(ctx context.Context, cmd BanCommand) (result BanResult) {
	defer e.guard("ban", cmd.ChatID, nil)

	logger := e.logger.With(
		zap.Int64("chatID", cmd.ChatID),
		zap.Int64("actorID", cmd.ActorID))

	if !e.isAdmin(ctx, cmd.ChatID, cmd.ActorID) {
		logger.Debug("Ignoring /ban from a non-administrator")
		result.Denied = true
		return result
	}
	if cmd.ReplyMsgID == 0 {
		e.sendNotice(ctx, cmd.ChatID, cmd.CommandMsgID, e.localizer.T("ban.reply_required"))
		return result
	}

	state := e.chat(cmd.ChatID)
	var targets []int64
	for _, id := range e.ResolveBanTargets(cmd) {
		if e.isAdmin(ctx, cmd.ChatID, id) {
			result.Skipped = append(result.Skipped, id)
			continue
		}
		targets = append(targets, id)
	}
	if len(targets) == 0 {
		e.sendNotice(ctx, cmd.ChatID, cmd.CommandMsgID, e.localizer.T("ban.cannot_ban_admin"))
		return result
	}

	for _, userID := range targets {
		entry, pending := state.Registry().Get(userID)
		if !pending {
			if e.kick(ctx, cmd.ChatID, userID, "explicitly kicked") {
				result.Kicked = append(result.Kicked, userID)
				e.scheduleBanUnban(state, userID)
			}
			msgIDs := state.History().TakeAuthor(userID)
			if !slices.Contains(msgIDs, cmd.ReplyMsgID) {
				msgIDs = append(msgIDs, cmd.ReplyMsgID)
			}
			for _, id := range msgIDs {
				e.deleteMessage(ctx, cmd.ChatID, id)
			}
			continue
		}

		e.cancelTimeout(cmd.ChatID, entry.UserID, entry.JoinMsgID)
		if e.kick(ctx, cmd.ChatID, userID, "explicitly kicked before challenge") {
			result.Kicked = append(result.Kicked, userID)
			e.scheduleBanUnban(state, userID)
		}
		if popped, ok := state.Registry().PopMatching(entry.UserID, entry.JoinMsgID); ok {
			result.Resolved = append(result.Resolved, userID)
			e.removeChallengeMessage(ctx, state, popped)
		}
		e.deleteMessage(ctx, cmd.ChatID, entry.JoinMsgID)
	}

	e.scheduleDelete(cmd.ChatID, BanNoticeDelay, cmd.CommandMsgID)
	logger.Info("Explicit ban handled",
		zap.Int64s("kicked", result.Kicked),
		zap.Int64s("resolved", result.Resolved))
	return result
}

// ResolveBanTargets picks the participants a /ban reply refers to: the members
// a join message announced, the participant of a challenge message sent by the
// bot, or the author of any other message.
func (e *Engine) ResolveBanTargets(cmd BanCommand) []int64 {
	if len(cmd.NewMemberIDs) > 0 {
		return append([]int64(nil), cmd.NewMemberIDs...)
	}
	if cmd.ReplyFromBot {
		state, ok := e.Chat(cmd.ChatID)
		if !ok {
			return nil
		}
		if entry, ok := state.Registry().FindByChallengeMessage(cmd.ReplyMsgID); ok {
			return []int64{entry.UserID}
		}
		return nil
	}
	if cmd.ReplyAuthorID != 0 {
		return []int64{cmd.ReplyAuthorID}
	}
	return nil
}

func (e *Engine) scheduleBanUnban(state *ChatState, userID int64) {
	if e.config.App.BanRespectsUnbanTimeout {
		e.scheduleUnban(state, userID)
	}
}
