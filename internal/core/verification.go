package core

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"antispambot/internal/settings"
	"antispambot/internal/token"
)

// OnChallengeClick classifies a challenge button press and resolves the
// challenge when the clicker is entitled to answer it.
func (e *Engine) OnChallengeClick(ctx context.Context, ev ClickEvent) (outcome ClickOutcome) {
	defer func() { e.recorder.RecordVerification(outcome.String()) }()
	defer e.guard("click", ev.ChatID, func() { outcome = ClickMalformed })

	logger := e.logger.With(
		zap.Int64("chatID", ev.ChatID),
		zap.Int64("clickerID", ev.ClickerID))

	payload, err := token.ParsePayload(ev.Data)
	if err != nil {
		logger.Error("Dropping malformed challenge payload",
			zap.String("data", ev.Data),
			zap.Error(err))
		// Right arity with bad ids still gets an answer; anything else is dropped silently.
		if n := len(strings.Fields(ev.Data)); n == 3 || n == 4 {
			e.answer(ctx, ev.CallbackID, e.localizer.T("verify.malformed"), false)
		}
		return ClickMalformed
	}

	state := e.chat(ev.ChatID)
	cfg := state.Settings()

	targetID := ev.ClickerID
	if payload.HasRestrict {
		targetID = payload.RestrictedID
	}

	entry, ok := state.Registry().Get(targetID)
	if !ok {
		logger.Info("Click from a user without a pending challenge", zap.Int64("targetID", targetID))
		e.answer(ctx, ev.CallbackID, e.choice(cfg, settings.PermissionDeny), true)
		return ClickNaughty
	}

	// An explicit id on a flooding entry is as wrong as a missing id on an
	// individual one; both are answered the same way.
	if payload.HasRestrict == entry.Flooding {
		logger.Warn("Challenge payload does not match the pending challenge",
			zap.Int64("targetID", targetID),
			zap.Bool("explicitTarget", payload.HasRestrict),
			zap.Bool("flooding", entry.Flooding))
		e.answer(ctx, ev.CallbackID, e.localizer.T("verify.not_yours"), false)
		return ClickMismatch
	}

	clickerIsAdmin := false
	if !entry.Flooding {
		clickerIsAdmin = e.isAdmin(ctx, ev.ChatID, ev.ClickerID)
		if ev.ClickerID != entry.UserID && ev.ClickerID != entry.InviterID && !clickerIsAdmin {
			logger.Info("Naughty user clicked a challenge button", zap.Int64("targetID", targetID))
			e.answer(ctx, ev.CallbackID, e.choice(cfg, settings.PermissionDeny), true)
			return ClickNaughty
		}
	}

	entry, ok = state.Registry().PopMatching(entry.UserID, entry.JoinMsgID)
	if !ok {
		logger.Debug("Challenge resolved concurrently", zap.Int64("targetID", targetID))
		e.answer(ctx, ev.CallbackID, e.localizer.T("verify.already_resolved"), false)
		return ClickAlreadyResolved
	}
	e.cancelTimeout(ev.ChatID, entry.UserID, entry.JoinMsgID)

	var correct bool
	if entry.Flooding {
		correct = state.Flood().IsSharedAccept(ev.Data)
	} else {
		correct = e.codec.Verify(entry.UserID, entry.JoinMsgID, payload.Token)
	}

	if correct {
		e.unban(ctx, ev.ChatID, entry.UserID, "challenge passed")
		e.answer(ctx, ev.CallbackID, e.choice(cfg, settings.ChallengeSuccess), true)
		outcome = ClickPassed
	} else {
		outcome = ClickFailed
		reason := "challenge failed"
		if !entry.Flooding && clickerIsAdmin {
			outcome = ClickKickedByAdmin
			reason = "kicked by admin"
			if secs := cfg.Int(settings.UnbanTimeout); secs > 0 {
				e.answer(ctx, ev.CallbackID, e.localizer.T("verify.banned_for", secs), true)
			} else {
				e.answer(ctx, ev.CallbackID, e.localizer.T("verify.banned_permanently"), true)
			}
		} else {
			e.answer(ctx, ev.CallbackID, "", false)
		}
		if e.kick(ctx, ev.ChatID, entry.UserID, reason) {
			e.scheduleUnban(state, entry.UserID)
		}
	}

	if entry.Flooding {
		e.removeChallengeMessage(ctx, state, entry)
	} else {
		e.deleteMessage(ctx, ev.ChatID, ev.MessageID)
	}
	if !correct {
		e.deleteMessage(ctx, ev.ChatID, entry.JoinMsgID)
	}

	logger.Info("Challenge resolved",
		zap.Int64("userID", entry.UserID),
		zap.String("outcome", outcome.String()))
	return outcome
}

func (e *Engine) answer(ctx context.Context, callbackID, body string, alert bool) {
	if callbackID == "" {
		return
	}
	if err := e.frontend.AnswerCallback(ctx, callbackID, body, alert); err != nil {
		e.logger.Debug("Failed to answer callback", zap.Error(err))
	}
}

func (e *Engine) choice(cfg *settings.Store, name settings.Name) string {
	s, _ := cfg.Choice(name)
	return s
}
