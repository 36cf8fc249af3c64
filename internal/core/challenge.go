package core

import (
	"context"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"antispambot/internal/chat"
	"antispambot/internal/flood"
	"antispambot/internal/registry"
	"antispambot/internal/settings"
	"antispambot/internal/spam"
	"antispambot/internal/token"
	"antispambot/pkg/text"
)

// Button row packing.
const (
	rowWidth     = 20
	maxRowLength = 4
)

// OnParticipantJoined restricts a new participant and issues a challenge,
// individually or bundled into the chat's shared flood challenge.
func (e *Engine) OnParticipantJoined(ctx context.Context, ev JoinEvent) (outcome JoinOutcome) {
	defer e.guard("join", ev.ChatID, func() { outcome = JoinFailed })

	state := e.chat(ev.ChatID)
	p := ev.Participant
	logger := e.logger.With(
		zap.Int64("chatID", ev.ChatID),
		zap.Int64("userID", p.ID),
		zap.Int("joinMsgID", ev.JoinMsgID))

	if ev.InviterID != 0 && ev.InviterID != p.ID && e.isAdmin(ctx, ev.ChatID, ev.InviterID) {
		logger.Info("Skipping challenge for participant invited by an administrator",
			zap.Int64("inviterID", ev.InviterID))
		return JoinSkipped
	}

	cfg := state.Settings()
	timeout := e.challengeTimeout(ctx, p.DisplayName,
		cfg.Int(settings.MinChallengeTime), cfg.Int(settings.ChallengeTimeout))
	question := cfg.ChooseQuestion()
	flooding := flood.ShouldFlood(cfg.Int(settings.FloodLimit), state.Registry().Len(), p.IsBot)

	if err := e.frontend.Restrict(ctx, ev.ChatID, p.ID); err != nil {
		e.recorder.RecordModeration("restrict", false)
		logger.Error("Cannot restrict new participant",
			zap.Bool("bot", p.IsBot),
			zap.Error(err))
		e.sendNotice(ctx, ev.ChatID, 0, e.localizer.T("challenge.grant_rights", mentionOf(p)))
		// The bot's own rights changed, so the cached administrator list is stale too.
		e.OnAdminsChanged(ev.ChatID)
		return JoinNoRights
	}
	e.recorder.RecordModeration("restrict", true)

	accept, buttons := e.challengeButtons(p.ID, ev.JoinMsgID, question, flooding)
	welcome, _ := cfg.Choice(settings.WelcomeWords)
	body := strings.ReplaceAll(welcome, "%time%", strconv.Itoa(timeout)) + "\n" + question.Text

	inviter := ev.InviterID
	if inviter == 0 {
		inviter = p.ID
	}
	entry := registry.Participant{
		UserID:    p.ID,
		JoinMsgID: ev.JoinMsgID,
		Flooding:  flooding,
		CreatedAt: e.now(),
	}

	chatID, userID, joinMsgID := ev.ChatID, p.ID, ev.JoinMsgID
	scheduleTimeout := func() {
		e.scheduler.ScheduleOnce(time.Duration(timeout)*time.Second, ChallengeKey(userID, chatID, joinMsgID), func() {
			e.onChallengeTimeout(chatID, userID, joinMsgID)
		})
	}

	if flooding {
		coord := state.Flood()
		coord.Lock()
		pending := e.localizer.T("challenge.flood_pending", state.Registry().Len()+1)
		msgID, err := e.sendChallenge(ctx, ev.ChatID, ev.JoinMsgID, pending+body, packButtons(buttons))
		if err != nil {
			coord.Unlock()
			logger.Error("Failed to send flood challenge", zap.Error(err))
			e.unban(ctx, ev.ChatID, p.ID, "challenge not delivered")
			return JoinFailed
		}
		if old := coord.ReplaceShared(msgID, []string{accept}); old != 0 {
			logger.Debug("Replaced shared flood challenge", zap.Int("oldMsgID", old))
			e.deleteMessage(ctx, ev.ChatID, old)
		}
		entry.ChallengeMsgID = msgID
		state.Registry().Add(entry)
		scheduleTimeout()
		coord.Unlock()
	} else {
		msgID, err := e.sendChallenge(ctx, ev.ChatID, ev.JoinMsgID, body, packButtons(buttons))
		if err != nil {
			logger.Error("Failed to send challenge", zap.Error(err))
			e.unban(ctx, ev.ChatID, p.ID, "challenge not delivered")
			return JoinFailed
		}
		entry.ChallengeMsgID = msgID
		entry.InviterID = inviter
		state.Registry().Add(entry)
		scheduleTimeout()
	}

	for _, id := range state.History().TakeNewer(p.ID, ev.JoinMsgID) {
		e.deleteMessage(ctx, ev.ChatID, id)
	}

	if flooding {
		outcome = JoinFlooded
	} else {
		outcome = JoinChallenged
	}
	e.recorder.RecordChallenge(outcome.String())
	logger.Info("Challenge issued",
		zap.Bool("flooding", flooding),
		zap.Bool("bot", p.IsBot),
		zap.Int("timeoutSecs", timeout))
	return outcome
}

// challengeTimeout scales the timeout between minSecs and maxSecs by the
// spam score of the display name; higher scores get less time. Any scoring
// failure falls back to maxSecs.
func (e *Engine) challengeTimeout(ctx context.Context, name string, minSecs, maxSecs int) int {
	score, err := e.scorer.Score(ctx, name)
	if err != nil {
		e.logger.Debug("Spam scoring failed, using full timeout", zap.Error(err))
		return maxSecs
	}
	if score < 0 || score > spam.MaxScore {
		e.logger.Debug("Spam score out of range, using full timeout", zap.Float64("score", score))
		return maxSecs
	}
	return int((spam.MaxScore-score)/spam.MaxScore*float64(maxSecs-minSecs) + float64(minSecs))
}

// challengeButtons renders the accept button and one decoy per wrong answer.
// Individual challenges repeat the participant id as a fourth field.
func (e *Engine) challengeButtons(userID int64, joinMsgID int, q settings.Question, flooding bool) (string, []chat.Button) {
	payload := func(tok string) string {
		return token.Payload{
			TargetID:     userID,
			Token:        tok,
			RestrictedID: userID,
			HasRestrict:  !flooding,
		}.String()
	}

	accept := payload(e.codec.Accept(userID, joinMsgID))
	buttons := []chat.Button{{Text: q.Answer, Data: accept}}
	for _, wrong := range q.Wrong {
		buttons = append(buttons, chat.Button{Text: wrong, Data: payload(e.codec.Decoy(userID, joinMsgID))})
	}
	return accept, buttons
}

// packButtons shuffles buttons and fills rows greedily by display width.
func packButtons(buttons []chat.Button) chat.Keyboard {
	shuffled := append([]chat.Button(nil), buttons...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	rows := chat.Keyboard{{}}
	budget := rowWidth
	for _, b := range shuffled {
		w := text.DisplayWidth(b.Text)
		budget -= w
		last := len(rows) - 1
		if budget < 0 || len(rows[last]) >= maxRowLength {
			budget = rowWidth - w
			rows = append(rows, []chat.Button{b})
			continue
		}
		rows[last] = append(rows[last], b)
	}
	if len(rows[0]) == 0 {
		rows = rows[1:]
	}
	return rows
}

func (e *Engine) sendChallenge(ctx context.Context, chatID int64, replyTo int, body string, kb chat.Keyboard) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= SendAttempts; attempt++ {
		msgID, err := e.frontend.SendMessage(ctx, chatID, replyTo, body, kb)
		if err == nil {
			return msgID, nil
		}
		lastErr = err
		e.logger.Debug("Challenge send attempt failed",
			zap.Int64("chatID", chatID),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return 0, lastErr
}

func (e *Engine) sendNotice(ctx context.Context, chatID int64, replyTo int, body string) int {
	msgID, err := e.frontend.SendMessage(ctx, chatID, replyTo, body, nil)
	if err != nil {
		e.logger.Warn("Failed to send message",
			zap.Int64("chatID", chatID),
			zap.Error(err))
		return 0
	}
	return msgID
}

// onChallengeTimeout kicks a participant who never answered.
func (e *Engine) onChallengeTimeout(chatID, userID int64, joinMsgID int) {
	defer e.guard("timeout", chatID, nil)

	ctx := context.Background()
	state := e.chat(chatID)
	entry, ok := state.Registry().PopMatching(userID, joinMsgID)
	if !ok {
		e.logger.Debug("Challenge already resolved before timeout",
			zap.Int64("chatID", chatID),
			zap.Int64("userID", userID))
		return
	}

	if e.kick(ctx, chatID, userID, "challenge timeout") {
		e.scheduleUnban(state, userID)
	}
	e.removeChallengeMessage(ctx, state, entry)
	e.deleteMessage(ctx, chatID, entry.JoinMsgID)
	e.recorder.RecordVerification("timeout")
}

// removeChallengeMessage deletes an individual challenge, or releases the
// shared flood challenge once nobody is left on it.
func (e *Engine) removeChallengeMessage(ctx context.Context, state *ChatState, entry registry.Participant) {
	if !entry.Flooding {
		e.deleteMessage(ctx, state.ID, entry.ChallengeMsgID)
		return
	}

	coord := state.Flood()
	coord.Lock()
	defer coord.Unlock()
	if msgID, ok := coord.ReleaseIfIdle(); ok {
		e.deleteMessage(ctx, state.ID, msgID)
	}
}

func mentionOf(p Participant) string {
	if p.Username != "" {
		return "@" + p.Username
	}
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return strconv.FormatInt(p.ID, 10)
}
