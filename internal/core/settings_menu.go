package core

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"antispambot/internal/chat"
	"antispambot/internal/settings"
)

const (
	settingsPrefix   = "settings"
	maxMenuTextRunes = 4096
	deleteLabelRunes = 20
)

// OnSettingsCommand opens the settings menu for an administrator.
func (e *Engine) OnSettingsCommand(ctx context.Context, chatID, actorID int64, msgID int, private bool) {
	defer e.guard("settings", chatID, nil)

	if private {
		e.sendNotice(ctx, chatID, msgID, e.localizer.T("settings.groups_only"))
		return
	}
	if !e.isAdmin(ctx, chatID, actorID) {
		return
	}
	e.sendMenu(ctx, chatID, msgID, "")
}

// OnSettingsCancel aborts a pending settings edit.
func (e *Engine) OnSettingsCancel(ctx context.Context, chatID, actorID int64, msgID int) {
	defer e.guard("cancel", chatID, nil)

	if !e.isAdmin(ctx, chatID, actorID) {
		return
	}
	if e.chat(chatID).cancelSession() {
		e.sendNotice(ctx, chatID, msgID, e.localizer.T("settings.cancelled"))
	} else {
		e.sendNotice(ctx, chatID, msgID, e.localizer.T("settings.nothing_to_cancel"))
	}
}

// OnSettingsInput stores the value an administrator typed for a pending edit.
func (e *Engine) OnSettingsInput(ctx context.Context, in SettingsInput) (status SettingsStatus) {
	defer e.guard("settings_input", in.ChatID, func() { status = SettingsIgnored })

	state, ok := e.Chat(in.ChatID)
	if !ok || !state.hasSession(in.ActorID) {
		return SettingsIgnored
	}
	if !e.isAdmin(ctx, in.ChatID, in.ActorID) {
		return SettingsIgnored
	}

	var lines []string
	for _, line := range strings.Split(in.Text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return SettingsIgnored
	}

	session, status := state.takeSession(in.ActorID, e.now())
	if session == nil {
		if status == SettingsExpired {
			e.logger.Debug("Settings session expired",
				zap.Int64("chatID", in.ChatID),
				zap.Int64("actorID", in.ActorID))
		}
		return status
	}

	if _, ok := state.Settings().Put(session.item, strings.Join(lines, "\n")); !ok {
		e.sendMenu(ctx, in.ChatID, in.MsgID, e.localizer.T("settings.invalid"))
		return SettingsInvalid
	}

	e.logger.Info("Settings changed",
		zap.Int64("chatID", in.ChatID),
		zap.Int64("actorID", in.ActorID),
		zap.String("item", string(session.item)))
	e.sendMenu(ctx, in.ChatID, in.MsgID, e.localizer.T("settings.saved"))
	e.flushChat(ctx, state)
	return SettingsSaved
}

// OnSettingsCallback handles presses on the settings menu. Data has the form
// "settings [ITEM [default|set|INDEX]]".
func (e *Engine) OnSettingsCallback(ctx context.Context, cb SettingsCallback) {
	defer e.guard("settings_callback", cb.ChatID, nil)

	args := strings.Fields(cb.Data)
	if len(args) == 0 || args[0] != settingsPrefix {
		return
	}
	if !e.isAdmin(ctx, cb.ChatID, cb.ActorID) {
		e.answer(ctx, cb.CallbackID, "", false)
		return
	}

	if len(args) == 1 {
		e.answer(ctx, cb.CallbackID, "", false)
		e.edit(ctx, cb.ChatID, cb.MessageID, e.localizer.T("settings.choose"), e.menuKeyboard())
		return
	}
	if len(args) > 3 {
		e.logger.Error("Unexpected settings callback data", zap.String("data", cb.Data))
		e.answer(ctx, cb.CallbackID, "", false)
		return
	}

	item, ok := settings.ParseName(args[1])
	if !ok {
		e.answer(ctx, cb.CallbackID, e.localizer.T("settings.unexpected", args[1]), false)
		return
	}

	state := e.chat(cb.ChatID)
	cfg := state.Settings()
	kind, _ := settings.KindOf(item)
	editing := false
	answered := false

	if len(args) == 3 {
		action := args[2]
		switch {
		case action == "default":
			_, ok := cfg.Put(item, "")
			e.reportChange(ctx, state, cb.CallbackID, ok)
			answered = true
		case action == "set" && kind == settings.KindBool:
			_, ok := cfg.Put(item, "toggle")
			e.reportChange(ctx, state, cb.CallbackID, ok)
			answered = true
		case action == "set":
			state.beginSession(cb.ActorID, item, e.now())
			editing = true
		case kind == settings.KindQuestions:
			index, err := strconv.Atoi(action)
			if err != nil {
				e.logger.Error("Unexpected question index", zap.String("data", cb.Data))
				return
			}
			_, ok := cfg.DeleteQuestion(index)
			e.reportChange(ctx, state, cb.CallbackID, ok)
			answered = true
		}
	}

	body, kb := e.renderOption(cfg, item)
	if editing {
		body += "\n\n" + e.localizer.T("settings.editing")
		kb = nil
	}
	if !answered {
		e.answer(ctx, cb.CallbackID, "", false)
	}
	e.edit(ctx, cb.ChatID, cb.MessageID, truncateRunes(body, maxMenuTextRunes), kb)
}

func (e *Engine) reportChange(ctx context.Context, state *ChatState, callbackID string, ok bool) {
	if !ok {
		e.answer(ctx, callbackID, e.localizer.T("settings.error"), true)
		return
	}
	e.answer(ctx, callbackID, e.localizer.T("settings.success"), true)
	e.flushChat(ctx, state)
}

func (e *Engine) menuKeyboard() chat.Keyboard {
	kb := make(chat.Keyboard, 0, len(settings.Names))
	for _, name := range settings.Names {
		kb = append(kb, []chat.Button{{
			Text: settings.Help[name].Title,
			Data: settingsPrefix + " " + string(name),
		}})
	}
	return kb
}

func (e *Engine) sendMenu(ctx context.Context, chatID int64, replyTo int, prefix string) {
	if _, err := e.frontend.SendMessage(ctx, chatID, replyTo, prefix+e.localizer.T("settings.choose"), e.menuKeyboard()); err != nil {
		e.logger.Warn("Failed to send settings menu",
			zap.Int64("chatID", chatID),
			zap.Error(err))
	}
}

func (e *Engine) edit(ctx context.Context, chatID int64, msgID int, body string, kb chat.Keyboard) {
	if err := e.frontend.EditMessage(ctx, chatID, msgID, body, kb); err != nil {
		e.logger.Debug("Failed to edit settings message",
			zap.Int64("chatID", chatID),
			zap.Int("messageID", msgID),
			zap.Error(err))
	}
}

// renderOption describes the current value of item with its action buttons.
func (e *Engine) renderOption(cfg *settings.Store, item settings.Name) (string, chat.Keyboard) {
	base := settingsPrefix + " " + string(item)
	help := settings.Help[item]
	value, _ := cfg.Get(item)

	var b strings.Builder
	b.WriteString(e.localizer.T("settings.option", help.Title))
	b.WriteString(e.localizer.T("settings.current"))

	kb := chat.Keyboard{{{Text: e.localizer.T("settings.restore_default"), Data: base + " default"}}}

	switch value.Kind {
	case settings.KindQuestions:
		if len(value.Questions) < settings.MaxQuestionSets {
			kb = append(kb, []chat.Button{{Text: e.localizer.T("settings.add_new"), Data: base + " set"}})
		}
		for i, q := range value.Questions {
			if len(value.Questions) > 1 {
				kb = append(kb, []chat.Button{{
					Text: e.localizer.T("settings.delete_item", i+1, truncateRunes(q.Text, deleteLabelRunes)),
					Data: base + " " + strconv.Itoa(i),
				}})
			}
			b.WriteString("\n" + e.localizer.T("settings.question", i+1, q.Text))
			b.WriteString("\n" + e.localizer.T("settings.correct", q.Answer))
			for _, w := range q.Wrong {
				b.WriteString("\n" + e.localizer.T("settings.wrong", w))
			}
		}
	case settings.KindBool:
		kb = append(kb, []chat.Button{{Text: e.localizer.T("settings.toggle"), Data: base + " set"}})
		stateKey := "settings.state_off"
		if value.Bool {
			stateKey = "settings.state_on"
		}
		b.WriteString("\n" + e.localizer.T("settings.state", e.localizer.T(stateKey)))
	case settings.KindStringList:
		kb = append(kb, []chat.Button{{Text: e.localizer.T("settings.change"), Data: base + " set"}})
		for _, s := range value.Strings {
			b.WriteString("\n" + e.localizer.T("settings.variant", s))
		}
	case settings.KindInt:
		kb = append(kb, []chat.Button{{Text: e.localizer.T("settings.change"), Data: base + " set"}})
		b.WriteString(strconv.Itoa(value.Int))
	}

	kb = append(kb, []chat.Button{{Text: e.localizer.T("settings.back"), Data: settingsPrefix}})
	b.WriteString("\n\n" + e.localizer.T("settings.description", help.Description))
	return b.String(), kb
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
