// Package telegram provides Telegram Bot API integration using go-telegram/bot library.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"antispambot/internal/chat"
	"antispambot/internal/core"
	"antispambot/internal/i18n"
)

const (
	chatTypePrivate    = "private"
	chatTypeGroup      = "group"
	chatTypeSuperGroup = "supergroup"

	challengePrefix = "clg"
	settingsPrefix  = "settings"
)

var (
	errDisabled   = errors.New("telegram frontend is disabled")
	errNotStarted = errors.New("telegram bot is not started")
)

// Config holds Telegram-specific configuration
type Config struct {
	BotToken     string
	Enabled      bool
	MaxUpdateAge time.Duration // Older messages are dropped, zero disables the check
	SourceURL    string        // Shown by /source
	Language     string        // Bot language for user-facing messages
}

// EventHandler receives the moderation events decoded from updates.
// *core.Engine implements it.
type EventHandler interface {
	OnParticipantJoined(ctx context.Context, ev core.JoinEvent) core.JoinOutcome
	OnChallengeClick(ctx context.Context, ev core.ClickEvent) core.ClickOutcome
	OnExplicitBanCommand(ctx context.Context, cmd core.BanCommand) core.BanResult
	OnSettingsCommand(ctx context.Context, chatID, actorID int64, msgID int, private bool)
	OnSettingsCancel(ctx context.Context, chatID, actorID int64, msgID int)
	OnSettingsInput(ctx context.Context, in core.SettingsInput) core.SettingsStatus
	OnSettingsCallback(ctx context.Context, cb core.SettingsCallback)
	OnAtAdmins(ctx context.Context, chatID int64, msgID int)
	OnMemberLeft(ctx context.Context, chatID int64, msgID int)
	OnServiceMessage(ctx context.Context, chatID int64, msgID int)
	RecordMessage(msg core.ChatMessage)
	OnAdminsChanged(chatID int64)
}

// Frontend implements the chat.Frontend interface for Telegram
type Frontend struct {
	config    *Config
	logger    *zap.Logger
	bot       *bot.Bot
	localizer *i18n.Localizer
	now       func() time.Time

	botID       int64
	botUsername string

	handler EventHandler
}

var _ chat.Frontend = (*Frontend)(nil)

// NewFrontend creates a new Telegram frontend
func NewFrontend(config *Config, logger *zap.Logger) *Frontend {
	language := config.Language
	if language == "" {
		language = i18n.DefaultLanguage
	}

	return &Frontend{
		config:    config,
		logger:    logger,
		localizer: i18n.NewLocalizer(language),
		now:       time.Now,
	}
}

// Start creates the bot client and resolves the bot's own identity.
// Updates are only delivered once Listen runs.
func (f *Frontend) Start(ctx context.Context) error {
	if !f.config.Enabled {
		f.logger.Info("Telegram frontend is disabled, skipping initialization")
		return nil
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(f.handleUpdate),
		bot.WithCallbackQueryDataHandler(challengePrefix, bot.MatchTypePrefix, f.handleChallengeCallback),
		bot.WithCallbackQueryDataHandler(settingsPrefix, bot.MatchTypePrefix, f.handleSettingsCallback),
	}

	b, err := bot.New(f.config.BotToken, opts...)
	if err != nil {
		return fmt.Errorf("failed to create telegram bot: %w", err)
	}
	f.bot = b

	me, err := b.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bot identity: %w", err)
	}
	f.botID = me.ID
	f.botUsername = me.Username

	f.logger.Info("Telegram frontend started successfully",
		zap.Int64("botID", f.botID),
		zap.String("username", f.botUsername))
	return nil
}

// Listen delivers updates to handler until ctx is cancelled
func (f *Frontend) Listen(ctx context.Context, handler EventHandler) error {
	if !f.config.Enabled {
		return nil
	}
	if f.bot == nil {
		return errNotStarted
	}

	f.handler = handler
	f.bot.Start(ctx)
	return nil
}

func (f *Frontend) client() (*bot.Bot, error) {
	if !f.config.Enabled {
		return nil, errDisabled
	}
	if f.bot == nil {
		return nil, errNotStarted
	}
	return f.bot, nil
}

// Restrict revokes every send permission of a participant
func (f *Frontend) Restrict(ctx context.Context, chatID, userID int64) error {
	b, err := f.client()
	if err != nil {
		return err
	}

	_, err = b.RestrictChatMember(ctx, &bot.RestrictChatMemberParams{
		ChatID:      chatID,
		UserID:      userID,
		Permissions: &models.ChatPermissions{},
	})
	if err != nil {
		return fmt.Errorf("failed to restrict user: %w", err)
	}
	return nil
}

// Kick bans a participant until Unban is called
func (f *Frontend) Kick(ctx context.Context, chatID, userID int64) error {
	b, err := f.client()
	if err != nil {
		return err
	}

	if _, err := b.BanChatMember(ctx, &bot.BanChatMemberParams{
		ChatID: chatID,
		UserID: userID,
	}); err != nil {
		return fmt.Errorf("failed to ban user: %w", err)
	}
	return nil
}

// Unban restores the send permissions of a participant and lifts a ban if there is one
func (f *Frontend) Unban(ctx context.Context, chatID, userID int64) error {
	b, err := f.client()
	if err != nil {
		return err
	}

	// Kicked users are no longer members, so restoring permissions may fail for them.
	if _, err := b.RestrictChatMember(ctx, &bot.RestrictChatMemberParams{
		ChatID:      chatID,
		UserID:      userID,
		Permissions: fullPermissions(),
	}); err != nil {
		f.logger.Debug("Failed to restore permissions",
			zap.Int64("chatID", chatID),
			zap.Int64("userID", userID),
			zap.Error(err))
	}

	if _, err := b.UnbanChatMember(ctx, &bot.UnbanChatMemberParams{
		ChatID:       chatID,
		UserID:       userID,
		OnlyIfBanned: true,
	}); err != nil {
		return fmt.Errorf("failed to unban user: %w", err)
	}
	return nil
}

func fullPermissions() *models.ChatPermissions {
	return &models.ChatPermissions{
		CanSendMessages:       true,
		CanSendAudios:         true,
		CanSendDocuments:      true,
		CanSendPhotos:         true,
		CanSendVideos:         true,
		CanSendVideoNotes:     true,
		CanSendVoiceNotes:     true,
		CanSendPolls:          true,
		CanSendOtherMessages:  true,
		CanAddWebPagePreviews: true,
		CanChangeInfo:         true,
		CanInviteUsers:        true,
		CanPinMessages:        true,
	}
}

// DeleteMessage deletes a message by its ID
func (f *Frontend) DeleteMessage(ctx context.Context, chatID int64, msgID int) error {
	b, err := f.client()
	if err != nil {
		return err
	}

	if _, err := b.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: msgID,
	}); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// SendMessage sends a text message, optionally as a reply and with an inline keyboard
func (f *Frontend) SendMessage(ctx context.Context, chatID int64, replyTo int, text string,
	keyboard chat.Keyboard) (int, error) {
	b, err := f.client()
	if err != nil {
		return 0, err
	}

	disabled := true
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disabled,
		},
	}
	if replyTo != 0 {
		params.ReplyParameters = &models.ReplyParameters{
			MessageID:                replyTo,
			AllowSendingWithoutReply: true,
		}
	}
	if markup := inlineKeyboard(keyboard); markup != nil {
		params.ReplyMarkup = markup
	}

	msg, err := b.SendMessage(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("failed to send message: %w", err)
	}
	return msg.ID, nil
}

// EditMessage replaces the text and inline keyboard of a bot message
func (f *Frontend) EditMessage(ctx context.Context, chatID int64, msgID int, text string, keyboard chat.Keyboard) error {
	b, err := f.client()
	if err != nil {
		return err
	}

	params := &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: msgID,
		Text:      text,
	}
	if markup := inlineKeyboard(keyboard); markup != nil {
		params.ReplyMarkup = markup
	}

	if _, err := b.EditMessageText(ctx, params); err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	return nil
}

// AnswerCallback answers a callback query, as a popup when alert is set
func (f *Frontend) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	b, err := f.client()
	if err != nil {
		return err
	}

	if _, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       alert,
	}); err != nil {
		return fmt.Errorf("failed to answer callback query: %w", err)
	}
	return nil
}

// GetAdminIDs returns the ids of the chat owner and every administrator, bots included
func (f *Frontend) GetAdminIDs(ctx context.Context, chatID int64) ([]int64, error) {
	admins, err := f.chatAdministrators(ctx, chatID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(admins))
	for _, admin := range admins {
		ids = append(ids, admin.ID)
	}
	return ids, nil
}

// AdminMentions returns a mention for every human administrator of a chat
func (f *Frontend) AdminMentions(ctx context.Context, chatID int64) ([]string, error) {
	admins, err := f.chatAdministrators(ctx, chatID)
	if err != nil {
		return nil, err
	}

	var mentions []string
	for i := range admins {
		if admins[i].IsBot {
			continue
		}
		mentions = append(mentions, getUserDisplayName(&admins[i]))
	}
	return mentions, nil
}

func (f *Frontend) chatAdministrators(ctx context.Context, chatID int64) ([]models.User, error) {
	b, err := f.client()
	if err != nil {
		return nil, err
	}

	members, err := b.GetChatAdministrators(ctx, &bot.GetChatAdministratorsParams{
		ChatID: chatID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get chat administrators: %w", err)
	}

	var users []models.User
	for i := range members {
		admin := &members[i]
		switch admin.Type {
		case models.ChatMemberTypeOwner:
			if admin.Owner != nil && admin.Owner.User != nil {
				users = append(users, *admin.Owner.User)
			}
		case models.ChatMemberTypeAdministrator:
			if admin.Administrator != nil {
				users = append(users, admin.Administrator.User)
			}
		case models.ChatMemberTypeMember, models.ChatMemberTypeRestricted,
			models.ChatMemberTypeLeft, models.ChatMemberTypeBanned:
			// Not administrators
		}
	}
	return users, nil
}

func (f *Frontend) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update.Message != nil {
		f.handleMessage(ctx, update.Message)
	}
	if update.MyChatMember != nil {
		f.handleMyChatMember(update.MyChatMember)
	}
}

// handleMyChatMember reacts to the bot being promoted, demoted or removed.
func (f *Frontend) handleMyChatMember(member *models.ChatMemberUpdated) {
	if f.handler == nil {
		return
	}
	f.logger.Info("Bot membership changed", zap.Int64("chatID", member.Chat.ID))
	f.handler.OnAdminsChanged(member.Chat.ID)
}

func (f *Frontend) handleMessage(ctx context.Context, msg *models.Message) {
	if f.handler == nil {
		return
	}
	if f.isStale(msg) {
		f.logger.Warn("Not processing old update",
			zap.Int64("chatID", msg.Chat.ID),
			zap.Int("msgID", msg.ID))
		return
	}

	switch msg.Chat.Type {
	case chatTypePrivate:
		f.handlePrivateMessage(ctx, msg)
	case chatTypeGroup, chatTypeSuperGroup:
		f.handleGroupMessage(ctx, msg)
	}
}

func (f *Frontend) handlePrivateMessage(ctx context.Context, msg *models.Message) {
	if msg.From == nil {
		return
	}

	switch f.parseCommand(msg.Text) {
	case "/start":
		f.reply(ctx, msg, f.localizer.T("start.private"))
	case "/source":
		f.replySource(ctx, msg)
	case "/settings":
		f.handler.OnSettingsCommand(ctx, msg.Chat.ID, msg.From.ID, msg.ID, true)
	}
}

func (f *Frontend) handleGroupMessage(ctx context.Context, msg *models.Message) {
	chatID := msg.Chat.ID

	switch {
	case len(msg.NewChatMembers) > 0:
		for _, ev := range f.joinEvents(msg) {
			f.handler.OnParticipantJoined(ctx, ev)
		}
		return
	case msg.LeftChatMember != nil:
		f.handler.OnMemberLeft(ctx, chatID, msg.ID)
		return
	case isServiceMessage(msg):
		f.handler.OnServiceMessage(ctx, chatID, msg.ID)
		return
	}

	if msg.From == nil {
		return
	}

	f.handler.RecordMessage(core.ChatMessage{
		ChatID:    chatID,
		AuthorID:  msg.From.ID,
		MessageID: msg.ID,
		At:        time.Unix(int64(msg.Date), 0),
	})

	switch f.parseCommand(msg.Text) {
	case "/start":
		f.reply(ctx, msg, f.localizer.T("start.group"))
	case "/source":
		f.replySource(ctx, msg)
	case "/admins", "/admin":
		f.handler.OnAtAdmins(ctx, chatID, msg.ID)
	case "/settings":
		f.handler.OnSettingsCommand(ctx, chatID, msg.From.ID, msg.ID, false)
	case "/cancel":
		f.handler.OnSettingsCancel(ctx, chatID, msg.From.ID, msg.ID)
	case "/ban":
		f.handler.OnExplicitBanCommand(ctx, f.banCommand(msg))
	case "":
		if msg.Text != "" {
			f.handler.OnSettingsInput(ctx, core.SettingsInput{
				ChatID:  chatID,
				ActorID: msg.From.ID,
				MsgID:   msg.ID,
				Text:    msg.Text,
			})
		}
	}
}

// joinEvents turns a new members message into one event per joined user.
// The bot's own join is skipped.
func (f *Frontend) joinEvents(msg *models.Message) []core.JoinEvent {
	events := make([]core.JoinEvent, 0, len(msg.NewChatMembers))
	for i := range msg.NewChatMembers {
		member := &msg.NewChatMembers[i]
		if f.botID != 0 && member.ID == f.botID {
			continue
		}

		var inviterID int64
		if msg.From != nil && msg.From.ID != member.ID {
			inviterID = msg.From.ID
		}

		events = append(events, core.JoinEvent{
			ChatID: msg.Chat.ID,
			Participant: core.Participant{
				ID:          member.ID,
				DisplayName: displayName(member),
				Username:    member.Username,
				IsBot:       member.IsBot,
			},
			InviterID: inviterID,
			JoinMsgID: msg.ID,
		})
	}
	return events
}

func (f *Frontend) banCommand(msg *models.Message) core.BanCommand {
	cmd := core.BanCommand{
		ChatID:       msg.Chat.ID,
		ActorID:      msg.From.ID,
		CommandMsgID: msg.ID,
	}

	reply := msg.ReplyToMessage
	if reply == nil {
		return cmd
	}

	cmd.ReplyMsgID = reply.ID
	if reply.From != nil {
		cmd.ReplyAuthorID = reply.From.ID
		cmd.ReplyFromBot = f.botID != 0 && reply.From.ID == f.botID
	}
	for _, member := range reply.NewChatMembers {
		cmd.NewMemberIDs = append(cmd.NewMemberIDs, member.ID)
	}
	return cmd
}

func (f *Frontend) handleChallengeCallback(ctx context.Context, _ *bot.Bot, update *models.Update) {
	query := update.CallbackQuery
	msg := query.Message.Message
	if msg == nil || f.handler == nil {
		f.answerEmpty(ctx, query.ID)
		return
	}

	f.handler.OnChallengeClick(ctx, core.ClickEvent{
		ChatID:     msg.Chat.ID,
		ClickerID:  query.From.ID,
		CallbackID: query.ID,
		MessageID:  msg.ID,
		Data:       query.Data,
	})
}

func (f *Frontend) handleSettingsCallback(ctx context.Context, _ *bot.Bot, update *models.Update) {
	query := update.CallbackQuery
	msg := query.Message.Message
	if msg == nil || f.handler == nil {
		f.answerEmpty(ctx, query.ID)
		return
	}

	f.handler.OnSettingsCallback(ctx, core.SettingsCallback{
		ChatID:     msg.Chat.ID,
		ActorID:    query.From.ID,
		CallbackID: query.ID,
		MessageID:  msg.ID,
		Data:       query.Data,
	})
}

func (f *Frontend) answerEmpty(ctx context.Context, callbackID string) {
	if err := f.AnswerCallback(ctx, callbackID, "", false); err != nil {
		f.logger.Debug("Failed to answer callback query", zap.Error(err))
	}
}

func (f *Frontend) reply(ctx context.Context, msg *models.Message, text string) {
	if _, err := f.SendMessage(ctx, msg.Chat.ID, msg.ID, text, nil); err != nil {
		f.logger.Warn("Failed to reply", zap.Int64("chatID", msg.Chat.ID), zap.Error(err))
	}
}

func (f *Frontend) replySource(ctx context.Context, msg *models.Message) {
	if f.config.SourceURL == "" {
		return
	}
	f.reply(ctx, msg, f.localizer.T("source.text", f.config.SourceURL))
}

// isStale reports whether a message, or its latest edit, is older than MaxUpdateAge
func (f *Frontend) isStale(msg *models.Message) bool {
	if f.config.MaxUpdateAge <= 0 {
		return false
	}
	sent := msg.Date
	if msg.EditDate != 0 {
		sent = msg.EditDate
	}
	return f.now().Sub(time.Unix(int64(sent), 0)) > f.config.MaxUpdateAge
}

// parseCommand returns the lower-cased command of text, or "" when text is no
// command or addresses another bot.
func (f *Frontend) parseCommand(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}

	cmd := strings.Fields(text)[0]
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		target := cmd[at+1:]
		cmd = cmd[:at]
		if f.botUsername != "" && !strings.EqualFold(target, f.botUsername) {
			return ""
		}
	}
	if cmd == "/" {
		return ""
	}
	return strings.ToLower(cmd)
}

func isServiceMessage(msg *models.Message) bool {
	return msg.NewChatTitle != "" ||
		len(msg.NewChatPhoto) > 0 ||
		msg.DeleteChatPhoto ||
		msg.PinnedMessage != nil ||
		msg.GroupChatCreated ||
		msg.SupergroupChatCreated
}

func inlineKeyboard(keyboard chat.Keyboard) *models.InlineKeyboardMarkup {
	if len(keyboard) == 0 {
		return nil
	}

	rows := make([][]models.InlineKeyboardButton, 0, len(keyboard))
	for _, row := range keyboard {
		buttons := make([]models.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, models.InlineKeyboardButton{Text: b.Text, CallbackData: b.Data})
		}
		rows = append(rows, buttons)
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// getUserDisplayName returns @username when set, otherwise the full name
func getUserDisplayName(user *models.User) string {
	if user.Username != "" {
		return "@" + user.Username
	}
	return displayName(user)
}

func displayName(user *models.User) string {
	name := user.FirstName
	if user.LastName != "" {
		name += " " + user.LastName
	}
	return name
}
