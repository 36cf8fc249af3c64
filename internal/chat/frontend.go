// Package chat defines the moderation surface the engine needs from a chat platform.
package chat

import (
	"context"
)

// Button is one inline keyboard button.
type Button struct {
	Text string
	Data string
}

// Keyboard is a grid of buttons, one slice per row.
type Keyboard [][]Button

// Frontend is implemented by chat platform adapters.
type Frontend interface {
	// Restrict mutes a participant until Unban is called
	Restrict(ctx context.Context, chatID, userID int64) error

	// Kick removes a participant and keeps them banned until Unban is called
	Kick(ctx context.Context, chatID, userID int64) error

	// Unban lifts both a restriction and a ban
	Unban(ctx context.Context, chatID, userID int64) error

	// DeleteMessage deletes a message by its ID
	DeleteMessage(ctx context.Context, chatID int64, msgID int) error

	// GetAdminIDs lists the administrator ids of a chat, bots included
	GetAdminIDs(ctx context.Context, chatID int64) ([]int64, error)

	// AdminMentions returns mention strings for the human administrators of a chat
	AdminMentions(ctx context.Context, chatID int64) ([]string, error)

	// SendMessage sends text, optionally as a reply and with an inline keyboard
	SendMessage(ctx context.Context, chatID int64, replyTo int, text string, keyboard Keyboard) (int, error)

	// EditMessage replaces the text and keyboard of a message sent by the bot
	EditMessage(ctx context.Context, chatID int64, msgID int, text string, keyboard Keyboard) error

	// AnswerCallback answers a button press, as a popup when alert is set
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
}
