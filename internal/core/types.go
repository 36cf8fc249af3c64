package core

import (
	"context"
	"time"

	"antispambot/internal/scheduler"
)

// Participant is a chat member as seen by the transport.
type Participant struct {
	ID          int64
	DisplayName string
	Username    string
	IsBot       bool
}

// JoinEvent reports one participant joining a group.
type JoinEvent struct {
	ChatID      int64
	Participant Participant
	InviterID   int64 // 0 when the participant joined by themselves
	JoinMsgID   int
}

// ClickEvent reports a challenge button press.
type ClickEvent struct {
	ChatID     int64
	ClickerID  int64
	CallbackID string
	MessageID  int
	Data       string
}

// BanCommand is an administrator's /ban issued as a reply.
type BanCommand struct {
	ChatID        int64
	ActorID       int64
	CommandMsgID  int
	ReplyMsgID    int // 0 when the command was not a reply
	ReplyAuthorID int64
	ReplyFromBot  bool
	NewMemberIDs  []int64 // set when the replied message announced joins
}

// SettingsCallback is a press on a settings menu button.
type SettingsCallback struct {
	ChatID     int64
	ActorID    int64
	CallbackID string
	MessageID  int
	Data       string
}

// SettingsInput is a plain group message that may answer a pending settings edit.
type SettingsInput struct {
	ChatID  int64
	ActorID int64
	MsgID   int
	Text    string
}

// ChatMessage is any message seen in a group.
type ChatMessage struct {
	ChatID    int64
	AuthorID  int64
	MessageID int
	At        time.Time
}

// JoinOutcome is the result of handling a join event.
type JoinOutcome int

const (
	// JoinSkipped means no challenge was needed
	JoinSkipped JoinOutcome = iota
	// JoinChallenged means an individual challenge was issued
	JoinChallenged
	// JoinFlooded means the participant was bundled into the shared challenge
	JoinFlooded
	// JoinNoRights means the restriction was refused and a notice was sent instead
	JoinNoRights
	// JoinFailed means the challenge could not be delivered
	JoinFailed
)

// String returns the metric label of the outcome.
func (o JoinOutcome) String() string {
	switch o {
	case JoinSkipped:
		return "skipped"
	case JoinChallenged:
		return "individual"
	case JoinFlooded:
		return "flooding"
	case JoinNoRights:
		return "no_rights"
	case JoinFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ClickOutcome classifies a challenge button press.
type ClickOutcome int

const (
	// ClickPassed means the correct answer was chosen
	ClickPassed ClickOutcome = iota
	// ClickFailed means a wrong answer was chosen
	ClickFailed
	// ClickKickedByAdmin means an administrator chose a wrong answer on someone's behalf
	ClickKickedByAdmin
	// ClickNaughty means the clicker has no business with this challenge
	ClickNaughty
	// ClickMismatch means the button does not belong to the clicker's kind of challenge
	ClickMismatch
	// ClickMalformed means the callback data could not be parsed
	ClickMalformed
	// ClickAlreadyResolved means the challenge was resolved concurrently
	ClickAlreadyResolved
)

func (o ClickOutcome) String() string {
	switch o {
	case ClickPassed:
		return "passed"
	case ClickFailed:
		return "failed"
	case ClickKickedByAdmin:
		return "kicked_by_admin"
	case ClickNaughty:
		return "naughty"
	case ClickMismatch:
		return "mismatch"
	case ClickMalformed:
		return "malformed"
	case ClickAlreadyResolved:
		return "already_resolved"
	default:
		return "unknown"
	}
}

// BanResult summarizes an explicit ban.
type BanResult struct {
	Denied   bool    // actor is not an administrator
	Kicked   []int64 // targets removed from the chat
	Resolved []int64 // kicked targets that had a pending challenge
	Skipped  []int64 // administrators filtered from the targets
}

// SettingsStatus is the result of a free-text settings answer.
type SettingsStatus int

const (
	// SettingsIgnored means the message was not a settings answer
	SettingsIgnored SettingsStatus = iota
	// SettingsSaved means the value was accepted
	SettingsSaved
	// SettingsInvalid means the value was rejected and the prior value kept
	SettingsInvalid
	// SettingsExpired means the edit session timed out
	SettingsExpired
)

// GCStats reports one garbage collection sweep.
type GCStats struct {
	Chats             int
	LegacyKeysDropped int
	RegistriesReset   int
	UsersChecked      int
	UsersFreed        int
	MessagesChecked   int
	MessagesFreed     int
}

// Scheduler runs keyed one-shot actions.
type Scheduler interface {
	ScheduleOnce(delay time.Duration, key string, action func()) *scheduler.Job
	CancelByKey(key string) int
}

// StateStore persists serialized chat state.
type StateStore interface {
	Save(ctx context.Context, chatID int64, data []byte) error
	LoadAll(ctx context.Context) (map[int64][]byte, error)
}

// Recorder receives engine events for metrics.
type Recorder interface {
	RecordChallenge(mode string)
	RecordVerification(outcome string)
	RecordModeration(action string, ok bool)
	RecordGC(kind string, freed int)
	RecordSchedulingAnomaly()
}

type nopRecorder struct{}

func (nopRecorder) RecordChallenge(string) {}
func (nopRecorder) RecordVerification(string) {}
func (nopRecorder) RecordModeration(string, bool) {}
func (nopRecorder) RecordGC(string, int) {}
func (nopRecorder) RecordSchedulingAnomaly() {}
