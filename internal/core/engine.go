package core

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"antispambot/internal/chat"
	"antispambot/internal/flood"
	"antispambot/internal/i18n"
	"antispambot/internal/settings"
	"antispambot/internal/spam"
	"antispambot/internal/store"
	"antispambot/internal/token"
)

// Engine runs the challenge state machine for every chat the bot is in.
type Engine struct {
	config    *Config
	frontend  chat.Frontend
	scheduler Scheduler
	scorer    spam.Scorer
	states    StateStore
	recorder  Recorder
	logger    *zap.Logger
	localizer *i18n.Localizer
	codec     *token.Codec
	admins    *store.AdminCache
	adminGate *flood.Floodgate
	now       func() time.Time

	chats      map[int64]*ChatState
	chatsMutex sync.RWMutex

	cron *cronlib.Cron
}

// NewEngine creates an engine. states and recorder may be nil.
func NewEngine(
	config *Config,
	frontend chat.Frontend,
	sched Scheduler,
	scorer spam.Scorer,
	states StateStore,
	recorder Recorder,
	logger *zap.Logger,
) *Engine {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if scorer == nil {
		scorer = spam.NewHeuristicScorer()
	}
	rateLimit := time.Duration(config.App.AtAdminsRateLimitSecs) * time.Second
	if rateLimit <= 0 {
		rateLimit = time.Second
	}

	return &Engine{
		config:    config,
		frontend:  frontend,
		scheduler: sched,
		scorer:    scorer,
		states:    states,
		recorder:  recorder,
		logger:    logger,
		localizer: i18n.NewLocalizer(config.App.Language),
		codec:     token.NewCodec(config.App.Salt),
		admins:    store.NewAdminCache(store.DefaultAdminCacheSize, store.DefaultAdminTTL, frontend.GetAdminIDs),
		adminGate: flood.NewFloodgate(1, rateLimit),
		now:       time.Now,
		chats:     make(map[int64]*ChatState),
	}
}

// Start runs the garbage collector and the snapshot flush in the background
// and blocks until ctx is cancelled. Call Restore before delivering updates.
func (e *Engine) Start(ctx context.Context) error {
	e.logger.Info("Starting moderation engine",
		zap.String("language", e.localizer.Language()))

	e.cron = cronlib.New()
	if _, err := e.cron.AddFunc(everySpec(e.config.App.GCIntervalSecs), func() {
		e.RunGarbageCollection()
	}); err != nil {
		return fmt.Errorf("failed to schedule garbage collection: %w", err)
	}
	if e.states != nil {
		if _, err := e.cron.AddFunc(everySpec(e.config.App.FlushIntervalSecs), func() {
			e.Flush(context.Background())
		}); err != nil {
			return fmt.Errorf("failed to schedule state flush: %w", err)
		}
	}
	e.cron.Start()

	<-ctx.Done()
	e.Stop()
	return nil
}

// Stop halts background jobs and writes a final snapshot.
func (e *Engine) Stop() {
	if e.cron != nil {
		<-e.cron.Stop().Done()
	}
	e.adminGate.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	e.Flush(ctx)

	e.logger.Info("Moderation engine stopped")
}

func everySpec(secs int) string {
	if secs <= 0 {
		secs = 60
	}
	return "@every " + strconv.Itoa(secs) + "s"
}

// chat returns the state of chatID, creating it on first use.
func (e *Engine) chat(chatID int64) *ChatState {
	e.chatsMutex.RLock()
	state, ok := e.chats[chatID]
	e.chatsMutex.RUnlock()
	if ok {
		return state
	}

	e.chatsMutex.Lock()
	defer e.chatsMutex.Unlock()
	if state, ok = e.chats[chatID]; ok {
		return state
	}
	state = newChatState(chatID, e.config.App.StoreChatMessages, e.logger.Named("registry"))
	e.chats[chatID] = state
	return state
}

// Chat returns the state of chatID if the engine has seen it.
func (e *Engine) Chat(chatID int64) (*ChatState, bool) {
	e.chatsMutex.RLock()
	defer e.chatsMutex.RUnlock()
	state, ok := e.chats[chatID]
	return state, ok
}

func (e *Engine) snapshotChats() []*ChatState {
	e.chatsMutex.RLock()
	defer e.chatsMutex.RUnlock()
	out := make([]*ChatState, 0, len(e.chats))
	for _, state := range e.chats {
		out = append(out, state)
	}
	return out
}

// guard recovers a panicking handler so one chat cannot take down the others.
func (e *Engine) guard(handler string, chatID int64, onPanic func()) {
	if r := recover(); r != nil {
		e.logger.Error("Handler panicked",
			zap.String("handler", handler),
			zap.Int64("chatID", chatID),
			zap.Any("panic", r),
			zap.Stack("stack"))
		if onPanic != nil {
			onPanic()
		}
	}
}

// OnAdminsChanged drops the cached administrator list of a chat so the next
// permission check asks the platform again.
func (e *Engine) OnAdminsChanged(chatID int64) {
	e.admins.Invalidate(chatID)
	e.logger.Debug("Administrator cache invalidated", zap.Int64("chatID", chatID))
}

func (e *Engine) isAdmin(ctx context.Context, chatID, userID int64) bool {
	ok, err := e.admins.IsAdmin(ctx, chatID, userID)
	if err != nil {
		e.logger.Warn("Failed to load administrators",
			zap.Int64("chatID", chatID),
			zap.Error(err))
		return false
	}
	return ok
}

// deleteMessage is best effort; failures are logged and swallowed.
func (e *Engine) deleteMessage(ctx context.Context, chatID int64, msgID int) {
	if msgID == 0 {
		return
	}
	if err := e.frontend.DeleteMessage(ctx, chatID, msgID); err != nil {
		e.logger.Debug("Failed to delete message",
			zap.Int64("chatID", chatID),
			zap.Int("messageID", msgID),
			zap.Error(err))
	}
}

func (e *Engine) kick(ctx context.Context, chatID, userID int64, reason string) bool {
	err := e.frontend.Kick(ctx, chatID, userID)
	e.recorder.RecordModeration("kick", err == nil)
	if err != nil {
		e.logger.Warn("Failed to kick user",
			zap.Int64("chatID", chatID),
			zap.Int64("userID", userID),
			zap.String("reason", reason),
			zap.Error(err))
		return false
	}
	e.logger.Info("Kicked user",
		zap.Int64("chatID", chatID),
		zap.Int64("userID", userID),
		zap.String("reason", reason))
	return true
}

func (e *Engine) unban(ctx context.Context, chatID, userID int64, reason string) bool {
	err := e.frontend.Unban(ctx, chatID, userID)
	e.recorder.RecordModeration("unban", err == nil)
	if err != nil {
		e.logger.Warn("Failed to unban user",
			zap.Int64("chatID", chatID),
			zap.Int64("userID", userID),
			zap.String("reason", reason),
			zap.Error(err))
		return false
	}
	e.logger.Info("Unbanned user",
		zap.Int64("chatID", chatID),
		zap.Int64("userID", userID),
		zap.String("reason", reason))
	return true
}

// scheduleUnban lifts a kick after the chat's unban timeout. A timeout of 0
// keeps the ban permanent.
func (e *Engine) scheduleUnban(state *ChatState, userID int64) {
	secs := state.Settings().Int(settings.UnbanTimeout)
	if secs <= 0 {
		return
	}
	chatID := state.ID
	key := "unban:" + strconv.FormatInt(chatID, 10) + ":" + strconv.FormatInt(userID, 10)
	e.scheduler.ScheduleOnce(time.Duration(secs)*time.Second, key, func() {
		e.unban(context.Background(), chatID, userID, "unban timeout reached")
	})
}

// scheduleDelete removes messages after delay.
func (e *Engine) scheduleDelete(chatID int64, delay time.Duration, msgIDs ...int) {
	e.scheduler.ScheduleOnce(delay, "", func() {
		for _, id := range msgIDs {
			e.deleteMessage(context.Background(), chatID, id)
		}
	})
}

// cancelTimeout cancels the pending timeout of a challenge. Exactly one job
// is expected; anything else points at a key collision or a leaked job.
func (e *Engine) cancelTimeout(chatID, userID int64, joinMsgID int) {
	n := e.scheduler.CancelByKey(ChallengeKey(userID, chatID, joinMsgID))
	if n != 1 {
		e.recorder.RecordSchedulingAnomaly()
		e.logger.Error("Unexpected number of pending challenge jobs",
			zap.Int64("chatID", chatID),
			zap.Int64("userID", userID),
			zap.Int("joinMsgID", joinMsgID),
			zap.Int("jobs", n))
	}
}

// ChallengeKey derives the scheduler key of a challenge timeout.
func ChallengeKey(userID, chatID int64, joinMsgID int) string {
	h := fnv.New64a()
	for _, part := range []string{
		strconv.FormatInt(userID, 10),
		strconv.FormatInt(chatID, 10),
		strconv.Itoa(joinMsgID),
	} {
		_, _ = h.Write([]byte(part))
		_, _ = h.Write([]byte{0})
	}
	return "clg:" + strconv.FormatUint(h.Sum64(), 16)
}
