package core

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"antispambot/internal/chat"
	"antispambot/internal/settings"
	"antispambot/internal/token"
)

func TestEngine_IndividualChallengePassed(t *testing.T) {
	rig := newTestRig(t)

	if got := rig.join(42, 100); got != JoinChallenged {
		t.Fatalf("join outcome = %v, want %v", got, JoinChallenged)
	}
	challenge := rig.frontend.lastSent()
	if challenge.replyTo != 100 {
		t.Errorf("challenge should reply to the join message, got %d", challenge.replyTo)
	}
	if !strings.Contains(challenge.text, "300") {
		t.Errorf("challenge text should carry the timeout, got %q", challenge.text)
	}

	key := ChallengeKey(42, testChatID, 100)
	jobs := rig.sched.pending(key)
	if len(jobs) != 1 || jobs[0].delay != 300*time.Second {
		t.Fatalf("expected one 300s timeout job, got %+v", jobs)
	}

	accept := "clg 42 " + rig.engine.codec.Accept(42, 100) + " 42"
	found := false
	for _, b := range allButtons(challenge.keyboard) {
		if b.Data == accept {
			found = true
		}
	}
	if !found {
		t.Fatalf("accept button %q not rendered", accept)
	}

	if got := rig.click(42, challenge.msgID, accept); got != ClickPassed {
		t.Fatalf("click outcome = %v, want %v", got, ClickPassed)
	}

	state, _ := rig.engine.Chat(testChatID)
	if state.Registry().Len() != 0 {
		t.Error("participant should be removed after passing")
	}
	if n := len(rig.sched.pending(key)); n != 0 {
		t.Errorf("timeout should be cancelled, %d still pending", n)
	}
	if rig.recorder.anomalies != 0 {
		t.Errorf("expected the timeout to be cancelled exactly once, got %d anomalies", rig.recorder.anomalies)
	}
	if !slices.Equal(rig.frontend.unbanned, []int64{42}) {
		t.Errorf("unbanned = %v, want [42]", rig.frontend.unbanned)
	}
	if len(rig.frontend.kicked) != 0 {
		t.Errorf("no kick expected, got %v", rig.frontend.kicked)
	}
	if !rig.frontend.wasDeleted(challenge.msgID) {
		t.Error("challenge message should be deleted")
	}
	if rig.frontend.wasDeleted(100) {
		t.Error("join message should survive a passed challenge")
	}
	if ans := rig.frontend.lastAnswer(); !ans.alert || !slices.Contains(settings.Defaults[settings.ChallengeSuccess].Strings, ans.text) {
		t.Errorf("expected a success alert, got %+v", ans)
	}
}

func TestEngine_ChallengeTimeout(t *testing.T) {
	rig := newTestRig(t)
	rig.join(42, 100)
	challenge := rig.frontend.lastSent()

	rig.sched.fire(t, ChallengeKey(42, testChatID, 100))

	if !slices.Equal(rig.frontend.kicked, []int64{42}) {
		t.Errorf("kicked = %v, want [42]", rig.frontend.kicked)
	}
	unban := rig.sched.pending("unban:-100123:42")
	if len(unban) != 1 || unban[0].delay != 300*time.Second {
		t.Fatalf("expected an unban job after 300s, got %+v", unban)
	}
	state, _ := rig.engine.Chat(testChatID)
	if state.Registry().Len() != 0 {
		t.Error("participant should be removed after the timeout")
	}
	if !rig.frontend.wasDeleted(challenge.msgID) || !rig.frontend.wasDeleted(100) {
		t.Errorf("challenge and join messages should be deleted, deleted = %v", rig.frontend.deleted)
	}

	unban[0].action()
	if !slices.Equal(rig.frontend.unbanned, []int64{42}) {
		t.Errorf("unbanned = %v, want [42]", rig.frontend.unbanned)
	}
}

func TestEngine_TimeoutWithPermanentBan(t *testing.T) {
	rig := newTestRig(t)
	state := rig.engine.chat(testChatID)
	if _, ok := state.Settings().Put(settings.UnbanTimeout, "0"); !ok {
		t.Fatal("failed to set unban timeout")
	}

	rig.join(42, 100)
	rig.sched.fire(t, ChallengeKey(42, testChatID, 100))

	if n := len(rig.sched.pending("unban:-100123:42")); n != 0 {
		t.Errorf("permanent bans schedule no unban, got %d jobs", n)
	}
}

func TestEngine_ExplicitBanOfPendingParticipant(t *testing.T) {
	rig := newTestRig(t)
	rig.join(42, 100)
	challenge := rig.frontend.lastSent()

	result := rig.engine.OnExplicitBanCommand(context.Background(), BanCommand{
		ChatID:       testChatID,
		ActorID:      testAdminID,
		CommandMsgID: 200,
		ReplyMsgID:   100,
		NewMemberIDs: []int64{42},
	})

	if !slices.Equal(result.Kicked, []int64{42}) || !slices.Equal(result.Resolved, []int64{42}) {
		t.Fatalf("unexpected result %+v", result)
	}
	if n := len(rig.sched.pending(ChallengeKey(42, testChatID, 100))); n != 0 {
		t.Errorf("timeout should be cancelled, %d pending", n)
	}
	if rig.recorder.anomalies != 0 {
		t.Errorf("expected exactly one cancelled job, got %d anomalies", rig.recorder.anomalies)
	}
	if n := len(rig.sched.pending("unban:-100123:42")); n != 0 {
		t.Errorf("explicit bans schedule no unban by default, got %d", n)
	}
	state, _ := rig.engine.Chat(testChatID)
	if state.Registry().Len() != 0 {
		t.Error("participant should be removed")
	}
	if !rig.frontend.wasDeleted(challenge.msgID) || !rig.frontend.wasDeleted(100) {
		t.Errorf("challenge and join messages should be deleted, deleted = %v", rig.frontend.deleted)
	}

	var cleanup *fakeJob
	for _, j := range rig.sched.jobs {
		if j.key == "" && j.delay == BanNoticeDelay {
			cleanup = j
		}
	}
	if cleanup == nil {
		t.Fatal("command message cleanup not scheduled")
	}
	cleanup.action()
	if !rig.frontend.wasDeleted(200) {
		t.Error("command message should be deleted")
	}
}

func TestEngine_ExplicitBanRespectsUnbanTimeoutWhenConfigured(t *testing.T) {
	rig := newTestRig(t)
	rig.engine.config.App.BanRespectsUnbanTimeout = true
	rig.join(42, 100)

	rig.engine.OnExplicitBanCommand(context.Background(), BanCommand{
		ChatID: testChatID, ActorID: testAdminID, CommandMsgID: 200, ReplyMsgID: 100, NewMemberIDs: []int64{42},
	})

	if n := len(rig.sched.pending("unban:-100123:42")); n != 1 {
		t.Errorf("expected an unban job, got %d", n)
	}
}

func TestEngine_ExplicitBanWithoutPendingChallenge(t *testing.T) {
	rig := newTestRig(t)
	for i, msgID := range []int{10, 11, 12} {
		rig.engine.RecordMessage(ChatMessage{ChatID: testChatID, AuthorID: 7, MessageID: msgID, At: rig.clock.Add(time.Duration(i) * time.Second)})
	}
	rig.engine.RecordMessage(ChatMessage{ChatID: testChatID, AuthorID: 8, MessageID: 13})

	result := rig.engine.OnExplicitBanCommand(context.Background(), BanCommand{
		ChatID: testChatID, ActorID: testAdminID, CommandMsgID: 200, ReplyMsgID: 12, ReplyAuthorID: 7,
	})

	if !slices.Equal(result.Kicked, []int64{7}) || len(result.Resolved) != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	for _, id := range []int{10, 11, 12} {
		if !rig.frontend.wasDeleted(id) {
			t.Errorf("message %d of the banned author should be deleted", id)
		}
	}
	if rig.frontend.wasDeleted(13) {
		t.Error("messages of other authors must survive")
	}
}

func TestEngine_ExplicitBanGuards(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	if res := rig.engine.OnExplicitBanCommand(ctx, BanCommand{ChatID: testChatID, ActorID: 5, ReplyMsgID: 1, ReplyAuthorID: 6}); !res.Denied {
		t.Error("non-administrators must be denied")
	}

	rig.engine.OnExplicitBanCommand(ctx, BanCommand{ChatID: testChatID, ActorID: testAdminID, CommandMsgID: 3})
	if got := rig.frontend.lastSent().text; got != rig.engine.localizer.T("ban.reply_required") {
		t.Errorf("expected reply-required notice, got %q", got)
	}

	res := rig.engine.OnExplicitBanCommand(ctx, BanCommand{ChatID: testChatID, ActorID: testAdminID, CommandMsgID: 4, ReplyMsgID: 9, ReplyAuthorID: testAdminID})
	if !slices.Equal(res.Skipped, []int64{testAdminID}) || len(res.Kicked) != 0 {
		t.Errorf("administrators must not be banned, got %+v", res)
	}
	if got := rig.frontend.lastSent().text; got != rig.engine.localizer.T("ban.cannot_ban_admin") {
		t.Errorf("expected cannot-ban-admin notice, got %q", got)
	}
}

func TestEngine_ResolveBanTargetsFromChallengeMessage(t *testing.T) {
	rig := newTestRig(t)
	rig.join(42, 100)
	challenge := rig.frontend.lastSent()

	got := rig.engine.ResolveBanTargets(BanCommand{ChatID: testChatID, ReplyMsgID: challenge.msgID, ReplyFromBot: true})
	if !slices.Equal(got, []int64{42}) {
		t.Errorf("targets = %v, want [42]", got)
	}
	if got := rig.engine.ResolveBanTargets(BanCommand{ChatID: testChatID, ReplyMsgID: 1, ReplyFromBot: true}); len(got) != 0 {
		t.Errorf("unknown bot message should resolve to nobody, got %v", got)
	}
}

func TestEngine_FloodBundling(t *testing.T) {
	rig := newTestRig(t)

	for i := int64(1); i <= 4; i++ {
		if got := rig.join(i, int(100+i)); got != JoinChallenged {
			t.Fatalf("join %d outcome = %v, want individual", i, got)
		}
	}

	if got := rig.join(5, 105); got != JoinFlooded {
		t.Fatalf("fifth join outcome = %v, want %v", got, JoinFlooded)
	}
	state, _ := rig.engine.Chat(testChatID)
	reg := state.Registry()
	first := rig.frontend.lastSent()
	if reg.FloodingLen() != 1 || reg.NonFloodingLen() != 4 {
		t.Fatalf("partitions = %d flooding, %d individual", reg.FloodingLen(), reg.NonFloodingLen())
	}
	if reg.FloodMessage() != first.msgID {
		t.Errorf("shared message = %d, want %d", reg.FloodMessage(), first.msgID)
	}
	callbacks := reg.FloodCallbacks()
	wantAccept := "clg 5 " + rig.engine.codec.Accept(5, 105)
	if len(callbacks) != 1 || callbacks[0] != wantAccept {
		t.Fatalf("callbacks = %v, want [%s]", callbacks, wantAccept)
	}
	if !strings.HasPrefix(first.text, rig.engine.localizer.T("challenge.flood_pending", 5)) {
		t.Errorf("flood challenge should lead with the pending count, got %q", first.text)
	}
	for _, b := range allButtons(first.keyboard) {
		if len(strings.Fields(b.Data)) != 3 {
			t.Errorf("flood buttons carry no explicit id, got %q", b.Data)
		}
	}

	if got := rig.join(6, 106); got != JoinFlooded {
		t.Fatalf("sixth join outcome = %v, want flooded", got)
	}
	second := rig.frontend.lastSent()
	if !rig.frontend.wasDeleted(first.msgID) {
		t.Error("previous shared message should be replaced")
	}
	if reg.FloodMessage() != second.msgID || len(reg.FloodCallbacks()) != 1 {
		t.Errorf("shared message not replaced: id %d callbacks %v", reg.FloodMessage(), reg.FloodCallbacks())
	}

	// Any bundled participant passes with the accept of the current shared message.
	if got := rig.click(5, second.msgID, reg.FloodCallbacks()[0]); got != ClickPassed {
		t.Fatalf("flooded click outcome = %v, want passed", got)
	}
	if rig.frontend.wasDeleted(second.msgID) {
		t.Error("shared message must stay while participants remain on it")
	}
	if got := rig.click(6, second.msgID, reg.FloodCallbacks()[0]); got != ClickPassed {
		t.Fatalf("flooded click outcome = %v, want passed", got)
	}
	if !rig.frontend.wasDeleted(second.msgID) {
		t.Error("shared message should be deleted once nobody is left on it")
	}
	if reg.FloodMessage() != 0 {
		t.Error("shared message id should be cleared")
	}
}

func TestEngine_FloodWrongAnswer(t *testing.T) {
	rig := newTestRig(t)
	state := rig.engine.chat(testChatID)
	state.Settings().Put(settings.FloodLimit, "1")

	rig.join(5, 105)
	shared := rig.frontend.lastSent()
	var decoy string
	for _, b := range allButtons(shared.keyboard) {
		if b.Data != state.Registry().FloodCallbacks()[0] {
			decoy = b.Data
		}
	}
	if decoy == "" {
		t.Fatal("no decoy rendered")
	}

	if got := rig.click(5, shared.msgID, decoy); got != ClickFailed {
		t.Fatalf("outcome = %v, want failed", got)
	}
	if !slices.Equal(rig.frontend.kicked, []int64{5}) {
		t.Errorf("kicked = %v", rig.frontend.kicked)
	}
	if !rig.frontend.wasDeleted(shared.msgID) || !rig.frontend.wasDeleted(105) {
		t.Errorf("shared and join messages should be deleted, got %v", rig.frontend.deleted)
	}
}

func TestEngine_BotsAreNeverBundled(t *testing.T) {
	rig := newTestRig(t)
	rig.engine.chat(testChatID).Settings().Put(settings.FloodLimit, "1")

	got := rig.engine.OnParticipantJoined(context.Background(), JoinEvent{
		ChatID:      testChatID,
		Participant: Participant{ID: 77, IsBot: true},
		JoinMsgID:   100,
	})
	if got != JoinChallenged {
		t.Errorf("bot join outcome = %v, want individual", got)
	}
}

func TestEngine_ClickClassification(t *testing.T) {
	rig := newTestRig(t)
	state := rig.engine.chat(testChatID)
	rig.join(42, 100)
	individual := rig.frontend.lastSent()

	state.Settings().Put(settings.FloodLimit, "1")
	rig.join(43, 101)
	shared := rig.frontend.lastSent()

	tok := rig.engine.codec.Accept(42, 100)
	tests := []struct {
		name    string
		clicker int64
		msgID   int
		data    string
		want    ClickOutcome
	}{
		{"unrelated user without explicit id", 7, shared.msgID, "clg 43 " + tok, ClickNaughty},
		{"stranger on an individual challenge", 7, individual.msgID, "clg 42 " + tok + " 42", ClickNaughty},
		{"individual entry clicked without explicit id", 42, individual.msgID, "clg 42 " + tok, ClickMismatch},
		{"explicit id pointing at a flooding entry", 43, shared.msgID, "clg 43 " + tok + " 43", ClickMismatch},
		{"two fields", 42, individual.msgID, "clg 42", ClickMalformed},
		{"non numeric id", 42, individual.msgID, "clg 42 " + tok + " x", ClickMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rig.click(tt.clicker, tt.msgID, tt.data); got != tt.want {
				t.Errorf("outcome = %v, want %v", got, tt.want)
			}
		})
	}

	if state.Registry().Len() != 2 {
		t.Errorf("classification must not touch the registry, len = %d", state.Registry().Len())
	}
	if len(rig.frontend.kicked) != 0 || len(rig.frontend.unbanned) != 0 {
		t.Errorf("no moderation expected, kicked %v unbanned %v", rig.frontend.kicked, rig.frontend.unbanned)
	}
}

func TestEngine_MismatchAnswersNotYours(t *testing.T) {
	rig := newTestRig(t)
	rig.join(42, 100)
	challenge := rig.frontend.lastSent()

	rig.click(42, challenge.msgID, "clg 42 "+rig.engine.codec.Accept(42, 100))
	if ans := rig.frontend.lastAnswer(); ans.text != rig.engine.localizer.T("verify.not_yours") || ans.alert {
		t.Errorf("unexpected answer %+v", ans)
	}
}

func TestEngine_AdminWrongClickKicks(t *testing.T) {
	rig := newTestRig(t)
	rig.join(42, 100)
	challenge := rig.frontend.lastSent()
	decoy := "clg 42 " + rig.engine.codec.Decoy(42, 100) + " 42"

	if got := rig.click(testAdminID, challenge.msgID, decoy); got != ClickKickedByAdmin {
		t.Fatalf("outcome = %v, want %v", got, ClickKickedByAdmin)
	}
	if ans := rig.frontend.lastAnswer(); ans.text != "Banned for 300 seconds" || !ans.alert {
		t.Errorf("unexpected answer %+v", ans)
	}
	if !slices.Equal(rig.frontend.kicked, []int64{42}) {
		t.Errorf("kicked = %v, want [42]", rig.frontend.kicked)
	}
	if n := len(rig.sched.pending("unban:-100123:42")); n != 1 {
		t.Errorf("expected an unban job, got %d", n)
	}
	if !rig.frontend.wasDeleted(100) {
		t.Error("join message should be deleted on failure")
	}
}

func TestEngine_InviterMayAnswer(t *testing.T) {
	rig := newTestRig(t)
	rig.engine.OnParticipantJoined(context.Background(), JoinEvent{
		ChatID:      testChatID,
		Participant: Participant{ID: 42},
		InviterID:   8,
		JoinMsgID:   100,
	})
	challenge := rig.frontend.lastSent()

	if got := rig.click(8, challenge.msgID, "clg 42 "+rig.engine.codec.Accept(42, 100)+" 42"); got != ClickPassed {
		t.Errorf("inviter click outcome = %v, want passed", got)
	}
}

func TestEngine_ClickAfterTimeoutIsIgnored(t *testing.T) {
	rig := newTestRig(t)
	rig.join(42, 100)
	challenge := rig.frontend.lastSent()
	state, _ := rig.engine.Chat(testChatID)
	entry, _ := state.Registry().Get(42)

	// Simulate the timeout winning the race between lookup and resolution.
	state.Registry().PopMatching(entry.UserID, entry.JoinMsgID)
	if got := rig.click(42, challenge.msgID, "clg 42 "+rig.engine.codec.Accept(42, 100)+" 42"); got != ClickNaughty {
		t.Errorf("outcome = %v, want naughty once the entry is gone", got)
	}
	if len(rig.frontend.unbanned) != 0 {
		t.Error("a resolved challenge must not be resolved twice")
	}
}

func TestEngine_RestrictFailureSendsNotice(t *testing.T) {
	rig := newTestRig(t)
	rig.frontend.restrictErr = errors.New("not enough rights")

	if got := rig.join(42, 100); got != JoinNoRights {
		t.Fatalf("outcome = %v, want %v", got, JoinNoRights)
	}
	state, _ := rig.engine.Chat(testChatID)
	if state.Registry().Len() != 0 {
		t.Error("nothing should be registered without rights")
	}
	if len(rig.sched.jobs) != 0 {
		t.Errorf("no timeout expected, got %d jobs", len(rig.sched.jobs))
	}
	if got := rig.frontend.lastSent().text; !strings.Contains(got, "Newcomer") {
		t.Errorf("notice should mention the participant, got %q", got)
	}
}

func TestEngine_SendRetries(t *testing.T) {
	rig := newTestRig(t)
	rig.frontend.sendErrs = SendAttempts - 1
	if got := rig.join(42, 100); got != JoinChallenged {
		t.Errorf("outcome = %v, want challenged after retries", got)
	}

	rig = newTestRig(t)
	rig.frontend.sendErrs = SendAttempts
	if got := rig.join(42, 100); got != JoinFailed {
		t.Errorf("outcome = %v, want failed", got)
	}
	if !rig.frontend.wasUnbanned(42) {
		t.Error("an undelivered challenge must lift the restriction")
	}
	state, _ := rig.engine.Chat(testChatID)
	if state.Registry().Len() != 0 {
		t.Errorf("registry size = %d, want 0", state.Registry().Len())
	}
	if jobs := rig.sched.pending(ChallengeKey(42, testChatID, 100)); len(jobs) != 0 {
		t.Errorf("no timeout is scheduled for an undelivered challenge, got %d", len(jobs))
	}
}

func TestEngine_FloodSendFailureKeepsSharedMessage(t *testing.T) {
	rig := newTestRig(t)
	for i := int64(1); i <= 5; i++ {
		rig.join(i, int(100+i))
	}
	state, _ := rig.engine.Chat(testChatID)
	reg := state.Registry()
	shared := reg.FloodMessage()
	callbacks := reg.FloodCallbacks()
	if shared == 0 {
		t.Fatal("fifth join should open a shared challenge")
	}

	rig.frontend.failSends(SendAttempts)
	if got := rig.join(6, 106); got != JoinFailed {
		t.Fatalf("outcome = %v, want failed", got)
	}

	if rig.frontend.wasDeleted(shared) {
		t.Error("the shared challenge must survive a failed replacement")
	}
	if reg.FloodMessage() != shared || !slices.Equal(reg.FloodCallbacks(), callbacks) {
		t.Errorf("shared challenge changed to %d %v", reg.FloodMessage(), reg.FloodCallbacks())
	}
	if _, ok := reg.Get(6); ok {
		t.Error("participant 6 should not be registered")
	}
	if !rig.frontend.wasUnbanned(6) {
		t.Error("an undelivered flood challenge must lift the restriction")
	}
	if reg.FloodingLen() != 1 {
		t.Errorf("flooding size = %d, want 1", reg.FloodingLen())
	}

	// Participant 5 can still answer the surviving message.
	if got := rig.click(5, shared, callbacks[0]); got != ClickPassed {
		t.Errorf("click on surviving shared challenge = %v, want passed", got)
	}
}

func TestEngine_TimeoutScheduledBeforeHistoryCleanup(t *testing.T) {
	rig := newTestRig(t)
	rig.engine.RecordMessage(ChatMessage{ChatID: testChatID, AuthorID: 42, MessageID: 101})

	key := ChallengeKey(42, testChatID, 100)
	checked := false
	rig.frontend.onDelete = func(msgID int) {
		if msgID != 101 {
			return
		}
		checked = true
		if jobs := rig.sched.pending(key); len(jobs) != 1 {
			t.Errorf("timeout should be pending while earlier messages are cleaned up, got %d jobs", len(jobs))
		}
	}

	rig.join(42, 100)
	if !checked {
		t.Fatal("message 101 was not deleted")
	}
}

func TestEngine_AdminInvitedJoinIsSkipped(t *testing.T) {
	rig := newTestRig(t)
	got := rig.engine.OnParticipantJoined(context.Background(), JoinEvent{
		ChatID:      testChatID,
		Participant: Participant{ID: 42},
		InviterID:   testAdminID,
		JoinMsgID:   100,
	})
	if got != JoinSkipped {
		t.Errorf("outcome = %v, want skipped", got)
	}
	if len(rig.frontend.restricted) != 0 {
		t.Error("admin invited participants are not restricted")
	}
}

func TestEngine_JoinDeletesLaterMessages(t *testing.T) {
	rig := newTestRig(t)
	rig.engine.RecordMessage(ChatMessage{ChatID: testChatID, AuthorID: 42, MessageID: 99})
	rig.engine.RecordMessage(ChatMessage{ChatID: testChatID, AuthorID: 42, MessageID: 101})

	rig.join(42, 100)

	if rig.frontend.wasDeleted(99) {
		t.Error("messages before the join are kept")
	}
	if !rig.frontend.wasDeleted(101) {
		t.Error("messages after the join should be deleted")
	}
}

func TestEngine_ChallengeTimeoutScaling(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		err   error
		want  int
	}{
		{"clean name gets full time", 0, nil, 300},
		{"maximum score gets minimum time", 100, nil, 15},
		{"half score", 50, nil, 157},
		{"scoring error", 0, errors.New("down"), 300},
		{"out of range", 150, nil, 300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := newTestRig(t)
			rig.engine.scorer = fakeScorer{score: tt.score, err: tt.err}
			if got := rig.engine.challengeTimeout(context.Background(), "name", 15, 300); got != tt.want {
				t.Errorf("timeout = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestChallengeKey(t *testing.T) {
	if ChallengeKey(1, 2, 3) != ChallengeKey(1, 2, 3) {
		t.Error("keys must be deterministic")
	}
	if ChallengeKey(1, 2, 3) == ChallengeKey(1, 2, 4) || ChallengeKey(12, 3, 4) == ChallengeKey(1, 23, 4) {
		t.Error("keys must differ for different challenges")
	}
}

func TestPackButtons(t *testing.T) {
	tests := []struct {
		name     string
		labels   []string
		wantRows int
	}{
		{"row capped at four buttons", []string{"a", "b", "c", "d", "e"}, 2},
		{"width budget", []string{"0123456789", "0123456789", "0123456789"}, 2},
		{"wide runes count double", []string{"中文中文中文", "中文中文中文"}, 2},
		{"oversized label gets its own row", []string{"012345678901234567890123"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buttons []chat.Button
			for _, l := range tt.labels {
				buttons = append(buttons, chat.Button{Text: l})
			}
			kb := packButtons(buttons)
			if len(kb) != tt.wantRows {
				t.Errorf("rows = %d, want %d", len(kb), tt.wantRows)
			}
			if n := len(allButtons(kb)); n != len(tt.labels) {
				t.Errorf("buttons = %d, want %d", n, len(tt.labels))
			}
		})
	}
}

func TestEngine_PayloadsRoundTrip(t *testing.T) {
	rig := newTestRig(t)
	rig.join(42, 100)
	for _, b := range allButtons(rig.frontend.lastSent().keyboard) {
		p, err := token.ParsePayload(b.Data)
		if err != nil {
			t.Fatalf("rendered payload %q does not parse: %v", b.Data, err)
		}
		if p.TargetID != 42 || !p.HasRestrict || p.RestrictedID != 42 {
			t.Errorf("unexpected payload %+v", p)
		}
	}
}

func TestEngine_ConcurrentFloodJoinsAndResolutions(t *testing.T) {
	rig := newTestRig(t)
	state := rig.engine.chat(testChatID)
	if _, ok := state.Settings().Put(settings.FloodLimit, "1"); !ok {
		t.Fatal("flood limit rejected")
	}
	const users = 20

	var wg sync.WaitGroup
	for i := int64(1); i <= users; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if got := rig.join(id, int(100+id)); got != JoinFlooded {
				t.Errorf("join %d outcome = %v, want flooded", id, got)
			}
		}(i)
	}
	wg.Wait()

	reg := state.Registry()
	if reg.FloodingLen() != users {
		t.Fatalf("flooding size = %d, want %d", reg.FloodingLen(), users)
	}
	shared := rig.frontend.lastSent()
	if reg.FloodMessage() != shared.msgID {
		t.Errorf("shared message = %d, want the last challenge sent %d", reg.FloodMessage(), shared.msgID)
	}
	if rig.frontend.wasDeleted(shared.msgID) {
		t.Error("the current shared challenge must not be deleted")
	}
	for _, m := range rig.frontend.sent[:len(rig.frontend.sent)-1] {
		if !rig.frontend.wasDeleted(m.msgID) {
			t.Errorf("superseded shared challenge %d was not deleted", m.msgID)
		}
	}

	// Every participant's click races its own timeout.
	accept := reg.FloodCallbacks()[0]
	for i := int64(1); i <= users; i++ {
		jobs := rig.sched.pending(ChallengeKey(i, testChatID, int(100+i)))
		if len(jobs) != 1 {
			t.Fatalf("user %d has %d pending timeouts, want 1", i, len(jobs))
		}
		wg.Add(2)
		go func(action func()) {
			defer wg.Done()
			action()
		}(jobs[0].action)
		go func(id int64) {
			defer wg.Done()
			switch got := rig.click(id, shared.msgID, accept); got {
			case ClickPassed, ClickNaughty, ClickAlreadyResolved:
			default:
				t.Errorf("click %d outcome = %v", id, got)
			}
		}(i)
	}
	wg.Wait()

	for i := int64(1); i <= users; i++ {
		kicked := slices.Contains(rig.frontend.kicked, i)
		passed := rig.frontend.wasUnbanned(i)
		if kicked == passed {
			t.Errorf("user %d resolved kicked=%v passed=%v, want exactly one", i, kicked, passed)
		}
	}
	if reg.Len() != 0 || reg.FloodMessage() != 0 {
		t.Errorf("registry size %d, shared message %d after all resolutions", reg.Len(), reg.FloodMessage())
	}
	if !rig.frontend.wasDeleted(shared.msgID) {
		t.Error("shared challenge should be deleted once everyone is resolved")
	}
}

func TestEngine_OnAdminsChangedRefreshesAdministrators(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	const promoted int64 = 777

	if rig.engine.isAdmin(ctx, testChatID, promoted) {
		t.Fatal("user is not an administrator yet")
	}
	rig.frontend.mutex.Lock()
	rig.frontend.admins = append(rig.frontend.admins, promoted)
	rig.frontend.mutex.Unlock()

	if rig.engine.isAdmin(ctx, testChatID, promoted) {
		t.Error("administrator list should be served from the cache")
	}
	rig.engine.OnAdminsChanged(testChatID)
	if !rig.engine.isAdmin(ctx, testChatID, promoted) {
		t.Error("administrator list should be fetched again after a change")
	}
}
