package core

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"antispambot/internal/chat"
	"antispambot/internal/scheduler"
)

const (
	testChatID  int64 = -100123
	testAdminID int64 = 999
)

type sentMessage struct {
	chatID   int64
	msgID    int
	replyTo  int
	text     string
	keyboard chat.Keyboard
}

type callbackAnswer struct {
	callbackID string
	text       string
	alert      bool
}

type fakeFrontend struct {
	mutex       sync.Mutex
	admins      []int64
	restrictErr error
	sendErrs    int // number of SendMessage calls to fail before succeeding
	nextMsgID   int
	onDelete    func(msgID int)

	restricted []int64
	kicked     []int64
	unbanned   []int64
	deleted    []int
	sent       []sentMessage
	edited     []sentMessage
	answers    []callbackAnswer
}

func newFakeFrontend() *fakeFrontend {
	return &fakeFrontend{admins: []int64{testAdminID}, nextMsgID: 1000}
}

func (f *fakeFrontend) Restrict(_ context.Context, _, userID int64) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.restrictErr != nil {
		return f.restrictErr
	}
	f.restricted = append(f.restricted, userID)
	return nil
}

func (f *fakeFrontend) Kick(_ context.Context, _, userID int64) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.kicked = append(f.kicked, userID)
	return nil
}

func (f *fakeFrontend) Unban(_ context.Context, _, userID int64) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.unbanned = append(f.unbanned, userID)
	return nil
}

func (f *fakeFrontend) DeleteMessage(_ context.Context, _ int64, msgID int) error {
	f.mutex.Lock()
	f.deleted = append(f.deleted, msgID)
	hook := f.onDelete
	f.mutex.Unlock()
	if hook != nil {
		hook(msgID)
	}
	return nil
}

func (f *fakeFrontend) GetAdminIDs(_ context.Context, _ int64) ([]int64, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]int64(nil), f.admins...), nil
}

func (f *fakeFrontend) AdminMentions(_ context.Context, _ int64) ([]string, error) {
	return []string{"@owner", "@moderator"}, nil
}

func (f *fakeFrontend) SendMessage(_ context.Context, chatID int64, replyTo int, text string, kb chat.Keyboard) (int, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.sendErrs > 0 {
		f.sendErrs--
		return 0, errors.New("send failed")
	}
	f.nextMsgID++
	f.sent = append(f.sent, sentMessage{chatID: chatID, msgID: f.nextMsgID, replyTo: replyTo, text: text, keyboard: kb})
	return f.nextMsgID, nil
}

func (f *fakeFrontend) EditMessage(_ context.Context, chatID int64, msgID int, text string, kb chat.Keyboard) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.edited = append(f.edited, sentMessage{chatID: chatID, msgID: msgID, text: text, keyboard: kb})
	return nil
}

func (f *fakeFrontend) AnswerCallback(_ context.Context, callbackID, text string, alert bool) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.answers = append(f.answers, callbackAnswer{callbackID: callbackID, text: text, alert: alert})
	return nil
}

func (f *fakeFrontend) wasDeleted(msgID int) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return slices.Contains(f.deleted, msgID)
}

func (f *fakeFrontend) wasUnbanned(userID int64) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return slices.Contains(f.unbanned, userID)
}

func (f *fakeFrontend) failSends(n int) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.sendErrs = n
}

func (f *fakeFrontend) lastSent() sentMessage {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if len(f.sent) == 0 {
		return sentMessage{}
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeFrontend) lastAnswer() callbackAnswer {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if len(f.answers) == 0 {
		return callbackAnswer{}
	}
	return f.answers[len(f.answers)-1]
}

type fakeJob struct {
	delay     time.Duration
	key       string
	action    func()
	cancelled bool
	fired     bool
}

// fakeScheduler records jobs and runs them only when a test fires them.
type fakeScheduler struct {
	mutex sync.Mutex
	jobs  []*fakeJob
}

func (s *fakeScheduler) ScheduleOnce(delay time.Duration, key string, action func()) *scheduler.Job {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.jobs = append(s.jobs, &fakeJob{delay: delay, key: key, action: action})
	return nil
}

func (s *fakeScheduler) CancelByKey(key string) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.key == key && !j.cancelled && !j.fired {
			j.cancelled = true
			n++
		}
	}
	return n
}

func (s *fakeScheduler) pending(key string) []*fakeJob {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var out []*fakeJob
	for _, j := range s.jobs {
		if j.key == key && !j.cancelled && !j.fired {
			out = append(out, j)
		}
	}
	return out
}

func (s *fakeScheduler) fire(t *testing.T, key string) {
	t.Helper()
	jobs := s.pending(key)
	if len(jobs) != 1 {
		t.Fatalf("expected one pending job for %q, got %d", key, len(jobs))
	}
	s.mutex.Lock()
	jobs[0].fired = true
	s.mutex.Unlock()
	jobs[0].action()
}

type fakeScorer struct {
	score float64
	err   error
}

func (f fakeScorer) Score(context.Context, string) (float64, error) {
	return f.score, f.err
}

type fakeRecorder struct {
	mutex     sync.Mutex
	anomalies int
	outcomes  []string
}

func (r *fakeRecorder) RecordChallenge(string) {}

func (r *fakeRecorder) RecordVerification(outcome string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *fakeRecorder) RecordModeration(string, bool) {}

func (r *fakeRecorder) RecordGC(string, int) {}

func (r *fakeRecorder) RecordSchedulingAnomaly() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.anomalies++
}

type memoryStates struct {
	mutex sync.Mutex
	blobs map[int64][]byte
}

func (m *memoryStates) Save(_ context.Context, chatID int64, data []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.blobs == nil {
		m.blobs = make(map[int64][]byte)
	}
	m.blobs[chatID] = append([]byte(nil), data...)
	return nil
}

func (m *memoryStates) LoadAll(context.Context) (map[int64][]byte, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	out := make(map[int64][]byte, len(m.blobs))
	for k, v := range m.blobs {
		out[k] = v
	}
	return out, nil
}

type testRig struct {
	engine   *Engine
	frontend *fakeFrontend
	sched    *fakeScheduler
	recorder *fakeRecorder
	states   *memoryStates
	clock    time.Time
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	rig := &testRig{
		frontend: newFakeFrontend(),
		sched:    &fakeScheduler{},
		recorder: &fakeRecorder{},
		states:   &memoryStates{},
		clock:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	config := DefaultConfig()
	config.App.Salt = "test-salt"
	rig.engine = NewEngine(config, rig.frontend, rig.sched, fakeScorer{err: errors.New("no score")},
		rig.states, rig.recorder, zap.NewNop())
	rig.engine.now = func() time.Time { return rig.clock }
	t.Cleanup(rig.engine.adminGate.Stop)
	return rig
}

func (r *testRig) join(userID int64, joinMsgID int) JoinOutcome {
	return r.engine.OnParticipantJoined(context.Background(), JoinEvent{
		ChatID:      testChatID,
		Participant: Participant{ID: userID, DisplayName: "Newcomer"},
		JoinMsgID:   joinMsgID,
	})
}

func (r *testRig) click(clickerID int64, msgID int, data string) ClickOutcome {
	return r.engine.OnChallengeClick(context.Background(), ClickEvent{
		ChatID:     testChatID,
		ClickerID:  clickerID,
		CallbackID: "cb",
		MessageID:  msgID,
		Data:       data,
	})
}

func allButtons(kb chat.Keyboard) []chat.Button {
	var out []chat.Button
	for _, row := range kb {
		out = append(out, row...)
	}
	return out
}
