// Package settings holds the per-chat configuration overlay and its validation rules.
package settings

import (
	"errors"
	"strconv"
	"strings"
)

// Name identifies a configurable option.
type Name string

// Recognized options.
const (
	WelcomeWords     Name = "WELCOME_WORDS"
	ChallengeQs      Name = "CLG_QUESTIONS"
	ChallengeSuccess Name = "CHALLENGE_SUCCESS"
	PermissionDeny   Name = "PERMISSION_DENY"
	ChallengeTimeout Name = "CHALLENGE_TIMEOUT"
	MinChallengeTime Name = "MIN_CLG_TIME"
	UnbanTimeout     Name = "UNBAN_TIMEOUT"
	FloodLimit       Name = "FLOOD_LIMIT"
	DelLeaveMsg      Name = "DEL_LEAVE_MSG"
	DelServiceMsg    Name = "DEL_SERVICE_MSG"
)

// Names lists every option in menu order.
var Names = []Name{
	WelcomeWords,
	ChallengeQs,
	ChallengeSuccess,
	PermissionDeny,
	ChallengeTimeout,
	MinChallengeTime,
	UnbanTimeout,
	FloodLimit,
	DelLeaveMsg,
	DelServiceMsg,
}

// ErrUnknownOption is returned for names outside the recognized set.
var ErrUnknownOption = errors.New("unknown settings option")

// Kind is the variant of an option value.
type Kind int

// Option kinds.
const (
	KindStringList Kind = iota
	KindQuestions
	KindInt
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindStringList:
		return "str"
	case KindQuestions:
		return "array"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Question is one challenge question with its correct and wrong answers.
type Question struct {
	Text   string   `json:"text"`
	Answer string   `json:"answer"`
	Wrong  []string `json:"wrong"`
}

// Value is a tagged option value. Only the field matching Kind is meaningful.
type Value struct {
	Kind      Kind       `json:"kind"`
	Strings   []string   `json:"strings,omitempty"`
	Questions []Question `json:"questions,omitempty"`
	Int       int        `json:"int,omitempty"`
	Bool      bool       `json:"bool,omitempty"`
}

// Validation limits.
const (
	MaxInputRunes     = 4096
	MaxTextRunes      = 4000
	MaxNoticeRunes    = 30
	MaxQuestionSets   = 10
	MaxAnswerRunes    = 200
	MaxAnswers        = 50
	MinQuestionLines  = 3
	MaxChallengeTime  = 3600
	MaxUnbanTimeout   = 86400
	MaxFloodLimit     = 1000
	clampedFloodLimit = 1
)

// parser turns raw input into a value. current reads the other options of
// the same chat, for rules that depend on them.
type parser func(current func(Name) Value, raw string) (Value, bool)

type option struct {
	kind  Kind
	parse parser
}

var options = map[Name]option{
	WelcomeWords:     {KindStringList, stringList(MaxTextRunes)},
	ChallengeQs:      {KindQuestions, appendQuestion},
	ChallengeSuccess: {KindStringList, stringList(MaxNoticeRunes)},
	PermissionDeny:   {KindStringList, stringList(MaxNoticeRunes)},
	ChallengeTimeout: {KindInt, intParser(func(_ func(Name) Value, v int) (int, bool) {
		return v, v >= 1 && v <= MaxChallengeTime
	})},
	MinChallengeTime: {KindInt, intParser(func(current func(Name) Value, v int) (int, bool) {
		return v, v >= 0 && v <= current(ChallengeTimeout).Int
	})},
	UnbanTimeout: {KindInt, intParser(func(_ func(Name) Value, v int) (int, bool) {
		if v < 0 || v > MaxUnbanTimeout {
			return 0, true
		}
		return v, true
	})},
	FloodLimit: {KindInt, intParser(func(_ func(Name) Value, v int) (int, bool) {
		if v < 0 || v > MaxFloodLimit {
			return clampedFloodLimit, true
		}
		return v, true
	})},
	DelLeaveMsg:   {KindBool, toggle(DelLeaveMsg)},
	DelServiceMsg: {KindBool, toggle(DelServiceMsg)},
}

// KindOf returns the value kind of an option.
func KindOf(name Name) (Kind, error) {
	opt, ok := options[name]
	if !ok {
		return 0, ErrUnknownOption
	}
	return opt.kind, nil
}

// ParseName maps raw text to a recognized option name.
func ParseName(s string) (Name, bool) {
	name := Name(s)
	_, ok := options[name]
	return name, ok
}

func nonEmptyLines(raw string) []string {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func stringList(limit int) parser {
	return func(_ func(Name) Value, raw string) (Value, bool) {
		lines := nonEmptyLines(raw)
		if len(lines) == 0 {
			return Value{}, false
		}
		for i := range lines {
			lines[i] = truncate(lines[i], limit)
		}
		return Value{Kind: KindStringList, Strings: lines}, true
	}
}

// appendQuestion adds one question set to the current list.
func appendQuestion(current func(Name) Value, raw string) (Value, bool) {
	lines := nonEmptyLines(raw)
	existing := current(ChallengeQs).Questions
	if len(lines) < MinQuestionLines || len(existing) >= MaxQuestionSets {
		return Value{}, false
	}
	if len(lines) > MaxAnswers+1 {
		lines = lines[:MaxAnswers+1]
	}

	q := Question{
		Text:   truncate(lines[0], MaxTextRunes),
		Answer: truncate(lines[1], MaxAnswerRunes),
	}
	for _, w := range lines[2:] {
		q.Wrong = append(q.Wrong, truncate(w, MaxAnswerRunes))
	}

	return Value{Kind: KindQuestions, Questions: append(existing, q)}, true
}

func intParser(check func(current func(Name) Value, v int) (int, bool)) parser {
	return func(current func(Name) Value, raw string) (Value, bool) {
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return Value{}, false
		}
		v, ok := check(current, v)
		if !ok {
			return Value{}, false
		}
		return Value{Kind: KindInt, Int: v}, true
	}
}

func toggle(name Name) parser {
	return func(current func(Name) Value, _ string) (Value, bool) {
		return Value{Kind: KindBool, Bool: !current(name).Bool}, true
	}
}
