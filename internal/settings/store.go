package settings

import (
	"math/rand/v2"
	"slices"
	"sync"
)

// Store is one chat's overlay over Defaults. A nil entry means "use default".
type Store struct {
	mutex   sync.RWMutex
	overlay map[Name]*Value
}

// NewStore creates an empty overlay.
func NewStore() *Store {
	return &Store{overlay: make(map[Name]*Value)}
}

// RestoreStore rebuilds a store from a persisted overlay. Unknown names and
// values whose kind no longer matches the option are dropped.
func RestoreStore(overlay map[Name]*Value) *Store {
	s := NewStore()
	for name, v := range overlay {
		opt, ok := options[name]
		if !ok {
			continue
		}
		if v != nil && v.Kind != opt.kind {
			continue
		}
		s.overlay[name] = cloneValue(v)
	}
	return s
}

// Overlay returns a copy of the stored overrides.
func (s *Store) Overlay() map[Name]*Value {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make(map[Name]*Value, len(s.overlay))
	for name, v := range s.overlay {
		out[name] = cloneValue(v)
	}
	return out
}

// Get returns the override for name, or its default.
func (s *Store) Get(name Name) (Value, error) {
	if _, ok := options[name]; !ok {
		return Value{}, ErrUnknownOption
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.getLocked(name), nil
}

func (s *Store) getLocked(name Name) Value {
	if v := s.overlay[name]; v != nil {
		return *cloneValue(v)
	}
	return *cloneValue(ptr(Defaults[name]))
}

// Int returns an integer option, 0 for options of another kind.
func (s *Store) Int(name Name) int {
	v, _ := s.Get(name)
	return v.Int
}

// Bool returns a boolean option.
func (s *Store) Bool(name Name) bool {
	v, _ := s.Get(name)
	return v.Bool
}

// Strings returns a string list option.
func (s *Store) Strings(name Name) []string {
	v, _ := s.Get(name)
	return v.Strings
}

// Questions returns the current challenge question sets.
func (s *Store) Questions() []Question {
	v, _ := s.Get(ChallengeQs)
	return v.Questions
}

// Put validates raw operator input for name and stores it. Empty input resets
// the option to its default. The second result is false when the input was
// rejected, in which case the prior value is retained.
func (s *Store) Put(name Name, raw string) (Name, bool) {
	opt, ok := options[name]
	if !ok {
		return "", false
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if raw == "" {
		s.overlay[name] = nil
		return name, true
	}

	v, ok := opt.parse(s.getLocked, truncate(raw, MaxInputRunes))
	if !ok {
		return "", false
	}

	s.overlay[name] = &v
	return name, true
}

// Choice picks one entry of a string list option uniformly at random.
func (s *Store) Choice(name Name) (string, bool) {
	list := s.Strings(name)
	if len(list) == 0 {
		return "", false
	}
	return list[rand.IntN(len(list))], true
}

// ChooseQuestion picks one question set uniformly at random.
func (s *Store) ChooseQuestion() Question {
	qs := s.Questions()
	if len(qs) == 0 {
		qs = Defaults[ChallengeQs].Questions
	}
	return qs[rand.IntN(len(qs))]
}

// DeleteQuestion removes the question set at index. At least two sets must
// be present, so the last one can never be deleted.
func (s *Store) DeleteQuestion(index int) (Question, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	qs := s.getLocked(ChallengeQs).Questions
	if index < 0 || index >= len(qs) || len(qs) < 2 {
		return Question{}, false
	}

	removed := qs[index]
	qs = slices.Delete(qs, index, index+1)
	s.overlay[ChallengeQs] = &Value{Kind: KindQuestions, Questions: qs}
	return removed, true
}

func ptr(v Value) *Value {
	return &v
}

func cloneValue(v *Value) *Value {
	if v == nil {
		return nil
	}
	c := *v
	c.Strings = slices.Clone(v.Strings)
	if v.Questions != nil {
		c.Questions = make([]Question, len(v.Questions))
		for i, q := range v.Questions {
			q.Wrong = slices.Clone(q.Wrong)
			c.Questions[i] = q
		}
	}
	return &c
}
