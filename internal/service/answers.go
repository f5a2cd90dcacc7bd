package service

import "github.com/boddenberg/security-assessment-go/internal/domain"

// AnswerStore maps question ids to answers. The zero value is readable;
// Set needs a non-nil map.
type AnswerStore map[string]domain.Answer

// Set replaces any prior answer for questionID in full. A nil level leaves
// the maturity score out of the stored answer.
func (s AnswerStore) Set(questionID string, value domain.Value, level *domain.MaturityLevel) domain.Answer {
	a := domain.Answer{QuestionID: questionID, Value: value}
	if level != nil {
		l := *level
		a.MaturityLevel = &l
	}
	s[questionID] = a
	return a
}

// Get returns the answer for questionID, if any.
func (s AnswerStore) Get(questionID string) (domain.Answer, bool) {
	a, ok := s[questionID]
	return a, ok
}

// Clone returns a deep copy; list values and maturity pointers are not shared.
func (s AnswerStore) Clone() AnswerStore {
	out := make(AnswerStore, len(s))
	for id, a := range s {
		out[id] = cloneAnswer(a)
	}
	return out
}

func cloneAnswer(a domain.Answer) domain.Answer {
	if a.Value.List != nil {
		a.Value.List = append([]string(nil), a.Value.List...)
	}
	if a.MaturityLevel != nil {
		l := *a.MaturityLevel
		a.MaturityLevel = &l
	}
	return a
}
