package game

import (
	"time"

	"github.com/mcdev12/quizlink/go/internal/session"
)

// Question is one question instance as accepted into the model. Option
// order is server-randomized and authoritative; the client never re-sorts
// it.
type Question struct {
	ID           string
	Text         string
	Options      []string
	CorrectIndex *int
	StartAt      *time.Time // server clock, optional
}

// AnswerEntry is one display option kept in lockstep with the question's
// option list.
type AnswerEntry struct {
	Text     string
	Selected bool
	Correct  *bool
}

// Snapshot is the reconciled view the UI renders from. It is always
// published as a whole value: a question and its answer list are replaced
// together in one transition, so a reader never observes a new question id
// paired with an empty or stale answer set.
type Snapshot struct {
	Question       *Question
	Answers        []AnswerEntry
	Submitted      bool
	ResultsVisible bool
}

// clone returns a deep copy safe to hand to subscribers.
func (s Snapshot) clone() Snapshot {
	out := Snapshot{
		Submitted:      s.Submitted,
		ResultsVisible: s.ResultsVisible,
	}
	if s.Question != nil {
		q := *s.Question
		q.Options = append([]string(nil), s.Question.Options...)
		if s.Question.CorrectIndex != nil {
			idx := *s.Question.CorrectIndex
			q.CorrectIndex = &idx
		}
		if s.Question.StartAt != nil {
			at := *s.Question.StartAt
			q.StartAt = &at
		}
		out.Question = &q
	}
	if s.Answers != nil {
		out.Answers = make([]AnswerEntry, len(s.Answers))
		for i, a := range s.Answers {
			entry := a
			if a.Correct != nil {
				c := *a.Correct
				entry.Correct = &c
			}
			out.Answers[i] = entry
		}
	}
	return out
}

// SelectedAnswer returns the currently selected entry, if any.
func (s Snapshot) SelectedAnswer() (AnswerEntry, bool) {
	for _, a := range s.Answers {
		if a.Selected {
			return a, true
		}
	}
	return AnswerEntry{}, false
}

// questionFromPayload converts a wire payload into a model question.
func questionFromPayload(p session.QuestionPayload) Question {
	q := Question{
		ID:      p.ID,
		Text:    p.Text,
		Options: append([]string(nil), p.Options...),
	}
	if p.CorrectIndex != nil {
		idx := *p.CorrectIndex
		q.CorrectIndex = &idx
	}
	if at, ok := p.StartAtTime(); ok {
		q.StartAt = &at
	}
	return q
}
