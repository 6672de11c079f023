package grading

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mind-engage/mindengage-quiz/internal/exam"
)

var ErrUnknownArchetype = errors.New("unknown question archetype")

// Outcome is the result of grading a single answer.
type Outcome struct {
	IsCorrect   bool
	Score       float64 // points awarded automatically
	MaxScore    float64 // the question's max points
	NeedsManual bool    // true if a grader must score it
}

// Strategy grades one archetype.
type Strategy interface {
	Grade(q exam.Question, answer exam.Answer) Outcome
}

// Grade scores answer against q. A nil answer is graded as unanswered.
func Grade(q exam.Question, answer exam.Answer) (Outcome, error) {
	s, err := strategyFor(q)
	if err != nil {
		return Outcome{MaxScore: q.MaxScore()}, err
	}
	return s.Grade(q, answer), nil
}

// strategyFor must list every exam.Archetype; TestEveryArchetypeHasStrategy
// fails when a new archetype is added without one.
func strategyFor(q exam.Question) (Strategy, error) {
	switch q.Type {
	case exam.MultipleChoice, exam.TrueFalse:
		return exactStrategy{}, nil
	case exam.MultipleSelect:
		return multiSelectStrategy{}, nil
	case exam.FillInTheBlank:
		return blanksStrategy{}, nil
	case exam.ShortAnswer:
		if q.NeedsGrading {
			return manualStrategy{}, nil
		}
		return shortTextStrategy{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownArchetype, q.Type)
}

// --- Strategies ---

// exactStrategy compares the raw option string, markup included.
type exactStrategy struct{}

func (exactStrategy) Grade(q exam.Question, answer exam.Answer) Outcome {
	return award(q, len(q.AnswerKey) > 0 && answer != nil && exam.Text(answer) == q.AnswerKey[0])
}

// multiSelectStrategy compares both sides as sorted lists.
type multiSelectStrategy struct{}

func (multiSelectStrategy) Grade(q exam.Question, answer exam.Answer) Outcome {
	got := sortedCopy(exam.Values(answer))
	want := sortedCopy(q.AnswerKey)
	if len(got) != len(want) {
		return award(q, false)
	}
	for i := range want {
		if got[i] != want[i] {
			return award(q, false)
		}
	}
	return award(q, true)
}

// blanksStrategy requires every blank to match after normalisation.
type blanksStrategy struct{}

func (blanksStrategy) Grade(q exam.Question, answer exam.Answer) Outcome {
	got := exam.Values(answer)
	if len(got) == 0 || len(got) != len(q.AnswerKey) {
		return award(q, false)
	}
	for i, key := range q.AnswerKey {
		if normalize(StripHTML(key)) != normalize(got[i]) {
			return award(q, false)
		}
	}
	return award(q, true)
}

// shortTextStrategy is used for short answers that do not need a grader.
type shortTextStrategy struct{}

func (shortTextStrategy) Grade(q exam.Question, answer exam.Answer) Outcome {
	if len(q.AnswerKey) == 0 || answer == nil {
		return award(q, false)
	}
	return award(q, normalize(StripHTML(q.AnswerKey[0])) == normalize(exam.Text(answer)))
}

// manualStrategy never awards points; the attempt waits for a grader.
type manualStrategy struct{}

func (manualStrategy) Grade(q exam.Question, _ exam.Answer) Outcome {
	return Outcome{MaxScore: q.MaxScore(), NeedsManual: true}
}

func award(q exam.Question, correct bool) Outcome {
	o := Outcome{IsCorrect: correct, MaxScore: q.MaxScore()}
	if correct {
		o.Score = o.MaxScore
	}
	return o
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
