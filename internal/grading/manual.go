package grading

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/exam"
)

var (
	ErrNotManual         = errors.New("attempt is not manually graded")
	ErrAttemptIndex      = errors.New("attempt index out of range")
	ErrGradingIncomplete = errors.New("manually graded attempts remain unscored")
	ErrResultNotPending  = errors.New("result is not pending grading")
)

// ScoreRangeError rejects an override outside [0, max].
type ScoreRangeError struct {
	Index    int
	Score    float64
	MaxScore float64
}

func (e *ScoreRangeError) Error() string {
	return fmt.Sprintf("attempt %d: score %.2f outside [0, %.2f]", e.Index, e.Score, e.MaxScore)
}

// ManualItem is an attempt that needs a grader, with its position in the result.
type ManualItem struct {
	Index int `json:"index"`
	exam.QuizAttempt
}

// ManualItems lists the attempts flagged for manual grading.
func ManualItems(r exam.QuizResult) []ManualItem {
	out := make([]ManualItem, 0)
	for i, a := range r.Attempts {
		if a.ManualGrading {
			out = append(out, ManualItem{Index: i, QuizAttempt: a})
		}
	}
	return out
}

type Override struct {
	Index   int     `json:"index"`
	Score   float64 `json:"score"`
	Comment string  `json:"comment,omitempty"`
}

// CheckOverride validates o against r without changing anything.
func CheckOverride(r exam.QuizResult, o Override) error {
	if o.Index < 0 || o.Index >= len(r.Attempts) {
		return fmt.Errorf("%w: %d", ErrAttemptIndex, o.Index)
	}
	a := r.Attempts[o.Index]
	if !a.ManualGrading {
		return fmt.Errorf("%w: %d", ErrNotManual, o.Index)
	}
	if math.IsNaN(o.Score) || o.Score < 0 || o.Score > a.MaxScore {
		return &ScoreRangeError{Index: o.Index, Score: o.Score, MaxScore: a.MaxScore}
	}
	return nil
}

// ApplyOverride sets a manual score and recomputes the totals. Only a full
// score marks the attempt correct. r is left untouched when o is rejected.
func ApplyOverride(r *exam.QuizResult, o Override, by string, at time.Time) error {
	if err := CheckOverride(*r, o); err != nil {
		return err
	}
	a := &r.Attempts[o.Index]
	a.Score = o.Score
	a.IsCorrect = o.Score == a.MaxScore
	a.Graded = true
	a.GradedBy = by
	a.GradedAt = at.Unix()
	if o.Comment != "" {
		a.Comment = o.Comment
	}
	Recompute(r)
	return nil
}

// Recompute derives score and pass state from the attempts. It is idempotent.
func Recompute(r *exam.QuizResult) {
	total := 0.0
	for _, a := range r.Attempts {
		total += a.Score
	}
	r.Score = exam.Round1(total)
	r.IsPassed = passed(*r)
}

// Finalize moves a pending result to completed once every manual attempt has
// been scored.
func Finalize(r *exam.QuizResult) error {
	if r.Status != exam.StatusPendingGrading {
		return ErrResultNotPending
	}
	for i, a := range r.Attempts {
		if a.ManualGrading && !a.Graded {
			return fmt.Errorf("%w: attempt %d", ErrGradingIncomplete, i)
		}
	}
	r.Status = exam.StatusCompleted
	Recompute(r)
	return nil
}
