package grading

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/exam"
)

func pendingResult(t *testing.T) exam.QuizResult {
	t.Helper()
	res, err := Finish(FinishInput{
		Config:    sampleConfig(),
		Questions: sampleQuestions(),
		Answers: map[string]exam.Answer{
			"q1": exam.Single("B"),
			"q2": exam.Multi{"A"},
			"q3": exam.Single("answer"),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestManualItemsOnlyFlagged(t *testing.T) {
	items := ManualItems(pendingResult(t))
	if len(items) != 1 || items[0].Index != 2 || items[0].QuestionID != "q3" {
		t.Fatalf("items = %+v", items)
	}
}

func TestApplyOverridePartialCreditStaysIncorrect(t *testing.T) {
	res := pendingResult(t)
	at := time.Unix(1_700_000_500, 0)
	if err := ApplyOverride(&res, Override{Index: 2, Score: 7, Comment: "good"}, "teacher-1", at); err != nil {
		t.Fatal(err)
	}
	a := res.Attempts[2]
	if a.IsCorrect {
		t.Fatal("partial credit must not mark the attempt correct")
	}
	if a.Score != 7 || !a.Graded || a.GradedBy != "teacher-1" || a.GradedAt != at.Unix() || a.Comment != "good" {
		t.Fatalf("attempt = %+v", a)
	}
	if res.Score != 11 {
		t.Fatalf("score = %v, want 11", res.Score)
	}
	if res.IsPassed {
		t.Fatal("still pending, must not be passed")
	}

	if err := ApplyOverride(&res, Override{Index: 2, Score: 10}, "teacher-1", at); err != nil {
		t.Fatal(err)
	}
	if !res.Attempts[2].IsCorrect || res.Score != 14 {
		t.Fatalf("full score: attempt %+v total %v", res.Attempts[2], res.Score)
	}
}

func TestApplyOverrideIdempotent(t *testing.T) {
	res := pendingResult(t)
	at := time.Unix(1_700_000_500, 0)
	o := Override{Index: 2, Score: 6.25}
	if err := ApplyOverride(&res, o, "g", at); err != nil {
		t.Fatal(err)
	}
	first := res
	first.Attempts = append([]exam.QuizAttempt(nil), res.Attempts...)
	if err := ApplyOverride(&res, o, "g", at); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, res) {
		t.Fatalf("second application changed the result:\n%+v\n%+v", first, res)
	}
	Recompute(&res)
	if !reflect.DeepEqual(first, res) {
		t.Fatal("recompute is not idempotent")
	}
}

func TestApplyOverrideRejectsWithoutMutation(t *testing.T) {
	cases := []struct {
		name string
		o    Override
		want error
	}{
		{"negative", Override{Index: 2, Score: -1}, nil},
		{"above max", Override{Index: 2, Score: 10.5}, nil},
		{"not a number", Override{Index: 2, Score: math.NaN()}, nil},
		{"infinite", Override{Index: 2, Score: math.Inf(1)}, nil},
		{"index", Override{Index: 9, Score: 1}, ErrAttemptIndex},
		{"auto graded", Override{Index: 0, Score: 1}, ErrNotManual},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := pendingResult(t)
			before := pendingResult(t)
			err := ApplyOverride(&res, tc.o, "g", time.Now())
			if tc.want == nil {
				var rangeErr *ScoreRangeError
				if !errors.As(err, &rangeErr) || rangeErr.MaxScore != 10 {
					t.Fatalf("want ScoreRangeError, got %v", err)
				}
			} else if !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
			if !reflect.DeepEqual(before, res) {
				t.Fatal("rejected override mutated the result")
			}
		})
	}
}

func TestFinalize(t *testing.T) {
	res := pendingResult(t)
	if err := Finalize(&res); !errors.Is(err, ErrGradingIncomplete) {
		t.Fatalf("want ErrGradingIncomplete, got %v", err)
	}
	if err := ApplyOverride(&res, Override{Index: 2, Score: 4}, "g", time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := Finalize(&res); err != nil {
		t.Fatal(err)
	}
	if res.Status != exam.StatusCompleted || res.Score != 8 || !res.IsPassed {
		t.Fatalf("got status %s score %v passed %v", res.Status, res.Score, res.IsPassed)
	}
	if err := Finalize(&res); !errors.Is(err, ErrResultNotPending) {
		t.Fatalf("second finalize: %v", err)
	}
}
