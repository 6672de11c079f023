package assembly

import (
	"context"
	"errors"
	"testing"

	"github.com/mind-engage/mindengage-quiz/internal/exam"
)

func TestValidateAcceptsSatisfiableConfig(t *testing.T) {
	if err := New(seedBank(t)).Validate(context.Background(), mathConfig(5)); err != nil {
		t.Fatal(err)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := mathConfig(7)
	cfg.PassingScore = 50 // max is 7*5 = 35
	cfg.Parts = append(cfg.Parts, exam.QuizPartSpec{
		ID: "p2", Name: "Science", Count: 4, Score: 1,
		Filter: exam.FilterSet{Subjects: []string{"Science"}},
	})

	err := New(seedBank(t)).Validate(context.Background(), cfg)
	var verr *ConfigValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want ConfigValidationError, got %v", err)
	}

	byPart := map[string]Problem{}
	var passing *Problem
	for i, p := range verr.Problems {
		if p.Field == "passing_score" {
			passing = &verr.Problems[i]
			continue
		}
		byPart[p.PartID] = p
	}
	if passing == nil || passing.Shortfall != 11 {
		t.Fatalf("passing score problem = %+v", passing)
	}
	if p := byPart["p1"]; p.Shortfall != 2 || p.PartName != "Arithmetic" {
		t.Fatalf("p1 = %+v", p)
	}
	if p := byPart["p2"]; p.Shortfall != 1 {
		t.Fatalf("p2 = %+v", p)
	}
}

func TestValidateStructure(t *testing.T) {
	cases := []struct {
		name  string
		cfg   exam.QuizConfig
		field string
	}{
		{"no name", exam.QuizConfig{Mode: exam.ModeExam, Parts: mathConfig(1).Parts}, "name"},
		{"no parts", exam.QuizConfig{Name: "x", Mode: exam.ModeExam}, "parts"},
		{"bad mode", exam.QuizConfig{Name: "x", Mode: "quiz", Parts: mathConfig(1).Parts}, "quiz_mode"},
		{"zero count", func() exam.QuizConfig {
			c := mathConfig(0)
			c.PassingScore = 0
			return c
		}(), "count"},
		{"bad type", func() exam.QuizConfig {
			c := mathConfig(1)
			c.Parts[0].Filter.QuestionTypes = []exam.Archetype{"ESSAY"}
			return c
		}(), "filter.question_types"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := New(seedBank(t)).Validate(context.Background(), tc.cfg)
			var verr *ConfigValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("want ConfigValidationError, got %v", err)
			}
			for _, p := range verr.Problems {
				if p.Field == tc.field {
					return
				}
			}
			t.Fatalf("no %s problem in %+v", tc.field, verr.Problems)
		})
	}
}

func TestValidateRepositoryFailure(t *testing.T) {
	repo := &failingRepo{err: errors.New("timeout")}
	err := New(repo).Validate(context.Background(), mathConfig(1))
	var verr *ConfigValidationError
	if err == nil || errors.As(err, &verr) {
		t.Fatalf("want a plain repository error, got %v", err)
	}
	if repo.calls.Load() == 0 {
		t.Fatal("availability was not queried")
	}
}
