package assembly

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/mind-engage/mindengage-quiz/internal/exam"
)

func seedBank(t *testing.T) exam.Store {
	t.Helper()
	ctx := context.Background()
	s := exam.NewInMemoryStore()
	for i := 0; i < 5; i++ {
		q := exam.Question{ID: fmt.Sprintf("math-%d", i), Type: exam.MultipleChoice, Subject: "Math", Difficulty: "easy", AnswerKey: []string{"A"}, Score: 1}
		if err := s.PutQuestion(ctx, q); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 3; i++ {
		q := exam.Question{ID: fmt.Sprintf("sci-%d", i), Type: exam.ShortAnswer, Subject: "Science", AnswerKey: []string{"x"}}
		if err := s.PutQuestion(ctx, q); err != nil {
			t.Fatal(err)
		}
	}
	// Hidden from assembly.
	if err := s.PutQuestion(ctx, exam.Question{ID: "math-disabled", Type: exam.MultipleChoice, Subject: "Math", Disabled: true}); err != nil {
		t.Fatal(err)
	}
	if err := s.PutQuestion(ctx, exam.Question{ID: "math-deleted", Type: exam.MultipleChoice, Subject: "Math", Deleted: true}); err != nil {
		t.Fatal(err)
	}
	return s
}

func mathConfig(count int) exam.QuizConfig {
	return exam.QuizConfig{
		ID:   "cfg",
		Name: "Math quiz",
		Parts: []exam.QuizPartSpec{{
			ID: "p1", Name: "Arithmetic", Count: count, Score: 5,
			Filter: exam.FilterSet{Subjects: []string{"Math"}},
		}},
		PassingScore: 5,
		Mode:         exam.ModeExam,
	}
}

func TestAssembleDrawsDistinctFromPool(t *testing.T) {
	bank := seedBank(t)
	a := New(bank, WithRand(rand.New(rand.NewSource(1))))
	seen := map[string]bool{}
	for run := 0; run < 50; run++ {
		d, err := a.Assemble(context.Background(), mathConfig(2))
		if err != nil {
			t.Fatal(err)
		}
		if len(d.Questions) != 2 {
			t.Fatalf("got %d questions", len(d.Questions))
		}
		if d.Questions[0].ID == d.Questions[1].ID {
			t.Fatalf("duplicate question %s", d.Questions[0].ID)
		}
		for _, q := range d.Questions {
			if q.Subject != "Math" || q.Disabled || q.Deleted {
				t.Fatalf("drew %+v from outside the pool", q)
			}
			if q.PartName != "Arithmetic" || q.Score != 5 {
				t.Fatalf("part tag/score not applied: %+v", q)
			}
			seen[q.ID] = true
		}
		if d.ConfigName != "Math quiz" || d.PassingScore != 5 {
			t.Fatalf("draw metadata = %+v", d)
		}
	}
	if len(seen) != 5 {
		t.Fatalf("50 draws only ever used %d of 5 questions", len(seen))
	}
}

func TestAssembleDeterministicWithSeed(t *testing.T) {
	bank := seedBank(t)
	ids := func() []string {
		a := New(bank, WithRand(rand.New(rand.NewSource(42))))
		d, err := a.Assemble(context.Background(), mathConfig(3))
		if err != nil {
			t.Fatal(err)
		}
		out := []string{}
		for _, q := range d.Questions {
			out = append(out, q.ID)
		}
		return out
	}
	first, second := ids(), ids()
	if fmt.Sprint(first) != fmt.Sprint(second) {
		t.Fatalf("same seed gave %v and %v", first, second)
	}
}

func TestAssemblePreservesPartOrder(t *testing.T) {
	bank := seedBank(t)
	cfg := exam.QuizConfig{
		ID: "mixed", Name: "Mixed", Mode: exam.ModePractice,
		Parts: []exam.QuizPartSpec{
			{ID: "a", Name: "Science", Count: 2, Filter: exam.FilterSet{Subjects: []string{"Science"}}},
			{ID: "b", Name: "Math", Count: 3, Filter: exam.FilterSet{Subjects: []string{"Math"}}},
		},
	}
	d, err := New(bank, WithRand(rand.New(rand.NewSource(7)))).Assemble(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Questions) != cfg.TotalQuestions() {
		t.Fatalf("got %d questions", len(d.Questions))
	}
	for i, q := range d.Questions {
		want := "Science"
		if i >= 2 {
			want = "Math"
		}
		if q.Subject != want || q.PartName != want {
			t.Fatalf("question %d = %s/%s, want %s", i, q.Subject, q.PartName, want)
		}
	}
	// Part score 0 keeps the bank's per-question score.
	if d.Questions[0].Score != 0 || d.Questions[2].Score != 1 {
		t.Fatalf("scores changed: %v %v", d.Questions[0].Score, d.Questions[2].Score)
	}
}

func TestAssembleInventoryError(t *testing.T) {
	bank := seedBank(t)
	_, err := New(bank).Assemble(context.Background(), mathConfig(6))
	var inv *InventoryError
	if !errors.As(err, &inv) {
		t.Fatalf("want InventoryError, got %v", err)
	}
	if inv.PartID != "p1" || inv.Requested != 6 || inv.Available != 5 || inv.Shortfall() != 1 {
		t.Fatalf("got %+v", inv)
	}
}

func TestAssembleNegativeCount(t *testing.T) {
	_, err := New(seedBank(t)).Assemble(context.Background(), mathConfig(-1))
	var cv *ConfigValidationError
	if !errors.As(err, &cv) {
		t.Fatalf("want ConfigValidationError, got %v", err)
	}
	if len(cv.Problems) != 1 || cv.Problems[0].Field != "count" || cv.Problems[0].PartID != "p1" {
		t.Fatalf("problems = %+v", cv.Problems)
	}
}

type failingRepo struct {
	err   error
	calls atomic.Int32
}

func (f *failingRepo) CountMatching(context.Context, exam.FilterSet) (int, error) {
	f.calls.Add(1)
	return 0, f.err
}
func (f *failingRepo) FindMatching(context.Context, exam.FilterSet, exam.ListOpts) ([]exam.Question, error) {
	return nil, f.err
}
func (f *failingRepo) GetConfig(context.Context, string) (exam.QuizConfig, error) {
	return exam.QuizConfig{}, f.err
}

func TestAssembleRepositoryFailure(t *testing.T) {
	repo := &failingRepo{err: errors.New("connection refused")}
	_, err := New(repo).Assemble(context.Background(), mathConfig(1))
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("want ErrGenerationFailed, got %v", err)
	}
	_, err = New(repo).AssembleByID(context.Background(), "cfg")
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("AssembleByID: want ErrGenerationFailed, got %v", err)
	}
}

func TestAssembleByIDNotFound(t *testing.T) {
	_, err := New(seedBank(t)).AssembleByID(context.Background(), "missing")
	if !errors.Is(err, exam.ErrNotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestPartAvailability(t *testing.T) {
	bank := seedBank(t)
	cfg := exam.QuizConfig{Parts: []exam.QuizPartSpec{
		{Filter: exam.FilterSet{Subjects: []string{"Math"}}},
		{Filter: exam.FilterSet{Subjects: []string{"Science"}}},
		{Filter: exam.FilterSet{}},
		{Filter: exam.FilterSet{Subjects: []string{"Math"}, Difficulties: []string{"hard"}}},
		{Filter: exam.FilterSet{QuestionTypes: []exam.Archetype{exam.ShortAnswer, exam.MultipleChoice}}},
	}}
	got, err := New(bank).PartAvailability(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	want := []int{5, 3, 8, 0, 8}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
