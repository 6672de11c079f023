package assembly

import (
	"context"
	"fmt"
	"strings"

	"github.com/mind-engage/mindengage-quiz/internal/exam"
)

// Problem is one reason a config cannot be saved. PartID is empty for
// config-level problems.
type Problem struct {
	PartID    string  `json:"part_id,omitempty"`
	PartName  string  `json:"part_name,omitempty"`
	Field     string  `json:"field"`
	Message   string  `json:"message"`
	Shortfall float64 `json:"shortfall,omitempty"`
}

type ConfigValidationError struct {
	Problems []Problem
}

func (e *ConfigValidationError) Error() string {
	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		if p.PartName != "" {
			msgs = append(msgs, fmt.Sprintf("part %q: %s", p.PartName, p.Message))
		} else {
			msgs = append(msgs, p.Message)
		}
	}
	return "invalid quiz config: " + strings.Join(msgs, "; ")
}

// Validate runs the save-time checks: structure, passing score against the
// derived maximum, and every part's count against live inventory. All
// problems are reported together. Repository failures are returned as-is.
func (a *Assembler) Validate(ctx context.Context, cfg exam.QuizConfig) error {
	var probs []Problem
	if strings.TrimSpace(cfg.Name) == "" {
		probs = append(probs, Problem{Field: "name", Message: "name is required"})
	}
	switch cfg.Mode {
	case exam.ModePractice, exam.ModeExam:
	default:
		probs = append(probs, Problem{Field: "quiz_mode", Message: fmt.Sprintf("unknown quiz mode %q", cfg.Mode)})
	}
	if len(cfg.Parts) == 0 {
		probs = append(probs, Problem{Field: "parts", Message: "at least one part is required"})
	}
	if cfg.PassingScore < 0 {
		probs = append(probs, Problem{Field: "passing_score", Message: "passing score must not be negative"})
	}
	if maxScore := cfg.MaxScore(); cfg.PassingScore > maxScore {
		probs = append(probs, Problem{
			Field:     "passing_score",
			Message:   fmt.Sprintf("passing score %.1f exceeds maximum %.1f", cfg.PassingScore, maxScore),
			Shortfall: cfg.PassingScore - maxScore,
		})
	}
	for _, p := range cfg.Parts {
		if strings.TrimSpace(p.Name) == "" {
			probs = append(probs, Problem{PartID: p.ID, Field: "name", Message: "part name is required"})
		}
		if p.Count <= 0 {
			probs = append(probs, Problem{PartID: p.ID, PartName: p.Name, Field: "count", Message: "count must be positive"})
		}
		if p.Score < 0 {
			probs = append(probs, Problem{PartID: p.ID, PartName: p.Name, Field: "score", Message: "score must not be negative"})
		}
		for _, t := range p.Filter.QuestionTypes {
			if !t.Valid() {
				probs = append(probs, Problem{PartID: p.ID, PartName: p.Name, Field: "filter.question_types", Message: fmt.Sprintf("unknown question type %q", t)})
			}
		}
	}

	if len(cfg.Parts) > 0 {
		avail, err := a.PartAvailability(ctx, cfg)
		if err != nil {
			return err
		}
		for i, p := range cfg.Parts {
			if p.Count > avail[i] {
				probs = append(probs, Problem{
					PartID:    p.ID,
					PartName:  p.Name,
					Field:     "count",
					Message:   fmt.Sprintf("requests %d questions but only %d are available", p.Count, avail[i]),
					Shortfall: float64(p.Count - avail[i]),
				})
			}
		}
	}

	if len(probs) > 0 {
		return &ConfigValidationError{Problems: probs}
	}
	return nil
}
