package qti

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mind-engage/mindengage-quiz/internal/exam"
	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/qti/parser"
)

// Defaults fill the bank's filter dimensions, which QTI items do not carry.
type Defaults struct {
	IDPrefix   string
	Subject    string
	Difficulty string
	GradeLevel string
	Category   string
	// Score overrides the item's MAXSCORE when positive.
	Score float64
}

// MapToQuestions converts parsed items into bank questions. Choice answer
// keys are translated from identifiers to option text. Items that cannot be
// mapped are skipped and reported.
func MapToQuestions(items []parser.ParsedItem, d Defaults, rewriteMedia func(htmlIn string) string) ([]exam.Question, []error) {
	if rewriteMedia == nil {
		rewriteMedia = NoopRewrite
	}
	out := make([]exam.Question, 0, len(items))
	var skipped []error
	for _, it := range items {
		q, err := mapItem(it, d, rewriteMedia)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("item %s: %w", it.ID, err))
			continue
		}
		out = append(out, q)
	}
	return out, skipped
}

func mapItem(it parser.ParsedItem, d Defaults, rewriteMedia func(string) string) (exam.Question, error) {
	if it.ID == "" {
		return exam.Question{}, fmt.Errorf("missing identifier")
	}
	q := exam.Question{
		ID:         d.IDPrefix + it.ID,
		BodyHTML:   rewriteMedia(it.PromptHTML),
		Subject:    d.Subject,
		Difficulty: d.Difficulty,
		GradeLevel: d.GradeLevel,
		Category:   d.Category,
		Score:      it.Points,
	}
	if d.Score > 0 {
		q.Score = d.Score
	}

	switch it.Kind {
	case parser.InteractionChoiceSingle, parser.InteractionChoiceMulti:
		labels := make(map[string]string, len(it.Choices))
		for _, c := range it.Choices {
			label := rewriteMedia(c.Label)
			labels[c.ID] = label
			q.Options = append(q.Options, label)
		}
		if len(q.Options) < 2 {
			return exam.Question{}, fmt.Errorf("choice item has %d options", len(q.Options))
		}
		for _, id := range it.AnswerKey {
			label, ok := labels[id]
			if !ok {
				return exam.Question{}, fmt.Errorf("answer %q is not a choice", id)
			}
			q.AnswerKey = append(q.AnswerKey, label)
		}
		if len(q.AnswerKey) == 0 {
			return exam.Question{}, fmt.Errorf("no correct response")
		}
		switch {
		case it.Kind == parser.InteractionChoiceMulti:
			q.Type = exam.MultipleSelect
			sort.Strings(q.AnswerKey)
		case isTrueFalse(q.Options):
			q.Type = exam.TrueFalse
		default:
			q.Type = exam.MultipleChoice
		}
		if q.Type != exam.MultipleSelect && len(q.AnswerKey) > 1 {
			q.AnswerKey = q.AnswerKey[:1]
		}
	case parser.InteractionTextEntry:
		if len(it.AnswerKey) == 0 {
			return exam.Question{}, fmt.Errorf("text entry without correct responses")
		}
		q.Type = exam.FillInTheBlank
		q.AnswerKey = append([]string(nil), it.AnswerKey...)
	case parser.InteractionExtendedText:
		q.Type = exam.ShortAnswer
		q.NeedsGrading = true
		q.AnswerKey = append([]string(nil), it.AnswerKey...)
	default:
		return exam.Question{}, fmt.Errorf("unsupported interaction %q", it.Kind)
	}
	return q, nil
}

func isTrueFalse(options []string) bool {
	if len(options) != 2 {
		return false
	}
	a := strings.ToLower(strings.TrimSpace(grading.StripHTML(options[0])))
	b := strings.ToLower(strings.TrimSpace(grading.StripHTML(options[1])))
	return (a == "true" && b == "false") || (a == "false" && b == "true")
}

// NoopRewrite leaves markup unchanged.
func NoopRewrite(in string) string { return in }
