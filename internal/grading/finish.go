package grading

import (
	"strings"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/exam"
)

type FinishInput struct {
	Config    exam.QuizConfig
	Questions []exam.Question        // assembled order
	Answers   map[string]exam.Answer // question id -> answer; missing = unanswered
	UserID    string
	Username  string
	StartedAt time.Time
	Now       time.Time
}

// Finish grades every assembled question and builds the result. Each attempt
// keeps a copy of what the taker saw so later bank edits do not change review.
func Finish(in FinishInput) (exam.QuizResult, error) {
	res := exam.QuizResult{
		UserID:         in.UserID,
		Username:       in.Username,
		ConfigID:       in.Config.ID,
		ConfigName:     in.Config.Name,
		ConfigSnapshot: in.Config.Clone(),
		Attempts:       make([]exam.QuizAttempt, 0, len(in.Questions)),
		PassingScore:   in.Config.PassingScore,
		Status:         exam.StatusCompleted,
		CreatedAt:      in.Now.Unix(),
	}
	if !in.StartedAt.IsZero() && in.Now.After(in.StartedAt) {
		res.DurationSec = int64(in.Now.Sub(in.StartedAt).Seconds())
	}

	total, maxTotal := 0.0, 0.0
	for _, q := range in.Questions {
		ans := in.Answers[q.ID]
		out, err := Grade(q, ans)
		if err != nil {
			return exam.QuizResult{}, err
		}
		a := exam.QuizAttempt{
			QuestionID:        q.ID,
			PartName:          q.PartName,
			QuestionType:      q.Type,
			QuestionText:      q.BodyHTML,
			CorrectAnswerText: CorrectAnswerText(q),
			Explanation:       q.Explanation,
			Images:            append([]string(nil), q.Images...),
			IsCorrect:         out.IsCorrect,
			Score:             out.Score,
			MaxScore:          out.MaxScore,
			ManualGrading:     out.NeedsManual,
		}
		if ans != nil {
			a.UserAnswer = exam.EncodeAnswer(ans)
		}
		if out.NeedsManual {
			res.Status = exam.StatusPendingGrading
		}
		total += out.Score
		maxTotal += out.MaxScore
		res.Attempts = append(res.Attempts, a)
	}
	res.Score = exam.Round1(total)
	res.MaxScore = exam.Round1(maxTotal)
	res.IsPassed = passed(res)
	return res, nil
}

// CorrectAnswerText renders the answer key for review screens.
func CorrectAnswerText(q exam.Question) string {
	switch q.Type {
	case exam.MultipleSelect, exam.FillInTheBlank:
		return strings.Join(q.AnswerKey, ", ")
	default:
		if len(q.AnswerKey) == 0 {
			return ""
		}
		return q.AnswerKey[0]
	}
}

// passed never reports a pass while grading is pending.
func passed(r exam.QuizResult) bool {
	return r.Status == exam.StatusCompleted && r.Score >= r.PassingScore
}
