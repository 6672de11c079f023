package exam

import "math"

// Archetype is the kind of a question. The set is closed; see Archetypes.
type Archetype string

const (
	MultipleChoice Archetype = "MULTIPLE_CHOICE"
	MultipleSelect Archetype = "MULTIPLE_SELECT"
	TrueFalse      Archetype = "TRUE_FALSE"
	FillInTheBlank Archetype = "FILL_IN_THE_BLANK"
	ShortAnswer    Archetype = "SHORT_ANSWER"
)

// Archetypes returns every supported question archetype.
func Archetypes() []Archetype {
	return []Archetype{MultipleChoice, MultipleSelect, TrueFalse, FillInTheBlank, ShortAnswer}
}

func (a Archetype) Valid() bool {
	for _, t := range Archetypes() {
		if t == a {
			return true
		}
	}
	return false
}

type Question struct {
	ID       string    `json:"id"`
	Type     Archetype `json:"type"`
	BodyHTML string    `json:"body_html"`
	Images   []string  `json:"images,omitempty"`
	Options  []string  `json:"options,omitempty"`
	// AnswerKey is the decoded canonical answer: the option text for single
	// choice and true/false, the sorted option texts for multi-select, one
	// entry per blank for fill-in-the-blank, and the model text for short answer.
	AnswerKey []string `json:"answer_key,omitempty"`

	Subject    string `json:"subject,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
	GradeLevel string `json:"grade_level,omitempty"`
	Category   string `json:"category,omitempty"`

	Score        float64 `json:"score"`
	NeedsGrading bool    `json:"needs_grading,omitempty"` // SHORT_ANSWER only
	Explanation  string  `json:"explanation,omitempty"`

	Deleted  bool `json:"deleted,omitempty"`
	Disabled bool `json:"disabled,omitempty"`

	// PartName is set on drawn questions only.
	PartName string `json:"part_name,omitempty"`

	CreatedAt int64 `json:"created_at,omitempty"`
	UpdatedAt int64 `json:"updated_at,omitempty"`
}

// RequiresManualGrading reports whether answers to q are never auto-graded.
func (q Question) RequiresManualGrading() bool {
	return q.Type == ShortAnswer && q.NeedsGrading
}

// MaxScore is the question's point value, defaulting to 1.
func (q Question) MaxScore() float64 {
	if q.Score > 0 {
		return q.Score
	}
	return 1
}

type QuizMode string

const (
	ModePractice QuizMode = "practice" // reveals answers and explanations after scoring
	ModeExam     QuizMode = "exam"     // reveals the score only
)

type QuizPartSpec struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Filter FilterSet `json:"filter"`
	Count  int       `json:"count"`
	Score  float64   `json:"score"` // points per question in this part
}

type QuizConfig struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Parts        []QuizPartSpec `json:"parts"`
	PassingScore float64        `json:"passing_score"`
	Mode         QuizMode       `json:"quiz_mode"`
	IsPublished  bool           `json:"is_published"`
	Deleted      bool           `json:"deleted,omitempty"`

	CreatedAt int64 `json:"created_at,omitempty"`
	UpdatedAt int64 `json:"updated_at,omitempty"`
}

func (c QuizConfig) TotalQuestions() int {
	n := 0
	for _, p := range c.Parts {
		n += p.Count
	}
	return n
}

// MaxScore is Σ count×score over all parts.
func (c QuizConfig) MaxScore() float64 {
	total := 0.0
	for _, p := range c.Parts {
		total += float64(p.Count) * p.Score
	}
	return total
}

// Clone returns a deep copy suitable for snapshotting into a result.
func (c QuizConfig) Clone() QuizConfig {
	out := c
	out.Parts = make([]QuizPartSpec, len(c.Parts))
	for i, p := range c.Parts {
		p.Filter = p.Filter.Clone()
		out.Parts[i] = p
	}
	return out
}

type ResultStatus string

const (
	StatusCompleted      ResultStatus = "completed"
	StatusPendingGrading ResultStatus = "pending_grading"
)

// QuizAttempt is one graded question inside a result. The question fields are
// copied at grading time and are not refreshed when the bank changes.
type QuizAttempt struct {
	QuestionID        string    `json:"question_id"`
	PartName          string    `json:"part_name,omitempty"`
	QuestionType      Archetype `json:"question_type"`
	QuestionText      string    `json:"question_text"`
	CorrectAnswerText string    `json:"correct_answer_text"`
	Explanation       string    `json:"explanation,omitempty"`
	Images            []string  `json:"images,omitempty"`

	UserAnswer    string  `json:"user_answer"`
	IsCorrect     bool    `json:"is_correct"`
	Score         float64 `json:"score"`
	MaxScore      float64 `json:"max_score"`
	ManualGrading bool    `json:"manual_grading"`

	Graded   bool   `json:"graded,omitempty"`
	GradedBy string `json:"graded_by,omitempty"`
	GradedAt int64  `json:"graded_at,omitempty"`
	Comment  string `json:"comment,omitempty"`
}

type QuizResult struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	Username       string        `json:"username"`
	ConfigID       string        `json:"config_id"`
	ConfigName     string        `json:"config_name"`
	ConfigSnapshot QuizConfig    `json:"config_snapshot"`
	Attempts       []QuizAttempt `json:"attempts"`
	Score          float64       `json:"score"`
	MaxScore       float64       `json:"max_score"`
	PassingScore   float64       `json:"passing_score"`
	IsPassed       bool          `json:"is_passed"`
	Status         ResultStatus  `json:"status"`
	DurationSec    int64         `json:"duration_sec"`
	CreatedAt      int64         `json:"created_at"`
}

type PartScore struct {
	PartID   string  `json:"part_id"`
	PartName string  `json:"part_name"`
	Score    float64 `json:"score"`
	MaxScore float64 `json:"max_score"`
}

// PartScores slices the attempts by the snapshot's cumulative part counts.
// Parts that run past the end of the attempt list are reported as empty.
func (r QuizResult) PartScores() []PartScore {
	out := make([]PartScore, 0, len(r.ConfigSnapshot.Parts))
	start := 0
	for _, p := range r.ConfigSnapshot.Parts {
		ps := PartScore{PartID: p.ID, PartName: p.Name}
		end := start + p.Count
		for i := start; i < end && i < len(r.Attempts); i++ {
			ps.Score += r.Attempts[i].Score
			ps.MaxScore += r.Attempts[i].MaxScore
		}
		ps.Score = Round1(ps.Score)
		out = append(out, ps)
		start = end
	}
	return out
}

// Redacted strips answers and explanations, for exam-mode review.
func (r QuizResult) Redacted() QuizResult {
	out := r
	out.Attempts = make([]QuizAttempt, len(r.Attempts))
	for i, a := range r.Attempts {
		a.CorrectAnswerText = ""
		a.Explanation = ""
		out.Attempts[i] = a
	}
	return out
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
