package session

import (
	"github.com/mind-engage/mindengage-quiz/internal/exam"
)

// Key is the recoverable-store key for a quiz config's in-progress session.
func Key(configID string) string { return "quiz_autosave_" + configID }

// Snapshot is everything needed to resume a session without drawing again.
// Answers are kept in their wire encoding.
type Snapshot struct {
	Questions    []exam.Question   `json:"questions"`
	Answers      map[string]string `json:"answers"`
	ConfigName   string            `json:"config_name"`
	PassingScore float64           `json:"passing_score"`
	Timestamp    int64             `json:"timestamp"`
	StartTime    int64             `json:"start_time"`
	// Config is the config as drawn. Older snapshots may not carry it.
	Config *exam.QuizConfig `json:"config_snapshot,omitempty"`
}

// Valid reports whether the snapshot can be resumed.
func (s Snapshot) Valid() bool { return len(s.Questions) > 0 }

// config returns the drawn config, rebuilding parts from the questions' part
// names when the snapshot predates config snapshots.
func (s Snapshot) config(configID string) exam.QuizConfig {
	if s.Config != nil {
		return s.Config.Clone()
	}
	cfg := exam.QuizConfig{ID: configID, Name: s.ConfigName, PassingScore: s.PassingScore}
	for _, q := range s.Questions {
		n := len(cfg.Parts)
		if n > 0 && cfg.Parts[n-1].Name == q.PartName {
			cfg.Parts[n-1].Count++
			continue
		}
		cfg.Parts = append(cfg.Parts, exam.QuizPartSpec{Name: q.PartName, Count: 1})
	}
	return cfg
}
