package results

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-quiz/internal/events"
	"github.com/mind-engage/mindengage-quiz/internal/exam"
	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/metrics"
)

var (
	// ErrGradingFailed means the repository could not be reached while
	// scoring or saving. Nothing was persisted and the submission can be retried.
	ErrGradingFailed = errors.New("grading failed")
	// ErrInvalidSubmission covers submissions that do not match their config.
	ErrInvalidSubmission = errors.New("invalid submission")
)

// Repository is the subset of exam.Store the service uses.
type Repository interface {
	GetConfig(ctx context.Context, id string) (exam.QuizConfig, error)
	GetQuestion(ctx context.Context, id string) (exam.Question, error)
	SaveResult(ctx context.Context, r exam.QuizResult) (string, error)
	GetResult(ctx context.Context, id string) (exam.QuizResult, error)
	UpdateResultScoring(ctx context.Context, id string, attempts []exam.QuizAttempt, score float64, isPassed bool, status exam.ResultStatus) error
}

type Service struct {
	repo    Repository
	pub     events.Publisher
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

type Option func(*Service)

func WithPublisher(p events.Publisher) Option { return func(s *Service) { s.pub = p } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }
func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, pub: events.Nop{}, log: zap.NewNop(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// QuestionRef names a drawn question in draw order.
type QuestionRef struct {
	ID       string `json:"id"`
	PartName string `json:"part_name,omitempty"`
}

// SubmitRequest is a submission from an untrusted client: question bodies and
// answer keys are reloaded from the repository, answers arrive wire-encoded.
type SubmitRequest struct {
	ConfigID  string            `json:"config_id"`
	UserID    string            `json:"-"`
	Username  string            `json:"-"`
	Questions []QuestionRef     `json:"questions"`
	Answers   map[string]string `json:"answers"`
	StartedAt time.Time         `json:"started_at"`
}

// Submit grades a submission against the stored config and questions and
// saves the result.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (exam.QuizResult, error) {
	cfg, err := s.repo.GetConfig(ctx, req.ConfigID)
	if err != nil {
		return exam.QuizResult{}, s.repoErr("load config", err)
	}
	if len(req.Questions) != cfg.TotalQuestions() {
		return exam.QuizResult{}, fmt.Errorf("%w: %d questions submitted, config %s has %d",
			ErrInvalidSubmission, len(req.Questions), cfg.ID, cfg.TotalQuestions())
	}

	qs := make([]exam.Question, 0, len(req.Questions))
	answers := make(map[string]exam.Answer, len(req.Answers))
	seen := make(map[string]bool, len(req.Questions))
	parts := partIndex(cfg)
	for i, ref := range req.Questions {
		if seen[ref.ID] {
			return exam.QuizResult{}, fmt.Errorf("%w: question %s submitted twice", ErrInvalidSubmission, ref.ID)
		}
		seen[ref.ID] = true
		q, err := s.repo.GetQuestion(ctx, ref.ID)
		if err != nil {
			if errors.Is(err, exam.ErrNotFound) {
				return exam.QuizResult{}, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
			}
			return exam.QuizResult{}, s.repoErr("load question", err)
		}
		p := parts[i]
		if !p.Filter.Matches(q) {
			return exam.QuizResult{}, fmt.Errorf("%w: question %s does not belong to part %q", ErrInvalidSubmission, q.ID, p.Name)
		}
		q.PartName = p.Name
		if p.Score > 0 {
			q.Score = p.Score
		}
		if raw, ok := req.Answers[q.ID]; ok {
			a, err := exam.DecodeAnswer(q.Type, raw)
			if err != nil {
				return exam.QuizResult{}, fmt.Errorf("%w: question %s: %v", ErrInvalidSubmission, q.ID, err)
			}
			answers[q.ID] = a
		}
		qs = append(qs, q)
	}

	return s.SubmitDraw(ctx, DrawSubmission{
		Config:    cfg,
		Questions: qs,
		Answers:   answers,
		UserID:    req.UserID,
		Username:  req.Username,
		StartedAt: req.StartedAt,
	})
}

// DrawSubmission is an in-process submission of a draw the caller already
// holds, such as a restored session.
type DrawSubmission struct {
	Config    exam.QuizConfig
	Questions []exam.Question
	Answers   map[string]exam.Answer
	UserID    string
	Username  string
	StartedAt time.Time
}

func (s *Service) SubmitDraw(ctx context.Context, d DrawSubmission) (exam.QuizResult, error) {
	res, err := grading.Finish(grading.FinishInput{
		Config:    d.Config,
		Questions: d.Questions,
		Answers:   d.Answers,
		UserID:    d.UserID,
		Username:  d.Username,
		StartedAt: d.StartedAt,
		Now:       s.now(),
	})
	if err != nil {
		return exam.QuizResult{}, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}
	id, err := s.repo.SaveResult(ctx, res)
	if err != nil {
		return exam.QuizResult{}, s.repoErr("save result", err)
	}
	res.ID = id

	s.metrics.ResultSaved(string(res.Status))
	s.log.Info("result saved",
		zap.String("result_id", id),
		zap.String("config_id", res.ConfigID),
		zap.String("user_id", res.UserID),
		zap.Float64("score", res.Score),
		zap.String("status", string(res.Status)))
	s.publish(ctx, events.New(events.ResultSubmitted, id, summary(res)))
	return res, nil
}

// PendingItems lists the attempts of a result that need a grader.
func (s *Service) PendingItems(ctx context.Context, resultID string) ([]grading.ManualItem, error) {
	r, err := s.repo.GetResult(ctx, resultID)
	if err != nil {
		return nil, err
	}
	return grading.ManualItems(r), nil
}

// ApplyManualGrades validates every override, applies them, optionally
// finalizes, and persists once. A rejected override leaves the stored result
// unchanged.
func (s *Service) ApplyManualGrades(ctx context.Context, resultID string, overrides []grading.Override, gradedBy string, finalize bool) (exam.QuizResult, error) {
	r, err := s.repo.GetResult(ctx, resultID)
	if err != nil {
		return exam.QuizResult{}, err
	}
	if r.Status != exam.StatusPendingGrading {
		return exam.QuizResult{}, grading.ErrResultNotPending
	}

	work := r
	work.Attempts = append([]exam.QuizAttempt(nil), r.Attempts...)
	now := s.now()
	for _, o := range overrides {
		if err := grading.ApplyOverride(&work, o, gradedBy, now); err != nil {
			return exam.QuizResult{}, err
		}
	}
	grading.Recompute(&work)
	if finalize {
		if err := grading.Finalize(&work); err != nil {
			return exam.QuizResult{}, err
		}
	}

	if err := s.repo.UpdateResultScoring(ctx, resultID, work.Attempts, work.Score, work.IsPassed, work.Status); err != nil {
		return exam.QuizResult{}, s.repoErr("update result", err)
	}

	s.metrics.OverridesApplied(len(overrides))
	s.log.Info("manual grades applied",
		zap.String("result_id", work.ID),
		zap.String("graded_by", gradedBy),
		zap.Int("overrides", len(overrides)),
		zap.Float64("score", work.Score),
		zap.String("status", string(work.Status)))
	if len(overrides) > 0 {
		s.publish(ctx, events.New(events.ResultGraded, work.ID, summary(work)))
	}
	if work.Status == exam.StatusCompleted {
		s.publish(ctx, events.New(events.ResultFinalized, work.ID, summary(work)))
	}
	return work, nil
}

// Finalize completes grading of a result whose manual attempts are all scored.
func (s *Service) Finalize(ctx context.Context, resultID, by string) (exam.QuizResult, error) {
	return s.ApplyManualGrades(ctx, resultID, nil, by, true)
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.pub.Publish(ctx, e); err != nil {
		s.log.Warn("publish event", zap.String("type", e.Type), zap.String("key", e.Key), zap.Error(err))
	}
}

// repoErr keeps not-found distinguishable and marks everything else as a
// retryable grading failure.
func (s *Service) repoErr(op string, err error) error {
	if errors.Is(err, exam.ErrNotFound) {
		return err
	}
	s.log.Error(op, zap.Error(err))
	return fmt.Errorf("%w: %s: %v", ErrGradingFailed, op, err)
}

// partIndex maps each draw position to its part.
func partIndex(cfg exam.QuizConfig) []exam.QuizPartSpec {
	out := make([]exam.QuizPartSpec, 0, cfg.TotalQuestions())
	for _, p := range cfg.Parts {
		for i := 0; i < p.Count; i++ {
			out = append(out, p)
		}
	}
	return out
}

type resultSummary struct {
	ResultID string            `json:"result_id"`
	ConfigID string            `json:"config_id"`
	UserID   string            `json:"user_id"`
	Score    float64           `json:"score"`
	MaxScore float64           `json:"max_score"`
	IsPassed bool              `json:"is_passed"`
	Status   exam.ResultStatus `json:"status"`
}

func summary(r exam.QuizResult) resultSummary {
	return resultSummary{
		ResultID: r.ID,
		ConfigID: r.ConfigID,
		UserID:   r.UserID,
		Score:    r.Score,
		MaxScore: r.MaxScore,
		IsPassed: r.IsPassed,
		Status:   r.Status,
	}
}
