package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-quiz/internal/assembly"
	"github.com/mind-engage/mindengage-quiz/internal/exam"
	"github.com/mind-engage/mindengage-quiz/internal/results"
)

type State string

const (
	StateLoading    State = "loading"
	StateActive     State = "active"
	StateSubmitting State = "submitting"
	StateCompleted  State = "completed"
	StateAbandoned  State = "abandoned"
)

var (
	ErrNotActive       = errors.New("session is not active")
	ErrUnknownQuestion = errors.New("question is not part of this session")
	ErrWrongType       = errors.New("operation does not apply to this question type")
	ErrClosed          = errors.New("session is closed")
)

const DefaultAutosaveDelay = time.Second

type Assembler interface {
	AssembleByID(ctx context.Context, configID string) (assembly.Draw, error)
}

type Submitter interface {
	SubmitDraw(ctx context.Context, d results.DrawSubmission) (exam.QuizResult, error)
}

// Manager runs one taker's session for one quiz config. Answer changes are
// written to the Store after DefaultAutosaveDelay of inactivity.
type Manager struct {
	configID string
	userID   string
	username string
	asm      Assembler
	sub      Submitter
	store    Store
	delay    time.Duration
	now      func() time.Time
	log      *zap.Logger

	mu        sync.Mutex
	state     State
	questions []exam.Question
	byID      map[string]int
	answers   map[string]exam.Answer
	snap      Snapshot // questions and metadata; answers are encoded on save
	timer     *time.Timer
	closed    bool
	inflight  sync.WaitGroup

	saveMu sync.Mutex // orders snapshot and write; taken before mu
}

type Option func(*Manager)

func WithAutosaveDelay(d time.Duration) Option { return func(m *Manager) { m.delay = d } }
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }
func WithLogger(l *zap.Logger) Option { return func(m *Manager) { m.log = l } }
func WithUser(id, name string) Option {
	return func(m *Manager) { m.userID, m.username = id, name }
}

func NewManager(configID string, asm Assembler, sub Submitter, store Store, opts ...Option) *Manager {
	m := &Manager{
		configID: configID,
		asm:      asm,
		sub:      sub,
		store:    store,
		delay:    DefaultAutosaveDelay,
		now:      time.Now,
		log:      zap.NewNop(),
		state:    StateLoading,
		answers:  map[string]exam.Answer{},
	}
	for _, o := range opts {
		o(m)
	}
	m.log = m.log.With(zap.String("config_id", configID), zap.String("user_id", m.userID))
	return m
}

func (m *Manager) key() string { return Key(m.configID) }

// Start resumes a stored session verbatim or draws a fresh quiz. It returns
// whether an earlier session was resumed.
func (m *Manager) Start(ctx context.Context) (bool, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false, ErrClosed
	}
	if m.state != StateLoading {
		m.mu.Unlock()
		return false, fmt.Errorf("start from %s: %w", m.state, ErrNotActive)
	}
	m.mu.Unlock()

	snap, ok, err := m.store.Load(ctx, m.key())
	if err != nil {
		// An unreadable snapshot is treated as absent.
		m.log.Warn("load autosave", zap.Error(err))
		ok = false
	}
	resumed := ok && snap.Valid()
	if !resumed {
		d, err := m.asm.AssembleByID(ctx, m.configID)
		if err != nil {
			return false, err
		}
		now := m.now()
		cfg := d.ConfigSnapshot
		snap = Snapshot{
			Questions:    d.Questions,
			Answers:      map[string]string{},
			ConfigName:   d.ConfigName,
			PassingScore: d.PassingScore,
			Timestamp:    now.Unix(),
			StartTime:    now.Unix(),
			Config:       &cfg,
		}
	}

	m.mu.Lock()
	m.snap = snap
	m.questions = snap.Questions
	m.byID = make(map[string]int, len(snap.Questions))
	for i, q := range snap.Questions {
		m.byID[q.ID] = i
	}
	for id, raw := range snap.Answers {
		i, ok := m.byID[id]
		if !ok {
			continue
		}
		a, err := exam.DecodeAnswer(snap.Questions[i].Type, raw)
		if err != nil {
			m.log.Warn("drop unreadable saved answer", zap.String("question_id", id), zap.Error(err))
			continue
		}
		m.answers[id] = a
	}
	m.state = StateActive
	m.mu.Unlock()

	if resumed {
		m.log.Info("session resumed", zap.Int("questions", len(snap.Questions)), zap.Int("answers", len(snap.Answers)))
		return true, nil
	}
	if err := m.Flush(ctx); err != nil {
		m.log.Warn("initial autosave", zap.Error(err))
	}
	m.log.Info("session started", zap.Int("questions", len(snap.Questions)))
	return false, nil
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Questions returns the drawn questions in order.
func (m *Manager) Questions() []exam.Question {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]exam.Question(nil), m.questions...)
}

func (m *Manager) Answer(questionID string) (exam.Answer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.answers[questionID]
	return a, ok
}

// SetAnswer replaces the answer to a question. Multi-select answers are kept
// sorted.
func (m *Manager) SetAnswer(questionID string, a exam.Answer) error {
	return m.mutate(questionID, func(q exam.Question, _ exam.Answer) (exam.Answer, error) {
		if q.Type == exam.MultipleSelect {
			return exam.Multi(exam.Values(a)).Sorted(), nil
		}
		return a, nil
	})
}

// ToggleOption adds or removes one option of a multi-select answer.
func (m *Manager) ToggleOption(questionID, option string) error {
	return m.mutate(questionID, func(q exam.Question, cur exam.Answer) (exam.Answer, error) {
		if q.Type != exam.MultipleSelect {
			return nil, ErrWrongType
		}
		vals := exam.Values(cur)
		out := make(exam.Multi, 0, len(vals)+1)
		found := false
		for _, v := range vals {
			if v == option {
				found = true
				continue
			}
			out = append(out, v)
		}
		if !found {
			out = append(out, option)
		}
		sort.Strings(out)
		return out, nil
	})
}

// SetBlank sets one blank of a fill-in-the-blank answer by position.
func (m *Manager) SetBlank(questionID string, index int, value string) error {
	return m.mutate(questionID, func(q exam.Question, cur exam.Answer) (exam.Answer, error) {
		if q.Type != exam.FillInTheBlank {
			return nil, ErrWrongType
		}
		blanks := len(q.AnswerKey)
		if index < 0 || (blanks > 0 && index >= blanks) {
			return nil, fmt.Errorf("blank %d out of range", index)
		}
		if blanks == 0 {
			blanks = index + 1
		}
		vals := exam.Values(cur)
		out := make(exam.Multi, max(blanks, len(vals)))
		copy(out, vals)
		out[index] = value
		return out, nil
	})
}

func (m *Manager) mutate(questionID string, fn func(q exam.Question, cur exam.Answer) (exam.Answer, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateActive || m.closed {
		return ErrNotActive
	}
	i, ok := m.byID[questionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	a, err := fn(m.questions[i], m.answers[questionID])
	if err != nil {
		return err
	}
	m.answers[questionID] = a
	m.scheduleLocked()
	return nil
}

// scheduleLocked (re)arms the debounced autosave.
func (m *Manager) scheduleLocked() {
	if m.timer == nil {
		m.timer = time.AfterFunc(m.delay, m.autosave)
		return
	}
	m.timer.Reset(m.delay)
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
	}
}

func (m *Manager) autosave() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.save(ctx, false); err != nil {
		m.log.Warn("autosave", zap.Error(err))
	}
}

// Flush persists the session immediately.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	m.stopTimerLocked()
	m.mu.Unlock()
	return m.save(ctx, true)
}

// save writes the current snapshot. Saves run one at a time so an older
// snapshot never lands after a newer one. Autosaves only run while active;
// explicit saves also run while submitting.
func (m *Manager) save(ctx context.Context, explicit bool) error {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()
	m.mu.Lock()
	ok := m.state == StateActive || (explicit && m.state == StateSubmitting)
	if m.closed || !ok {
		m.mu.Unlock()
		return nil
	}
	snap := m.snapshotLocked()
	m.inflight.Add(1)
	m.mu.Unlock()
	defer m.inflight.Done()
	return m.store.Save(ctx, m.key(), snap)
}

func (m *Manager) snapshotLocked() Snapshot {
	s := m.snap
	s.Questions = m.questions
	s.Answers = make(map[string]string, len(m.answers))
	for id, a := range m.answers {
		s.Answers[id] = exam.EncodeAnswer(a)
	}
	s.Timestamp = m.now().Unix()
	return s
}

// ConfirmLeave reports whether leaving now would lose an in-progress session
// and should be confirmed by the taker.
func (m *Manager) ConfirmLeave() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateActive || m.state == StateSubmitting
}

// Abandon discards the session and its saved snapshot without a result.
func (m *Manager) Abandon(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateActive {
		m.mu.Unlock()
		return ErrNotActive
	}
	m.stopTimerLocked()
	m.state = StateAbandoned
	m.mu.Unlock()

	m.inflight.Wait()
	if err := m.store.Delete(ctx, m.key()); err != nil {
		return fmt.Errorf("clear autosave: %w", err)
	}
	m.log.Info("session abandoned")
	return nil
}

// Submit grades the session. On failure the session returns to active with
// its snapshot saved so the taker can retry.
func (m *Manager) Submit(ctx context.Context) (exam.QuizResult, error) {
	m.mu.Lock()
	if m.state != StateActive || m.closed {
		m.mu.Unlock()
		return exam.QuizResult{}, ErrNotActive
	}
	m.stopTimerLocked()
	m.state = StateSubmitting
	answers := make(map[string]exam.Answer, len(m.answers))
	for id, a := range m.answers {
		answers[id] = a
	}
	sub := results.DrawSubmission{
		Config:    m.snap.config(m.configID),
		Questions: append([]exam.Question(nil), m.questions...),
		Answers:   answers,
		UserID:    m.userID,
		Username:  m.username,
		StartedAt: time.Unix(m.snap.StartTime, 0),
	}
	m.mu.Unlock()

	res, err := m.sub.SubmitDraw(ctx, sub)
	if err != nil {
		if serr := m.save(ctx, true); serr != nil {
			m.log.Warn("save after failed submit", zap.Error(serr))
		}
		m.mu.Lock()
		m.state = StateActive
		m.mu.Unlock()
		m.log.Warn("submit failed", zap.Error(err))
		return exam.QuizResult{}, err
	}

	m.mu.Lock()
	m.state = StateCompleted
	m.mu.Unlock()
	m.inflight.Wait()
	if err := m.store.Delete(ctx, m.key()); err != nil {
		m.log.Warn("clear autosave", zap.Error(err))
	}
	m.log.Info("session submitted", zap.String("result_id", res.ID), zap.String("status", string(res.Status)))
	return res, nil
}

// Close cancels the autosave timer and waits for a running save. Nothing is
// written after Close returns.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.stopTimerLocked()
	m.mu.Unlock()
	m.inflight.Wait()
}
