package exam

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu        sync.RWMutex
	questions map[string]Question
	configs   map[string]QuizConfig
	results   map[string]QuizResult
	order     []string // result ids in save order
}

// NewInMemoryStore returns a Store kept entirely in process memory.
func NewInMemoryStore() Store {
	return &memoryStore{
		questions: map[string]Question{},
		configs:   map[string]QuizConfig{},
		results:   map[string]QuizResult{},
	}
}

func (m *memoryStore) CountMatching(_ context.Context, f FilterSet) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, q := range m.questions {
		if f.Matches(q) {
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) FindMatching(_ context.Context, f FilterSet, opts ListOpts) ([]Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Question, 0)
	for _, q := range m.questions {
		if f.Matches(q) {
			out = append(out, cloneQuestion(q))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, opts), nil
}

func (m *memoryStore) GetQuestion(_ context.Context, id string) (Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.questions[id]
	if !ok {
		return Question{}, fmt.Errorf("question %q: %w", id, ErrNotFound)
	}
	return cloneQuestion(q), nil
}

func (m *memoryStore) PutQuestion(_ context.Context, q Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().Unix()
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if prev, ok := m.questions[q.ID]; ok {
		q.CreatedAt = prev.CreatedAt
	} else if q.CreatedAt == 0 {
		q.CreatedAt = now
	}
	q.UpdatedAt = now
	q.PartName = ""
	m.questions[q.ID] = cloneQuestion(q)
	return nil
}

func (m *memoryStore) SetQuestionDisabled(_ context.Context, id string, disabled bool) error {
	return m.mutateQuestion(id, func(q *Question) { q.Disabled = disabled })
}

func (m *memoryStore) SoftDeleteQuestion(_ context.Context, id string) error {
	return m.mutateQuestion(id, func(q *Question) { q.Deleted = true })
}

func (m *memoryStore) RestoreQuestion(_ context.Context, id string) error {
	return m.mutateQuestion(id, func(q *Question) { q.Deleted = false })
}

func (m *memoryStore) mutateQuestion(id string, fn func(q *Question)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[id]
	if !ok {
		return fmt.Errorf("question %q: %w", id, ErrNotFound)
	}
	fn(&q)
	q.UpdatedAt = time.Now().Unix()
	m.questions[id] = q
	return nil
}

func (m *memoryStore) HardDeleteQuestion(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.questions[id]; !ok {
		return fmt.Errorf("question %q: %w", id, ErrNotFound)
	}
	for _, r := range m.results {
		for _, a := range r.Attempts {
			if a.QuestionID == id {
				return ErrQuestionReferenced
			}
		}
	}
	delete(m.questions, id)
	return nil
}

func (m *memoryStore) PutConfig(_ context.Context, c QuizConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().Unix()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if prev, ok := m.configs[c.ID]; ok {
		c.CreatedAt = prev.CreatedAt
	} else if c.CreatedAt == 0 {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	m.configs[c.ID] = c.Clone()
	return nil
}

func (m *memoryStore) GetConfig(_ context.Context, id string) (QuizConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.configs[id]
	if !ok || c.Deleted {
		return QuizConfig{}, fmt.Errorf("config %q: %w", id, ErrNotFound)
	}
	return c.Clone(), nil
}

func (m *memoryStore) ListConfigs(_ context.Context, publishedOnly bool) ([]QuizConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]QuizConfig, 0, len(m.configs))
	for _, c := range m.configs {
		if c.Deleted || (publishedOnly && !c.IsPublished) {
			continue
		}
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) SoftDeleteConfig(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.configs[id]
	if !ok || c.Deleted {
		return fmt.Errorf("config %q: %w", id, ErrNotFound)
	}
	c.Deleted = true
	c.UpdatedAt = time.Now().Unix()
	m.configs[id] = c
	return nil
}

func (m *memoryStore) SaveResult(_ context.Context, r QuizResult) (string, error) {
	cp, err := cloneResult(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if _, exists := m.results[cp.ID]; !exists {
		m.order = append(m.order, cp.ID)
	}
	m.results[cp.ID] = cp
	return cp.ID, nil
}

func (m *memoryStore) GetResult(_ context.Context, id string) (QuizResult, error) {
	m.mu.RLock()
	r, ok := m.results[id]
	m.mu.RUnlock()
	if !ok {
		return QuizResult{}, fmt.Errorf("result %q: %w", id, ErrNotFound)
	}
	return cloneResult(r)
}

func (m *memoryStore) ListResults(_ context.Context, opts ResultListOpts) ([]QuizResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]QuizResult, 0)
	// newest first
	for i := len(m.order) - 1; i >= 0; i-- {
		r := m.results[m.order[i]]
		if opts.ConfigID != "" && r.ConfigID != opts.ConfigID {
			continue
		}
		if opts.UserID != "" && r.UserID != opts.UserID {
			continue
		}
		if opts.Status != "" && r.Status != opts.Status {
			continue
		}
		cp, err := cloneResult(r)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return paginate(out, ListOpts{Limit: opts.Limit, Offset: opts.Offset}), nil
}

func (m *memoryStore) UpdateResultScoring(_ context.Context, id string, attempts []QuizAttempt, score float64, isPassed bool, status ResultStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[id]
	if !ok {
		return fmt.Errorf("result %q: %w", id, ErrNotFound)
	}
	r.Attempts = make([]QuizAttempt, len(attempts))
	copy(r.Attempts, attempts)
	r.Score = score
	r.IsPassed = isPassed
	r.Status = status
	m.results[id] = r
	return nil
}

func paginate[T any](in []T, opts ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(in) {
			return in[:0]
		}
		in = in[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(in) {
		in = in[:opts.Limit]
	}
	return in
}

func cloneQuestion(q Question) Question {
	q.Images = cloneSlice(q.Images)
	q.Options = cloneSlice(q.Options)
	q.AnswerKey = cloneSlice(q.AnswerKey)
	return q
}

// cloneResult deep-copies through JSON; results are nested several levels.
func cloneResult(r QuizResult) (QuizResult, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return QuizResult{}, err
	}
	var out QuizResult
	if err := json.Unmarshal(b, &out); err != nil {
		return QuizResult{}, err
	}
	return out, nil
}
