package assembly

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/mindengage-quiz/internal/exam"
	"github.com/mind-engage/mindengage-quiz/internal/metrics"
)

// ErrGenerationFailed wraps repository failures during a draw, so callers can
// tell "the bank was unreachable" apart from "the bank is too small".
var ErrGenerationFailed = errors.New("quiz generation failed")

// InventoryError reports a part whose filter cannot supply its count.
type InventoryError struct {
	PartID    string
	PartName  string
	Requested int
	Available int
}

func (e *InventoryError) Shortfall() int { return e.Requested - e.Available }

func (e *InventoryError) Error() string {
	return fmt.Sprintf("part %q needs %d questions but only %d match (short by %d)",
		e.PartName, e.Requested, e.Available, e.Shortfall())
}

// Draw is a concrete quiz: the drawn questions in part order plus what the
// taker needs to know about the config.
type Draw struct {
	ConfigID       string          `json:"config_id"`
	ConfigName     string          `json:"config_name"`
	PassingScore   float64         `json:"passing_score"`
	Questions      []exam.Question `json:"questions"`
	ConfigSnapshot exam.QuizConfig `json:"config_snapshot"`
}

// Repository is what the assembler needs from the question bank.
type Repository interface {
	CountMatching(ctx context.Context, f exam.FilterSet) (int, error)
	FindMatching(ctx context.Context, f exam.FilterSet, opts exam.ListOpts) ([]exam.Question, error)
	GetConfig(ctx context.Context, id string) (exam.QuizConfig, error)
}

type Assembler struct {
	repo    Repository
	log     *zap.Logger
	metrics *metrics.Metrics

	mu  sync.Mutex // guards rnd
	rnd *rand.Rand
}

type Option func(*Assembler)

// WithRand injects the random source; tests pass a seeded one.
func WithRand(r *rand.Rand) Option { return func(a *Assembler) { a.rnd = r } }

func WithLogger(l *zap.Logger) Option { return func(a *Assembler) { a.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(a *Assembler) { a.metrics = m } }

func New(repo Repository, opts ...Option) *Assembler {
	a := &Assembler{repo: repo, log: zap.NewNop()}
	for _, o := range opts {
		o(a)
	}
	if a.rnd == nil {
		a.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return a
}

// ComputeAvailability counts live questions matching f.
func (a *Assembler) ComputeAvailability(ctx context.Context, f exam.FilterSet) (int, error) {
	return a.repo.CountMatching(ctx, f)
}

// PartAvailability counts every part's inventory concurrently. The result is
// indexed like cfg.Parts.
func (a *Assembler) PartAvailability(ctx context.Context, cfg exam.QuizConfig) ([]int, error) {
	counts := make([]int, len(cfg.Parts))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range cfg.Parts {
		i, p := i, p
		g.Go(func() error {
			n, err := a.repo.CountMatching(gctx, p.Filter)
			if err != nil {
				return fmt.Errorf("count part %q: %w", p.Name, err)
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return counts, nil
}

// AssembleByID loads the config and assembles it.
func (a *Assembler) AssembleByID(ctx context.Context, configID string) (Draw, error) {
	cfg, err := a.repo.GetConfig(ctx, configID)
	if err != nil {
		if errors.Is(err, exam.ErrNotFound) {
			return Draw{}, err
		}
		a.metrics.AssemblyDone("error")
		return Draw{}, fmt.Errorf("%w: load config %s: %v", ErrGenerationFailed, configID, err)
	}
	return a.Assemble(ctx, cfg)
}

// Assemble draws every part's count without replacement and concatenates the
// parts in declared order. It returns exactly TotalQuestions questions or an
// error; a short pool is an *InventoryError.
func (a *Assembler) Assemble(ctx context.Context, cfg exam.QuizConfig) (Draw, error) {
	var probs []Problem
	for _, p := range cfg.Parts {
		if p.Count < 0 {
			probs = append(probs, Problem{PartID: p.ID, PartName: p.Name, Field: "count", Message: "count must not be negative"})
		}
	}
	if len(probs) > 0 {
		a.metrics.AssemblyDone("invalid")
		return Draw{}, &ConfigValidationError{Problems: probs}
	}
	out := make([]exam.Question, 0, cfg.TotalQuestions())
	for _, p := range cfg.Parts {
		pool, err := a.repo.FindMatching(ctx, p.Filter, exam.ListOpts{})
		if err != nil {
			a.metrics.AssemblyDone("error")
			return Draw{}, fmt.Errorf("%w: part %q: %v", ErrGenerationFailed, p.Name, err)
		}
		if len(pool) < p.Count {
			a.metrics.AssemblyDone("shortfall")
			a.metrics.Shortfall(cfg.ID)
			a.log.Warn("insufficient inventory",
				zap.String("config_id", cfg.ID),
				zap.String("part", p.Name),
				zap.Int("requested", p.Count),
				zap.Int("available", len(pool)))
			return Draw{}, &InventoryError{PartID: p.ID, PartName: p.Name, Requested: p.Count, Available: len(pool)}
		}
		for _, q := range a.sample(pool, p.Count) {
			q.PartName = p.Name
			if p.Score > 0 {
				q.Score = p.Score
			}
			out = append(out, q)
		}
	}
	a.metrics.AssemblyDone("ok")
	a.log.Debug("quiz assembled", zap.String("config_id", cfg.ID), zap.Int("questions", len(out)))
	return Draw{
		ConfigID:       cfg.ID,
		ConfigName:     cfg.Name,
		PassingScore:   cfg.PassingScore,
		Questions:      out,
		ConfigSnapshot: cfg.Clone(),
	}, nil
}

// sample returns n distinct elements of pool chosen uniformly, using a partial
// Fisher-Yates shuffle. pool is reordered in place.
func (a *Assembler) sample(pool []exam.Question, n int) []exam.Question {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i < n; i++ {
		j := i + a.rnd.Intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:n]
}
