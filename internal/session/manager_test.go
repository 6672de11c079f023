package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/assembly"
	"github.com/mind-engage/mindengage-quiz/internal/exam"
	"github.com/mind-engage/mindengage-quiz/internal/results"
)

type fakeAssembler struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeAssembler) AssembleByID(_ context.Context, configID string) (assembly.Draw, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return assembly.Draw{}, f.err
	}
	cfg := exam.QuizConfig{
		ID: configID, Name: "Quiz", PassingScore: 2, Mode: exam.ModePractice,
		Parts: []exam.QuizPartSpec{{ID: "p", Name: "All", Count: 3}},
	}
	return assembly.Draw{
		ConfigID:     configID,
		ConfigName:   cfg.Name,
		PassingScore: cfg.PassingScore,
		Questions: []exam.Question{
			{ID: "mc", Type: exam.MultipleChoice, AnswerKey: []string{"B"}, PartName: "All"},
			{ID: "ms", Type: exam.MultipleSelect, AnswerKey: []string{"A", "C"}, PartName: "All"},
			{ID: "fib", Type: exam.FillInTheBlank, AnswerKey: []string{"5", "Paris"}, PartName: "All"},
		},
		ConfigSnapshot: cfg,
	}, nil
}

type fakeSubmitter struct {
	mu   sync.Mutex
	fail error
	got  []results.DrawSubmission
}

func (f *fakeSubmitter) SubmitDraw(_ context.Context, d results.DrawSubmission) (exam.QuizResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, d)
	if f.fail != nil {
		return exam.QuizResult{}, f.fail
	}
	return exam.QuizResult{ID: "r1", Status: exam.StatusCompleted}, nil
}

// countingStore counts saves on top of a MemoryStore.
type countingStore struct {
	*MemoryStore
	mu    sync.Mutex
	saves int
}

func (c *countingStore) Save(ctx context.Context, key string, s Snapshot) error {
	c.mu.Lock()
	c.saves++
	c.mu.Unlock()
	return c.MemoryStore.Save(ctx, key, s)
}

func (c *countingStore) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves
}

// gatedStore holds the first Save after arm until release is closed.
type gatedStore struct {
	*MemoryStore
	mu      sync.Mutex
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		MemoryStore: NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (g *gatedStore) arm() {
	g.mu.Lock()
	g.armed = true
	g.mu.Unlock()
}

func (g *gatedStore) Save(ctx context.Context, key string, s Snapshot) error {
	g.mu.Lock()
	hold := g.armed
	g.armed = false
	g.mu.Unlock()
	if hold {
		close(g.entered)
		<-g.release
	}
	return g.MemoryStore.Save(ctx, key, s)
}

func newTestManager(t *testing.T, store Store, asm *fakeAssembler, sub *fakeSubmitter) *Manager {
	t.Helper()
	m := NewManager("cfg", asm, sub, store,
		WithAutosaveDelay(20*time.Millisecond),
		WithUser("u1", "ada"),
		WithClock(func() time.Time { return time.Unix(1_700_000_000, 0) }))
	t.Cleanup(m.Close)
	return m
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartDrawsAndPersists(t *testing.T) {
	store := NewMemoryStore()
	asm := &fakeAssembler{}
	m := newTestManager(t, store, asm, &fakeSubmitter{})
	resumed, err := m.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if resumed || m.State() != StateActive || asm.calls != 1 {
		t.Fatalf("resumed=%v state=%s calls=%d", resumed, m.State(), asm.calls)
	}
	snap, ok, _ := store.Load(context.Background(), Key("cfg"))
	if !ok || len(snap.Questions) != 3 || snap.StartTime != 1_700_000_000 || snap.ConfigName != "Quiz" {
		t.Fatalf("snapshot = %+v (%v)", snap, ok)
	}
	if !m.ConfirmLeave() {
		t.Fatal("active session must ask before leaving")
	}
}

func TestResumeDoesNotRedraw(t *testing.T) {
	store := NewMemoryStore()
	prev := Snapshot{
		Questions:    []exam.Question{{ID: "old", Type: exam.MultipleSelect, PartName: "P"}},
		Answers:      map[string]string{"old": `["A","B"]`, "gone": "x"},
		ConfigName:   "Earlier",
		PassingScore: 1,
		StartTime:    123,
	}
	if err := store.Save(context.Background(), Key("cfg"), prev); err != nil {
		t.Fatal(err)
	}
	asm := &fakeAssembler{}
	m := newTestManager(t, store, asm, &fakeSubmitter{})
	resumed, err := m.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !resumed || asm.calls != 0 {
		t.Fatalf("resumed=%v assembler calls=%d", resumed, asm.calls)
	}
	qs := m.Questions()
	if len(qs) != 1 || qs[0].ID != "old" {
		t.Fatalf("questions = %+v", qs)
	}
	a, ok := m.Answer("old")
	if !ok || exam.EncodeAnswer(a) != `["A","B"]` {
		t.Fatalf("answer = %v", a)
	}
}

func TestEmptySnapshotIsIgnored(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Save(context.Background(), Key("cfg"), Snapshot{ConfigName: "broken"})
	asm := &fakeAssembler{}
	m := newTestManager(t, store, asm, &fakeSubmitter{})
	if resumed, err := m.Start(context.Background()); err != nil || resumed {
		t.Fatalf("resumed=%v err=%v", resumed, err)
	}
	if asm.calls != 1 {
		t.Fatal("invalid snapshot should trigger a fresh draw")
	}
}

func TestStartFailureIsReported(t *testing.T) {
	boom := errors.New("bank unreachable")
	m := newTestManager(t, NewMemoryStore(), &fakeAssembler{err: boom}, &fakeSubmitter{})
	if _, err := m.Start(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
	if m.State() != StateLoading {
		t.Fatalf("state = %s", m.State())
	}
}

func TestAnswerEditingKeepsCanonicalEncodings(t *testing.T) {
	m := newTestManager(t, NewMemoryStore(), &fakeAssembler{}, &fakeSubmitter{})
	if _, err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, opt := range []string{"C", "A", "B", "B"} {
		if err := m.ToggleOption("ms", opt); err != nil {
			t.Fatal(err)
		}
	}
	a, _ := m.Answer("ms")
	if got := exam.EncodeAnswer(a); got != `["A","C"]` {
		t.Fatalf("multi-select = %s", got)
	}

	if err := m.SetBlank("fib", 1, "Paris"); err != nil {
		t.Fatal(err)
	}
	a, _ = m.Answer("fib")
	if got := exam.EncodeAnswer(a); got != `["","Paris"]` {
		t.Fatalf("blanks = %s", got)
	}
	if err := m.SetBlank("fib", 2, "x"); err == nil {
		t.Fatal("blank beyond the answer key accepted")
	}

	if err := m.ToggleOption("mc", "B"); !errors.Is(err, ErrWrongType) {
		t.Fatalf("got %v", err)
	}
	if err := m.SetAnswer("nope", exam.Single("x")); !errors.Is(err, ErrUnknownQuestion) {
		t.Fatalf("got %v", err)
	}
	if err := m.SetAnswer("ms", exam.Multi{"C", "B"}); err != nil {
		t.Fatal(err)
	}
	a, _ = m.Answer("ms")
	if exam.EncodeAnswer(a) != `["B","C"]` {
		t.Fatalf("SetAnswer did not sort: %s", exam.EncodeAnswer(a))
	}
}

func TestAutosaveIsDebounced(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore()}
	m := newTestManager(t, store, &fakeAssembler{}, &fakeSubmitter{})
	if _, err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	base := store.count()

	for _, v := range []string{"A", "B", "B"} {
		if err := m.SetAnswer("mc", exam.Single(v)); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, func() bool { return store.count() > base })
	time.Sleep(60 * time.Millisecond)
	if n := store.count() - base; n != 1 {
		t.Fatalf("burst of edits saved %d times, want 1", n)
	}
	snap, _, _ := store.Load(context.Background(), Key("cfg"))
	if snap.Answers["mc"] != "B" {
		t.Fatalf("saved answers = %v", snap.Answers)
	}
}

func TestCloseCancelsPendingAutosave(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore()}
	m := newTestManager(t, store, &fakeAssembler{}, &fakeSubmitter{})
	if _, err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	base := store.count()
	if err := m.SetAnswer("mc", exam.Single("B")); err != nil {
		t.Fatal(err)
	}
	m.Close()
	time.Sleep(60 * time.Millisecond)
	if store.count() != base {
		t.Fatal("autosave ran after Close")
	}
	if err := m.SetAnswer("mc", exam.Single("A")); !errors.Is(err, ErrNotActive) {
		t.Fatalf("closed session accepted an edit: %v", err)
	}
}

func TestAbandonClearsSnapshot(t *testing.T) {
	store := NewMemoryStore()
	sub := &fakeSubmitter{}
	m := newTestManager(t, store, &fakeAssembler{}, sub)
	if _, err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.Abandon(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Load(context.Background(), Key("cfg")); ok {
		t.Fatal("snapshot survived abandon")
	}
	if m.State() != StateAbandoned || m.ConfirmLeave() || len(sub.got) != 0 {
		t.Fatalf("state=%s submissions=%d", m.State(), len(sub.got))
	}
}

func TestSubmitFailureKeepsSession(t *testing.T) {
	store := NewMemoryStore()
	sub := &fakeSubmitter{fail: results.ErrGradingFailed}
	m := newTestManager(t, store, &fakeAssembler{}, sub)
	if _, err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	_ = m.SetAnswer("mc", exam.Single("B"))

	if _, err := m.Submit(context.Background()); !errors.Is(err, results.ErrGradingFailed) {
		t.Fatalf("got %v", err)
	}
	if m.State() != StateActive {
		t.Fatalf("state = %s, want active", m.State())
	}
	snap, ok, _ := store.Load(context.Background(), Key("cfg"))
	if !ok || snap.Answers["mc"] != "B" {
		t.Fatalf("answers lost after failed submit: %+v", snap.Answers)
	}

	sub.mu.Lock()
	sub.fail = nil
	sub.mu.Unlock()
	res, err := m.Submit(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.ID != "r1" || m.State() != StateCompleted {
		t.Fatalf("result %+v state %s", res, m.State())
	}
	if _, ok, _ := store.Load(context.Background(), Key("cfg")); ok {
		t.Fatal("snapshot survived a successful submit")
	}
	last := sub.got[len(sub.got)-1]
	if last.UserID != "u1" || last.Config.TotalQuestions() != 3 || last.StartedAt.Unix() != 1_700_000_000 {
		t.Fatalf("submission = %+v", last)
	}
	if _, err := m.Submit(context.Background()); !errors.Is(err, ErrNotActive) {
		t.Fatal("completed session accepted a second submit")
	}
}

func TestLegacySnapshotRebuildsParts(t *testing.T) {
	s := Snapshot{
		Questions:    []exam.Question{{PartName: "A"}, {PartName: "A"}, {PartName: "B"}},
		ConfigName:   "Old",
		PassingScore: 3,
	}
	cfg := s.config("cfg")
	if len(cfg.Parts) != 2 || cfg.Parts[0].Count != 2 || cfg.Parts[1].Count != 1 || cfg.TotalQuestions() != 3 {
		t.Fatalf("parts = %+v", cfg.Parts)
	}
}

func TestSlowAutosaveDoesNotOverwriteFlush(t *testing.T) {
	ctx := context.Background()
	store := newGatedStore()
	m := NewManager("cfg", &fakeAssembler{}, &fakeSubmitter{}, store, WithAutosaveDelay(time.Hour))
	t.Cleanup(m.Close)
	if _, err := m.Start(ctx); err != nil {
		t.Fatal(err)
	}

	store.arm()
	if err := m.SetAnswer("mc", exam.Single("A")); err != nil {
		t.Fatal(err)
	}
	autosaved := make(chan error, 1)
	go func() { autosaved <- m.save(ctx, false) }()
	<-store.entered

	if err := m.SetAnswer("mc", exam.Single("B")); err != nil {
		t.Fatal(err)
	}
	flushed := make(chan error, 1)
	go func() { flushed <- m.Flush(ctx) }()
	time.Sleep(30 * time.Millisecond)
	close(store.release)

	if err := <-autosaved; err != nil {
		t.Fatal(err)
	}
	if err := <-flushed; err != nil {
		t.Fatal(err)
	}
	snap, ok, _ := store.Load(ctx, Key("cfg"))
	if !ok || snap.Answers["mc"] != "B" {
		t.Fatalf("saved answers = %v, want the flushed edit", snap.Answers)
	}
}
