package exam

import (
	"context"
	"errors"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrQuestionReferenced = errors.New("question is referenced by stored results")
)

type ListOpts struct {
	Limit  int // 0 = no limit
	Offset int
}

type ResultListOpts struct {
	ConfigID string
	UserID   string
	Status   ResultStatus
	Limit    int
	Offset   int
}

// QuestionRepository is the question bank. Count and Find only see questions
// that are neither deleted nor disabled.
type QuestionRepository interface {
	CountMatching(ctx context.Context, f FilterSet) (int, error)
	FindMatching(ctx context.Context, f FilterSet, opts ListOpts) ([]Question, error)
	GetQuestion(ctx context.Context, id string) (Question, error)

	PutQuestion(ctx context.Context, q Question) error
	SetQuestionDisabled(ctx context.Context, id string, disabled bool) error
	SoftDeleteQuestion(ctx context.Context, id string) error
	RestoreQuestion(ctx context.Context, id string) error
	// HardDeleteQuestion fails with ErrQuestionReferenced while any result
	// holds an attempt for the question.
	HardDeleteQuestion(ctx context.Context, id string) error
}

type ConfigRepository interface {
	PutConfig(ctx context.Context, c QuizConfig) error
	GetConfig(ctx context.Context, id string) (QuizConfig, error)
	ListConfigs(ctx context.Context, publishedOnly bool) ([]QuizConfig, error)
	SoftDeleteConfig(ctx context.Context, id string) error
}

type ResultRepository interface {
	SaveResult(ctx context.Context, r QuizResult) (string, error)
	GetResult(ctx context.Context, id string) (QuizResult, error)
	ListResults(ctx context.Context, opts ResultListOpts) ([]QuizResult, error)
	UpdateResultScoring(ctx context.Context, id string, attempts []QuizAttempt, score float64, isPassed bool, status ResultStatus) error
}

type Store interface {
	QuestionRepository
	ConfigRepository
	ResultRepository
}
