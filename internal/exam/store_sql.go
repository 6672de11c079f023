package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SQLStore persists the bank, configs and results through database/sql.
// Queries use $n placeholders, accepted by both pgx and modernc sqlite.
// Canonical answers are encoded to their storage strings here and nowhere else.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

const questionCols = `id,type,body_html,images_json,options_json,correct_answer,subject,difficulty,grade_level,category,score,needs_grading,explanation,deleted,disabled,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (Question, error) {
	var (
		q                   Question
		imagesJSON, optJSON string
		stored              string
		typ                 string
	)
	if err := row.Scan(&q.ID, &typ, &q.BodyHTML, &imagesJSON, &optJSON, &stored,
		&q.Subject, &q.Difficulty, &q.GradeLevel, &q.Category, &q.Score, &q.NeedsGrading,
		&q.Explanation, &q.Deleted, &q.Disabled, &q.CreatedAt, &q.UpdatedAt); err != nil {
		return Question{}, err
	}
	q.Type = Archetype(typ)
	if err := json.Unmarshal([]byte(imagesJSON), &q.Images); err != nil {
		return Question{}, fmt.Errorf("question %s images: %w", q.ID, err)
	}
	if err := json.Unmarshal([]byte(optJSON), &q.Options); err != nil {
		return Question{}, fmt.Errorf("question %s options: %w", q.ID, err)
	}
	key, err := DecodeAnswerKey(q.Type, stored)
	if err != nil {
		return Question{}, fmt.Errorf("question %s: %w", q.ID, err)
	}
	q.AnswerKey = key
	return q, nil
}

// filterWhere renders f as a WHERE clause starting at placeholder $start.
func filterWhere(f FilterSet, start int) (string, []any) {
	conds := []string{"deleted = $" + fmt.Sprint(start), "disabled = $" + fmt.Sprint(start+1)}
	args := []any{false, false}
	n := start + 2
	in := func(col string, vals []string) {
		if len(vals) == 0 {
			return
		}
		ph := make([]string, len(vals))
		for i, v := range vals {
			ph[i] = fmt.Sprintf("$%d", n)
			args = append(args, v)
			n++
		}
		conds = append(conds, col+" IN ("+strings.Join(ph, ",")+")")
	}
	in("subject", f.Subjects)
	in("difficulty", f.Difficulties)
	in("grade_level", f.GradeLevels)
	types := make([]string, len(f.QuestionTypes))
	for i, t := range f.QuestionTypes {
		types[i] = string(t)
	}
	in("type", types)
	in("category", f.Categories)
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *SQLStore) CountMatching(ctx context.Context, f FilterSet) (int, error) {
	where, args := filterWhere(f, 1)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`+where, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLStore) FindMatching(ctx context.Context, f FilterSet, opts ListOpts) ([]Question, error) {
	where, args := filterWhere(f, 1)
	q := `SELECT ` + questionCols + ` FROM questions` + where + ` ORDER BY id`
	if opts.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", opts.Limit)
		if opts.Offset > 0 {
			q += fmt.Sprintf(" OFFSET %d", opts.Offset)
		}
	} else if opts.Offset > 0 {
		if s.driver == "postgres" {
			q += fmt.Sprintf(" OFFSET %d", opts.Offset)
		} else {
			q += fmt.Sprintf(" LIMIT -1 OFFSET %d", opts.Offset)
		}
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Question, 0)
	for rows.Next() {
		item, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetQuestion(ctx context.Context, id string) (Question, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+questionCols+` FROM questions WHERE id=$1`, id)
	q, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Question{}, fmt.Errorf("question %q: %w", id, ErrNotFound)
		}
		return Question{}, err
	}
	return q, nil
}

func (s *SQLStore) PutQuestion(ctx context.Context, q Question) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	images, err := json.Marshal(nonNil(q.Images))
	if err != nil {
		return err
	}
	options, err := json.Marshal(nonNil(q.Options))
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	if q.CreatedAt == 0 {
		q.CreatedAt = now
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO questions (`+questionCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO UPDATE SET type=EXCLUDED.type, body_html=EXCLUDED.body_html,
		  images_json=EXCLUDED.images_json, options_json=EXCLUDED.options_json,
		  correct_answer=EXCLUDED.correct_answer, subject=EXCLUDED.subject,
		  difficulty=EXCLUDED.difficulty, grade_level=EXCLUDED.grade_level,
		  category=EXCLUDED.category, score=EXCLUDED.score, needs_grading=EXCLUDED.needs_grading,
		  explanation=EXCLUDED.explanation, deleted=EXCLUDED.deleted, disabled=EXCLUDED.disabled,
		  updated_at=EXCLUDED.updated_at`,
		q.ID, string(q.Type), q.BodyHTML, string(images), string(options),
		EncodeAnswerKey(q.Type, q.AnswerKey), q.Subject, q.Difficulty, q.GradeLevel, q.Category,
		q.Score, q.NeedsGrading, q.Explanation, q.Deleted, q.Disabled, q.CreatedAt, now)
	return err
}

func (s *SQLStore) SetQuestionDisabled(ctx context.Context, id string, disabled bool) error {
	return s.updateQuestionFlag(ctx, id, "disabled", disabled)
}

func (s *SQLStore) SoftDeleteQuestion(ctx context.Context, id string) error {
	return s.updateQuestionFlag(ctx, id, "deleted", true)
}

func (s *SQLStore) RestoreQuestion(ctx context.Context, id string) error {
	return s.updateQuestionFlag(ctx, id, "deleted", false)
}

// col is one of a fixed set of names, never user input.
func (s *SQLStore) updateQuestionFlag(ctx context.Context, id, col string, v bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE questions SET `+col+`=$1, updated_at=$2 WHERE id=$3`, v, time.Now().Unix(), id)
	if err != nil {
		return err
	}
	return mustAffect(res, "question", id)
}

func (s *SQLStore) HardDeleteQuestion(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var refs int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM result_questions WHERE question_id=$1`, id).Scan(&refs); err != nil {
		return err
	}
	if refs > 0 {
		return ErrQuestionReferenced
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if err := mustAffect(res, "question", id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) PutConfig(ctx context.Context, c QuizConfig) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	parts, err := json.Marshal(c.Parts)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	if c.CreatedAt == 0 {
		c.CreatedAt = now
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO quiz_configs
		(id,name,description,parts_json,passing_score,quiz_mode,is_published,deleted,created_at,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, description=EXCLUDED.description,
		  parts_json=EXCLUDED.parts_json, passing_score=EXCLUDED.passing_score,
		  quiz_mode=EXCLUDED.quiz_mode, is_published=EXCLUDED.is_published,
		  deleted=EXCLUDED.deleted, updated_at=EXCLUDED.updated_at`,
		c.ID, c.Name, c.Description, string(parts), c.PassingScore, string(c.Mode), c.IsPublished, c.Deleted, c.CreatedAt, now)
	return err
}

const configCols = `id,name,description,parts_json,passing_score,quiz_mode,is_published,deleted,created_at,updated_at`

func scanConfig(row rowScanner) (QuizConfig, error) {
	var (
		c     QuizConfig
		parts string
		mode  string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &parts, &c.PassingScore, &mode,
		&c.IsPublished, &c.Deleted, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return QuizConfig{}, err
	}
	c.Mode = QuizMode(mode)
	if err := json.Unmarshal([]byte(parts), &c.Parts); err != nil {
		return QuizConfig{}, fmt.Errorf("config %s parts: %w", c.ID, err)
	}
	return c, nil
}

func (s *SQLStore) GetConfig(ctx context.Context, id string) (QuizConfig, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+configCols+` FROM quiz_configs WHERE id=$1 AND deleted=$2`, id, false)
	c, err := scanConfig(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return QuizConfig{}, fmt.Errorf("config %q: %w", id, ErrNotFound)
		}
		return QuizConfig{}, err
	}
	return c, nil
}

func (s *SQLStore) ListConfigs(ctx context.Context, publishedOnly bool) ([]QuizConfig, error) {
	q := `SELECT ` + configCols + ` FROM quiz_configs WHERE deleted=$1`
	args := []any{false}
	if publishedOnly {
		q += ` AND is_published=$2`
		args = append(args, true)
	}
	rows, err := s.db.QueryContext(ctx, q+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]QuizConfig, 0)
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) SoftDeleteConfig(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE quiz_configs SET deleted=$1, updated_at=$2 WHERE id=$3 AND deleted=$4`, true, time.Now().Unix(), id, false)
	if err != nil {
		return err
	}
	return mustAffect(res, "config", id)
}

// SaveResult writes the result and its question references in one transaction.
func (s *SQLStore) SaveResult(ctx context.Context, r QuizResult) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	cfg, err := json.Marshal(r.ConfigSnapshot)
	if err != nil {
		return "", err
	}
	attempts, err := json.Marshal(nonNil(r.Attempts))
	if err != nil {
		return "", err
	}
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().Unix()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO quiz_results
		(id,user_id,username,config_id,config_name,config_json,attempts_json,score,max_score,passing_score,is_passed,status,duration_sec,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		r.ID, r.UserID, r.Username, r.ConfigID, r.ConfigName, string(cfg), string(attempts),
		r.Score, r.MaxScore, r.PassingScore, r.IsPassed, string(r.Status), r.DurationSec, r.CreatedAt); err != nil {
		return "", err
	}
	seen := map[string]bool{}
	for _, a := range r.Attempts {
		if seen[a.QuestionID] {
			continue
		}
		seen[a.QuestionID] = true
		if _, err := tx.ExecContext(ctx, `INSERT INTO result_questions (result_id,question_id) VALUES ($1,$2)`, r.ID, a.QuestionID); err != nil {
			return "", err
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return r.ID, nil
}

const resultCols = `id,user_id,username,config_id,config_name,config_json,attempts_json,score,max_score,passing_score,is_passed,status,duration_sec,created_at`

func scanResult(row rowScanner) (QuizResult, error) {
	var (
		r                QuizResult
		cfgJSON, attJSON string
		status           string
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.Username, &r.ConfigID, &r.ConfigName, &cfgJSON, &attJSON,
		&r.Score, &r.MaxScore, &r.PassingScore, &r.IsPassed, &status, &r.DurationSec, &r.CreatedAt); err != nil {
		return QuizResult{}, err
	}
	r.Status = ResultStatus(status)
	if err := json.Unmarshal([]byte(cfgJSON), &r.ConfigSnapshot); err != nil {
		return QuizResult{}, fmt.Errorf("result %s config: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(attJSON), &r.Attempts); err != nil {
		return QuizResult{}, fmt.Errorf("result %s attempts: %w", r.ID, err)
	}
	return r, nil
}

func (s *SQLStore) GetResult(ctx context.Context, id string) (QuizResult, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resultCols+` FROM quiz_results WHERE id=$1`, id)
	r, err := scanResult(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return QuizResult{}, fmt.Errorf("result %q: %w", id, ErrNotFound)
		}
		return QuizResult{}, err
	}
	return r, nil
}

func (s *SQLStore) ListResults(ctx context.Context, opts ResultListOpts) ([]QuizResult, error) {
	conds := []string{}
	args := []any{}
	add := func(col, v string) {
		if v == "" {
			return
		}
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	add("config_id", opts.ConfigID)
	add("user_id", opts.UserID)
	add("status", string(opts.Status))

	q := `SELECT ` + resultCols + ` FROM quiz_results`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY created_at DESC, id`
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	q += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, max(opts.Offset, 0))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]QuizResult, 0)
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateResultScoring(ctx context.Context, id string, attempts []QuizAttempt, score float64, isPassed bool, status ResultStatus) error {
	buf, err := json.Marshal(nonNil(attempts))
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE quiz_results SET attempts_json=$1, score=$2, is_passed=$3, status=$4 WHERE id=$5`,
		string(buf), score, isPassed, string(status), id)
	if err != nil {
		return err
	}
	return mustAffect(res, "result", id)
}

func mustAffect(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
	}
	return nil
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
