package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-quiz/internal/events"
	"github.com/mind-engage/mindengage-quiz/internal/exam"
	"github.com/mind-engage/mindengage-quiz/internal/qti"
	"github.com/mind-engage/mindengage-quiz/internal/storage"
)

const maxUpload = 64 << 20

// checkQuestion rejects questions the grader could not score.
func checkQuestion(q exam.Question) error {
	if !q.Type.Valid() {
		return fmt.Errorf("unknown question type %q", q.Type)
	}
	if strings.TrimSpace(q.BodyHTML) == "" {
		return fmt.Errorf("body_html required")
	}
	switch q.Type {
	case exam.MultipleChoice, exam.TrueFalse, exam.MultipleSelect:
		if len(q.Options) < 2 {
			return fmt.Errorf("%s needs at least two options", q.Type)
		}
		if len(q.AnswerKey) == 0 {
			return fmt.Errorf("answer_key required")
		}
	case exam.FillInTheBlank:
		if len(q.AnswerKey) == 0 {
			return fmt.Errorf("answer_key required")
		}
	}
	if q.Score < 0 {
		return fmt.Errorf("score must not be negative")
	}
	return nil
}

// POST /questions (create or replace)
func PutQuestionHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q exam.Question
		if !decodeJSON(w, r, &q) {
			return
		}
		if err := checkQuestion(q); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if q.Type == exam.MultipleSelect {
			q.AnswerKey = exam.Multi(q.AnswerKey).Sorted()
		}
		if err := store.PutQuestion(r.Context(), q); err != nil {
			writeError(w, err)
			return
		}
		saved, err := store.GetQuestion(r.Context(), q.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, saved)
	}
}

// GET /questions/{id}
func GetQuestionHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := store.GetQuestion(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

func questionOp(op func(ctx context.Context, id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := op(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// DELETE /questions/{id}
func SoftDeleteQuestionHandler(store exam.Store) http.HandlerFunc {
	return questionOp(store.SoftDeleteQuestion)
}

// POST /questions/{id}/restore
func RestoreQuestionHandler(store exam.Store) http.HandlerFunc {
	return questionOp(store.RestoreQuestion)
}

// DELETE /questions/{id}/hard
func HardDeleteQuestionHandler(store exam.Store) http.HandlerFunc {
	return questionOp(store.HardDeleteQuestion)
}

// POST /questions/{id}/disable, /enable
func SetQuestionDisabledHandler(store exam.Store, disabled bool) http.HandlerFunc {
	return questionOp(func(ctx context.Context, id string) error {
		return store.SetQuestionDisabled(ctx, id, disabled)
	})
}

// POST /questions/{id}/images (multipart: file=<image>)
func UploadImageHandler(store exam.Store, bs storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		q, err := store.GetQuestion(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "file required", http.StatusBadRequest)
			return
		}
		defer f.Close()

		key, err := bs.Put(r.Context(), storage.ImageKey(id, hdr.Filename), f, hdr.Size, hdr.Header.Get("Content-Type"))
		if err != nil {
			writeError(w, err)
			return
		}
		q.Images = append(q.Images, key)
		if err := store.PutQuestion(r.Context(), q); err != nil {
			writeError(w, err)
			return
		}
		out := map[string]string{"key": key}
		if u, err := bs.SignedURL(r.Context(), key, 15*time.Minute); err == nil {
			out["url"] = u
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

// POST /questions/import (multipart: file=package.zip, optional subject,
// difficulty, grade_level, category, score, id_prefix)
func ImportQTIHandler(store exam.Store, bs storage.BlobStore, pub events.Publisher, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "file required", http.StatusBadRequest)
			return
		}
		defer f.Close()

		// read into temp to get ReaderAt+size for unzip
		tmp, err := os.CreateTemp("", "qti-upload-*")
		if err != nil {
			writeError(w, err)
			return
		}
		defer os.Remove(tmp.Name())
		defer tmp.Close()
		size, err := io.Copy(tmp, f)
		if err != nil {
			writeError(w, err)
			return
		}

		d := qti.Defaults{
			IDPrefix:   r.FormValue("id_prefix"),
			Subject:    r.FormValue("subject"),
			Difficulty: r.FormValue("difficulty"),
			GradeLevel: r.FormValue("grade_level"),
			Category:   r.FormValue("category"),
		}
		if s := r.FormValue("score"); s != "" {
			if d.Score, err = strconv.ParseFloat(s, 64); err != nil || d.Score < 0 {
				http.Error(w, "bad score", http.StatusBadRequest)
				return
			}
		}

		rep, err := qti.Import(r.Context(), tmp, size, d, store, bs, "/assets/")
		if err != nil {
			http.Error(w, "import: "+err.Error(), http.StatusBadRequest)
			return
		}
		log.Info("qti import",
			zap.String("import_id", rep.ImportID),
			zap.String("filename", hdr.Filename),
			zap.Int("imported", len(rep.Imported)),
			zap.Int("skipped", len(rep.Skipped)))
		if err := pub.Publish(r.Context(), events.New(events.QuestionsImport, rep.ImportID, rep)); err != nil {
			log.Warn("publish event", zap.String("type", events.QuestionsImport), zap.Error(err))
		}
		writeJSON(w, http.StatusOK, rep)
	}
}
