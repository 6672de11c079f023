package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/exam"
	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
	"github.com/mind-engage/mindengage-quiz/internal/results"
)

type resultView struct {
	exam.QuizResult
	PartScores []exam.PartScore `json:"part_scores"`
}

// viewFor applies the config's review mode: exam-mode results are returned
// without answers and explanations unless the caller can grade.
func viewFor(r *http.Request, res exam.QuizResult) resultView {
	if res.ConfigSnapshot.Mode == exam.ModeExam && !checker.Has(rbac.RoleFromContext(r.Context()), rbac.PermResultGrade) {
		res = res.Redacted()
	}
	return resultView{QuizResult: res, PartScores: res.PartScores()}
}

// POST /results
func SubmitHandler(svc *results.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req results.SubmitRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		req.UserID = auth.SubjectFromContext(r.Context())
		req.Username = auth.NameFromContext(r.Context())
		res, err := svc.Submit(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, viewFor(r, res))
	}
}

// GET /results?config_id=&user_id=&status=&limit=&offset=
// Without result:view-all only the caller's own results are listed.
func ListResultsHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := exam.ResultListOpts{
			ConfigID: q.Get("config_id"),
			UserID:   q.Get("user_id"),
			Status:   exam.ResultStatus(q.Get("status")),
		}
		var err error
		if opts.Limit, err = intParam(q.Get("limit")); err != nil {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		if opts.Offset, err = intParam(q.Get("offset")); err != nil {
			http.Error(w, "bad offset", http.StatusBadRequest)
			return
		}
		if !checker.Has(rbac.RoleFromContext(r.Context()), rbac.PermResultViewAll) {
			opts.UserID = auth.SubjectFromContext(r.Context())
		}

		list, err := store.ListResults(r.Context(), opts)
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]resultView, len(list))
		for i, res := range list {
			out[i] = viewFor(r, res)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("bad integer %q", s)
	}
	return n, nil
}

// GET /results/{id} (owner or result:view-all)
func GetResultHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		res, err := store.GetResult(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		if res.UserID != auth.SubjectFromContext(r.Context()) &&
			!checker.Has(rbac.RoleFromContext(r.Context()), rbac.PermResultViewAll) {
			// do not reveal that the id exists
			writeError(w, fmt.Errorf("result %q: %w", id, exam.ErrNotFound))
			return
		}
		writeJSON(w, http.StatusOK, viewFor(r, res))
	}
}

// GET /results/{id}/grading
func PendingItemsHandler(svc *results.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.PendingItems(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}

type applyGradesReq struct {
	Overrides []grading.Override `json:"overrides"`
	Finalize  bool               `json:"finalize,omitempty"`
}

// POST /results/{id}/grading
func ApplyGradesHandler(svc *results.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req applyGradesReq
		if !decodeJSON(w, r, &req) {
			return
		}
		if len(req.Overrides) == 0 && !req.Finalize {
			http.Error(w, "overrides required", http.StatusBadRequest)
			return
		}
		res, err := svc.ApplyManualGrades(r.Context(), chi.URLParam(r, "id"), req.Overrides,
			auth.SubjectFromContext(r.Context()), req.Finalize)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewFor(r, res))
	}
}

// POST /results/{id}/finalize
func FinalizeHandler(svc *results.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.Finalize(r.Context(), chi.URLParam(r, "id"), auth.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewFor(r, res))
	}
}
