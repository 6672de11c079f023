package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-quiz/internal/assembly"
	"github.com/mind-engage/mindengage-quiz/internal/exam"
	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/results"
	"github.com/mind-engage/mindengage-quiz/internal/storage"
)

// maxBody caps JSON request bodies.
const maxBody = 4 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v); err != nil {
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

type errorBody struct {
	Error string `json:"error"`

	// inventory shortfall
	PartID    string `json:"part_id,omitempty"`
	PartName  string `json:"part_name,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
	Shortfall int    `json:"shortfall,omitempty"`

	Problems []assembly.Problem `json:"problems,omitempty"`

	// manual score out of range
	Index    *int     `json:"index,omitempty"`
	MaxScore *float64 `json:"max_score,omitempty"`
}

// writeError maps domain errors to status codes. Unknown errors go to the
// global logger and are reported as 500.
func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}
	var (
		inv  *assembly.InventoryError
		verr *assembly.ConfigValidationError
		rerr *grading.ScoreRangeError
		merr *http.MaxBytesError
		code int
	)
	switch {
	case errors.As(err, &inv):
		code = http.StatusConflict
		body.PartID, body.PartName = inv.PartID, inv.PartName
		body.Requested, body.Available, body.Shortfall = inv.Requested, &inv.Available, inv.Shortfall()
	case errors.As(err, &verr):
		code = http.StatusUnprocessableEntity
		body.Problems = verr.Problems
	case errors.As(err, &rerr):
		code = http.StatusUnprocessableEntity
		body.Index, body.MaxScore = &rerr.Index, &rerr.MaxScore
	case errors.As(err, &merr):
		code = http.StatusRequestEntityTooLarge
	case errors.Is(err, grading.ErrNotManual), errors.Is(err, grading.ErrAttemptIndex):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, exam.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, results.ErrInvalidSubmission), errors.Is(err, storage.ErrInvalidKey):
		code = http.StatusBadRequest
	case errors.Is(err, grading.ErrResultNotPending),
		errors.Is(err, grading.ErrGradingIncomplete),
		errors.Is(err, exam.ErrQuestionReferenced):
		code = http.StatusConflict
	case errors.Is(err, assembly.ErrGenerationFailed), errors.Is(err, results.ErrGradingFailed):
		code = http.StatusServiceUnavailable
	default:
		code = http.StatusInternalServerError
		zap.L().Error("unhandled error", zap.Error(err))
		body.Error = "internal error"
	}
	writeJSON(w, code, body)
}

func isNotFound(err error) bool {
	return errors.Is(err, exam.ErrNotFound) || errors.Is(err, storage.ErrNotFound)
}
