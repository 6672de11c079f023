package http

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-quiz/internal/assembly"
	"github.com/mind-engage/mindengage-quiz/internal/events"
	"github.com/mind-engage/mindengage-quiz/internal/exam"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

var checker = rbac.NewChecker(nil)

// POST /availability  body: FilterSet
func AvailabilityHandler(asm *assembly.Assembler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var f exam.FilterSet
		if !decodeJSON(w, r, &f) {
			return
		}
		n, err := asm.ComputeAvailability(r.Context(), f)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"count": n})
	}
}

type partAvailability struct {
	PartID    string `json:"part_id"`
	PartName  string `json:"part_name"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	Shortfall int    `json:"shortfall"`
}

// POST /configs/availability  body: QuizConfig
func PartAvailabilityHandler(asm *assembly.Assembler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cfg exam.QuizConfig
		if !decodeJSON(w, r, &cfg) {
			return
		}
		counts, err := asm.PartAvailability(r.Context(), cfg)
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]partAvailability, len(cfg.Parts))
		for i, p := range cfg.Parts {
			out[i] = partAvailability{
				PartID:    p.ID,
				PartName:  p.Name,
				Requested: p.Count,
				Available: counts[i],
				Shortfall: max(0, p.Count-counts[i]),
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"parts": out})
	}
}

// PUT /configs (validate, then create or replace)
func PutConfigHandler(store exam.Store, asm *assembly.Assembler, pub events.Publisher, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cfg exam.QuizConfig
		if !decodeJSON(w, r, &cfg) {
			return
		}
		if err := asm.Validate(r.Context(), cfg); err != nil {
			writeError(w, err)
			return
		}
		if cfg.ID == "" {
			cfg.ID = uuid.NewString()
		}
		for i := range cfg.Parts {
			if cfg.Parts[i].ID == "" {
				cfg.Parts[i].ID = fmt.Sprintf("%s-p%d", cfg.ID, i+1)
			}
		}
		cfg.Deleted = false
		if err := store.PutConfig(r.Context(), cfg); err != nil {
			writeError(w, err)
			return
		}
		saved, err := store.GetConfig(r.Context(), cfg.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		log.Info("config saved", zap.String("config_id", saved.ID), zap.Int("parts", len(saved.Parts)))
		if err := pub.Publish(r.Context(), events.New(events.ConfigSaved, saved.ID, saved)); err != nil {
			log.Warn("publish event", zap.String("type", events.ConfigSaved), zap.Error(err))
		}
		writeJSON(w, http.StatusOK, saved)
	}
}

// GET /configs?all=1 (all=1 needs config:write; otherwise published only)
func ListConfigsHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := rbac.RoleFromContext(r.Context())
		publishedOnly := !(r.URL.Query().Get("all") == "1" && checker.Has(role, rbac.PermConfigWrite))
		list, err := store.ListConfigs(r.Context(), publishedOnly)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /configs/{id}
func GetConfigHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := visibleConfig(r, store, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	}
}

// DELETE /configs/{id}
func DeleteConfigHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.SoftDeleteConfig(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// visibleConfig hides unpublished configs from callers who cannot edit them.
func visibleConfig(r *http.Request, store exam.Store, id string) (exam.QuizConfig, error) {
	cfg, err := store.GetConfig(r.Context(), id)
	if err != nil {
		return exam.QuizConfig{}, err
	}
	if !cfg.IsPublished && !checker.Has(rbac.RoleFromContext(r.Context()), rbac.PermConfigWrite) {
		return exam.QuizConfig{}, fmt.Errorf("config %q: %w", id, exam.ErrNotFound)
	}
	return cfg, nil
}

// takerView removes answer keys and explanations from drawn questions.
func takerView(qs []exam.Question) []exam.Question {
	out := make([]exam.Question, len(qs))
	for i, q := range qs {
		q.AnswerKey = nil
		q.Explanation = ""
		out[i] = q
	}
	return out
}

// POST /configs/{id}/assemble
func AssembleHandler(store exam.Store, asm *assembly.Assembler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := visibleConfig(r, store, chi.URLParam(r, "id"))
		if err != nil {
			if !isNotFound(err) {
				err = fmt.Errorf("%w: %v", assembly.ErrGenerationFailed, err)
			}
			writeError(w, err)
			return
		}
		d, err := asm.Assemble(r.Context(), cfg)
		if err != nil {
			writeError(w, err)
			return
		}
		d.Questions = takerView(d.Questions)
		writeJSON(w, http.StatusOK, d)
	}
}
