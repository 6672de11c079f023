package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/session"
)

// autosaveKey scopes the recoverable store to the caller.
func autosaveKey(r *http.Request) string {
	return auth.SubjectFromContext(r.Context()) + "/" + session.Key(chi.URLParam(r, "configID"))
}

// GET /autosave/{configID}
func LoadAutosaveHandler(store session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, ok, err := store.Load(r.Context(), autosaveKey(r))
		if err != nil {
			writeError(w, err)
			return
		}
		if !ok {
			http.Error(w, "no saved session", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// PUT /autosave/{configID}
func SaveAutosaveHandler(store session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var snap session.Snapshot
		if !decodeJSON(w, r, &snap) {
			return
		}
		if !snap.Valid() {
			http.Error(w, "snapshot has no questions", http.StatusBadRequest)
			return
		}
		if err := store.Save(r.Context(), autosaveKey(r), snap); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// DELETE /autosave/{configID}
func DeleteAutosaveHandler(store session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Delete(r.Context(), autosaveKey(r)); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
