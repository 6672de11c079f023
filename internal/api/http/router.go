package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-quiz/internal/assembly"
	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/events"
	"github.com/mind-engage/mindengage-quiz/internal/exam"
	"github.com/mind-engage/mindengage-quiz/internal/logger"
	"github.com/mind-engage/mindengage-quiz/internal/metrics"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
	"github.com/mind-engage/mindengage-quiz/internal/results"
	"github.com/mind-engage/mindengage-quiz/internal/session"
	"github.com/mind-engage/mindengage-quiz/internal/storage"
)

type Deps struct {
	Store     exam.Store
	Assembler *assembly.Assembler
	Results   *results.Service
	Autosave  session.Store
	Blobs     storage.BlobStore
	Auth      *auth.AuthService
	Events    events.Publisher
	Metrics   *metrics.Metrics
	Log       *zap.Logger

	CORSOrigins []string
	Timeout     time.Duration
}

func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Timeout <= 0 {
		d.Timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logger.Middleware(d.Log), middleware.Recoverer)
	r.Use(middleware.Timeout(d.Timeout))
	r.Use(d.Metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", ReadyHandler(d.Store))
	r.Handle("/metrics", d.Metrics.Handler())

	// JWT → subject/name/role in context → RBAC
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(d.Auth))

		pr.Route("/assets", func(ar chi.Router) {
			MountAssets(ar, d.Blobs)
		})

		// Question bank
		pr.Route("/questions", func(qr chi.Router) {
			qr.Use(rbac.Require(rbac.PermQuestionWrite))
			qr.Post("/", PutQuestionHandler(d.Store))
			qr.Post("/import", ImportQTIHandler(d.Store, d.Blobs, d.Events, d.Log))
			qr.Get("/{id}", GetQuestionHandler(d.Store))
			qr.Delete("/{id}", SoftDeleteQuestionHandler(d.Store))
			qr.Post("/{id}/restore", RestoreQuestionHandler(d.Store))
			qr.Delete("/{id}/hard", HardDeleteQuestionHandler(d.Store))
			qr.Post("/{id}/disable", SetQuestionDisabledHandler(d.Store, true))
			qr.Post("/{id}/enable", SetQuestionDisabledHandler(d.Store, false))
			qr.Post("/{id}/images", UploadImageHandler(d.Store, d.Blobs))
		})

		// Configs and assembly
		pr.With(rbac.Require(rbac.PermConfigWrite)).
			Post("/availability", AvailabilityHandler(d.Assembler))
		pr.With(rbac.Require(rbac.PermConfigWrite)).
			Post("/configs/availability", PartAvailabilityHandler(d.Assembler))
		pr.With(rbac.Require(rbac.PermConfigWrite)).
			Put("/configs", PutConfigHandler(d.Store, d.Assembler, d.Events, d.Log))
		pr.With(rbac.Require(rbac.PermConfigView)).
			Get("/configs", ListConfigsHandler(d.Store))
		pr.With(rbac.Require(rbac.PermConfigView)).
			Get("/configs/{id}", GetConfigHandler(d.Store))
		pr.With(rbac.Require(rbac.PermConfigWrite)).
			Delete("/configs/{id}", DeleteConfigHandler(d.Store))
		pr.With(rbac.Require(rbac.PermQuizTake)).
			Post("/configs/{id}/assemble", AssembleHandler(d.Store, d.Assembler))

		// Results
		pr.With(rbac.Require(rbac.PermQuizTake)).
			Post("/results", SubmitHandler(d.Results))
		pr.With(rbac.RequireAny(rbac.PermResultViewOwn, rbac.PermResultViewAll)).
			Get("/results", ListResultsHandler(d.Store))
		pr.With(rbac.RequireAny(rbac.PermResultViewOwn, rbac.PermResultViewAll)).
			Get("/results/{id}", GetResultHandler(d.Store))
		pr.With(rbac.Require(rbac.PermResultGrade)).
			Get("/results/{id}/grading", PendingItemsHandler(d.Results))
		pr.With(rbac.Require(rbac.PermResultGrade)).
			Post("/results/{id}/grading", ApplyGradesHandler(d.Results))
		pr.With(rbac.Require(rbac.PermResultGrade)).
			Post("/results/{id}/finalize", FinalizeHandler(d.Results))

		// Recoverable session store, scoped to the caller
		pr.Route("/autosave/{configID}", func(sr chi.Router) {
			sr.Use(rbac.Require(rbac.PermQuizTake))
			sr.Get("/", LoadAutosaveHandler(d.Autosave))
			sr.Put("/", SaveAutosaveHandler(d.Autosave))
			sr.Delete("/", DeleteAutosaveHandler(d.Autosave))
		})
	})

	return r
}

// GET /readyz
func ReadyHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := store.ListConfigs(r.Context(), true); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
