// Package handler serves the JSON REST API. It wires the session,
// authoring and visibility packages to persistence and enforces
// authentication and roles.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/examdesk/internal/authoring"
	appI18n "github.com/pavelanni/examdesk/internal/i18n"
	"github.com/pavelanni/examdesk/internal/metrics"
	"github.com/pavelanni/examdesk/internal/model"
	"github.com/pavelanni/examdesk/internal/session"
	"github.com/pavelanni/examdesk/internal/store"
)

// FeedbackGenerator writes narrative feedback for one graded answer.
type FeedbackGenerator interface {
	Feedback(ctx context.Context, q model.Question, a model.Answer) (string, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	sessions  *session.Service
	authoring *authoring.Service
	feedback  FeedbackGenerator
	metrics   *metrics.Metrics
	config    model.ServeConfig
	validate  *validator.Validate
	logins    *visitorLimiter
}

// New creates a new Handler. fb may be nil, which disables feedback
// generation.
func New(s *store.Store, fb FeedbackGenerator, m *metrics.Metrics, cfg model.ServeConfig) *Handler {
	if cfg.Lang == "" {
		cfg.Lang = "en"
	}
	if m == nil {
		m = metrics.New()
	}
	return &Handler{
		store:     s,
		sessions:  session.New(s, session.WithLatePolicy(cfg.LatePolicy, cfg.LateGrace)),
		authoring: authoring.New(s),
		feedback:  fb,
		metrics:   m,
		config:    cfg,
		validate:  newValidator(),
		logins:    newVisitorLimiter(cfg.LoginRate),
	}
}

// Router returns the full HTTP handler with middleware installed.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(h.metrics.Middleware)
	r.Use(appI18n.Middleware(h.config.Lang))
	h.Routes(r)
	return r
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", h.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(h.csrfMiddleware)

		r.With(h.logins.middleware).Post("/login", h.handleLogin)
		r.Post("/register", h.handleRegister)
		r.Post("/logout", h.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Get("/user", h.handleCurrentUser)

			r.Get("/exams", h.handleListExams)
			r.Get("/exams/{id}", h.handleGetExam)
			r.With(requireRole(model.UserRoleStudent)).Post("/exams/{id}/start", h.handleStartExam)

			r.Get("/submissions", h.handleListSubmissions)
			r.Get("/submissions/{id}", h.handleGetSubmission)
			r.With(requireRole(model.UserRoleStudent)).Post("/submissions/{id}/submit", h.handleSubmit)

			r.Get("/notifications", h.handleListNotifications)
			r.Get("/notifications/unread-count", h.handleUnreadCount)
			r.Post("/notifications/read-all", h.handleMarkAllRead)
			r.Post("/notifications/{id}/read", h.handleMarkRead)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(model.UserRoleAdmin))

				r.Post("/exams", h.handleCreateExam)
				r.Put("/exams/{id}", h.handleUpdateExam)
				r.Delete("/exams/{id}", h.handleDeleteExam)
				r.Post("/exams/{id}/active", h.handleSetExamActive)
				r.Post("/submissions/{id}/feedback", h.handleFeedback)

				r.Get("/admin/users", h.handleListUsers)
				r.Post("/admin/users", h.handleCreateUser)
				r.Post("/admin/users/{id}/toggle", h.handleToggleUserActive)
				r.Post("/admin/exams/import", h.handleImportExams)
			})
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
