package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/teachmate/internal/auth"
	"github.com/pavelanni/teachmate/internal/handler/views"
	"github.com/pavelanni/teachmate/internal/logstore"
	"github.com/pavelanni/teachmate/internal/model"
	"github.com/pavelanni/teachmate/internal/orchestrator"
	"github.com/pavelanni/teachmate/internal/retrieval"
	"github.com/pavelanni/teachmate/internal/store"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Store        *store.Store
	Orchestrator *orchestrator.Orchestrator
	Verifier     auth.Verifier
	Feedback     *logstore.FeedbackLog
	Profiles     *logstore.ProfileStore
	Ingestor     *retrieval.Ingestor
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	orch     *orchestrator.Orchestrator
	verifier auth.Verifier
	feedback *logstore.FeedbackLog
	profiles *logstore.ProfileStore
	ingestor *retrieval.Ingestor
	sessions *sessionRegistry
	config   model.AppConfig
}

// New creates a new Handler.
func New(d Deps, cfg model.AppConfig) (*Handler, error) {
	switch {
	case d.Store == nil:
		return nil, errors.New("handler: store is required")
	case d.Orchestrator == nil:
		return nil, errors.New("handler: orchestrator is required")
	case d.Feedback == nil || d.Profiles == nil:
		return nil, errors.New("handler: feedback log and profile store are required")
	case d.Ingestor == nil:
		return nil, errors.New("handler: ingestor is required")
	}
	verifier := d.Verifier
	if verifier == nil {
		verifier = auth.NewBcryptVerifier(d.Store)
	}
	return &Handler{
		store:    d.Store,
		orch:     d.Orchestrator,
		verifier: verifier,
		feedback: d.Feedback,
		profiles: d.Profiles,
		ingestor: d.Ingestor,
		sessions: newSessionRegistry(cfg.RateLimit),
		config:   cfg,
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(h.csrfMiddleware)

		r.Get("/login", h.handleLoginPage)
		r.Post("/login", h.handleLogin)
		r.Post("/logout", h.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Get("/", h.handleIndex)
			r.Get("/generate/{kind}", h.handleFeaturePage)
			r.With(h.rateLimit).Post("/generate/{kind}", h.handleGenerate)
			r.Get("/download/{kind}", h.handleDownload)

			r.Get("/chat", h.handleChatPage)
			r.With(h.rateLimit).Post("/chat", h.handleChat)
			r.Post("/chat/clear", h.handleChatClear)
			r.Get("/chat/status", h.handleChatStatus)

			r.Get("/documents", h.handleDocumentsPage)
			r.Post("/documents", h.handleUploadDocument)
			r.Post("/documents/{docID}/delete", h.handleDeleteDocument)
			r.Get("/qa", h.handleQAPage)
			r.With(h.rateLimit).Post("/qa", h.handleAsk)

			r.Get("/feedback", h.handleFeedbackPage)
			r.With(h.rateLimit).Post("/feedback", h.handleSubmitFeedback)
			r.Get("/feedback/export", h.handleFeedbackExport)

			r.Get("/profile", h.handleProfilePage)
			r.Post("/profile", h.handleSaveProfile)
		})
	})
}

// BasePathMiddleware stores the configured base path in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// path prefixes an absolute application path with the base path.
func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(); err != nil {
		slog.Error("health check failed", "error", err)
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	ctx := r.Context()
	if isHTMX(r) {
		ctx = views.WithPartial(ctx)
	}
	if err := c.Render(ctx, w); err != nil {
		slog.Error("render error", "path", r.URL.Path, "error", err)
	}
}

func username(ctx context.Context) string {
	if u := model.UserFromContext(ctx); u != nil {
		return u.Username
	}
	return ""
}

func isHTMX(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("HX-Request"), "true")
}
