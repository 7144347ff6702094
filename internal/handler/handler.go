package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/mockinterview/internal/interview"
	"github.com/pavelanni/mockinterview/internal/metrics"
	"github.com/pavelanni/mockinterview/internal/model"
	"github.com/pavelanni/mockinterview/internal/store"
)

// maxBodyBytes caps request bodies; resume text is the largest field.
const maxBodyBytes = 1 << 20

// Store is the subset of the document store used directly by handlers.
type Store interface {
	Ping(ctx context.Context) error
	CreateUser(ctx context.Context, u model.User) (model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	ListSessions(ctx context.Context, status model.SessionStatus) ([]model.Session, error)
	ListInterviews(ctx context.Context, status model.InterviewStatus) ([]model.Interview, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	svc     *interview.Service
	store   Store
	metrics *metrics.Metrics
	config  model.Config
}

// New creates a new Handler. m may be nil.
func New(svc *interview.Service, s Store, m *metrics.Metrics, cfg model.Config) (*Handler, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	return &Handler{svc: svc, store: s, metrics: m, config: cfg}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.handleLogin)
		r.Get("/certificates/verify/{code}", h.handleVerifyCertificate)
		r.Post("/ai/evaluate-answer", h.handleEvaluateAnswer)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Get("/auth/me", h.handleMe)
			r.Post("/ai/complete-interview", h.handleCompleteInterview)

			r.Post("/interviews", h.handleCreateInterview)
			r.Route("/interviews/{interviewId}", func(r chi.Router) {
				r.Get("/", h.handleGetInterview)
				r.Post("/emotion-metrics", h.handleRecordEmotion)
				r.Get("/emotion-summary", h.handleEmotionSummary)
				r.Post("/emotion-feedback", h.handleEmotionFeedback)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireRole(model.UserRoleAdmin))
				r.Get("/users", h.handleListUsers)
				r.Post("/users", h.handleCreateUser)
				r.Get("/sessions", h.handleListSessions)
				r.Get("/interviews", h.handleListInterviews)
				r.Post("/reconcile", h.handleReconcile)
			})
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		slog.Error("health check failed", "error", err)
		writeFail(w, http.StatusServiceUnavailable, "store unavailable", err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeFail(w http.ResponseWriter, status int, message string, err error) {
	env := envelope{Success: false, Message: message}
	if err != nil {
		env.Error = err.Error()
	}
	writeJSON(w, status, env)
}

// writeError maps service errors onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *interview.ValidationError
	var pe *interview.PersistenceError
	switch {
	case errors.As(err, &ve):
		writeFail(w, http.StatusBadRequest, ve.Error(), nil)
	case errors.Is(err, interview.ErrNotFound):
		writeFail(w, http.StatusNotFound, "not found", nil)
	case errors.Is(err, interview.ErrSessionClosed):
		writeFail(w, http.StatusConflict, "session is not active", nil)
	case errors.Is(err, store.ErrDuplicate):
		writeFail(w, http.StatusConflict, "already exists", nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeFail(w, http.StatusServiceUnavailable, "request cancelled", nil)
	case errors.As(err, &pe):
		slog.Error("persistence failure", "op", pe.Op, "path", r.URL.Path, "error", pe.Err)
		writeFail(w, http.StatusInternalServerError, "failed to save changes", nil)
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		writeFail(w, http.StatusInternalServerError, "internal error", nil)
	}
}

// decode reads a JSON body into v, reporting problems as validation errors.
func decode(r *http.Request, w http.ResponseWriter, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &interview.ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()}
	}
	return nil
}
