package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/mockinterview/internal/model"
)

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, users)
}

type createUserRequest struct {
	Username    string         `json:"username"`
	DisplayName string         `json:"displayName"`
	Password    string         `json:"password"`
	Role        model.UserRole `json:"role"`
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decode(r, w, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeFail(w, http.StatusBadRequest, "username and password are required", nil)
		return
	}
	switch req.Role {
	case "":
		req.Role = model.UserRoleCandidate
	case model.UserRoleCandidate, model.UserRoleAdmin:
	default:
		writeFail(w, http.StatusBadRequest, "role must be candidate or admin", nil)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		writeFail(w, http.StatusInternalServerError, "internal error", nil)
		return
	}

	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}

	user, err := h.store.CreateUser(r.Context(), model.User{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		Role:         req.Role,
		Active:       true,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("created user via admin", "username", user.Username, "role", user.Role)
	writeData(w, http.StatusCreated, user)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	status := model.SessionStatus(r.URL.Query().Get("status"))
	switch status {
	case "", model.SessionActive, model.SessionCompleted, model.SessionAbandoned:
	default:
		writeFail(w, http.StatusBadRequest, "unknown session status", nil)
		return
	}
	sessions, err := h.store.ListSessions(r.Context(), status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, sessions)
}

func (h *Handler) handleListInterviews(w http.ResponseWriter, r *http.Request) {
	status := model.InterviewStatus(r.URL.Query().Get("status"))
	switch status {
	case "", model.InterviewScheduled, model.InterviewInProgress, model.InterviewCompleted, model.InterviewCancelled:
	default:
		writeFail(w, http.StatusBadRequest, "unknown interview status", nil)
		return
	}
	interviews, err := h.store.ListInterviews(r.Context(), status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, interviews)
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Reconcile(r.Context())
	if err != nil {
		slog.Error("manual reconciliation incomplete", "repaired", n, "error", err)
		writeFail(w, http.StatusInternalServerError, "reconciliation incomplete", err)
		return
	}
	writeData(w, http.StatusOK, map[string]int{"repaired": n})
}
