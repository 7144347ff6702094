package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/mockinterview/internal/model"
	"github.com/pavelanni/mockinterview/internal/store"
)

const defaultTokenTTL = 24 * time.Hour

var errInvalidToken = errors.New("invalid token")

// issueToken signs an HS256 token whose subject is the user ID.
func (h *Handler) issueToken(u *model.User, now time.Time) (string, time.Time, error) {
	exp := now.Add(h.config.TokenTTL)
	claims := jwt.RegisteredClaims{
		Subject:   u.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.config.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// parseToken validates a bearer token and returns its subject.
func (h *Handler) parseToken(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return []byte(h.config.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", errInvalidToken
	}
	if claims.Subject == "" {
		return "", errInvalidToken
	}
	return claims.Subject, nil
}

func bearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
}

// requireAuth is middleware that checks for a valid bearer token.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeFail(w, http.StatusUnauthorized, "missing bearer token", nil)
			return
		}
		userID, err := h.parseToken(raw)
		if err != nil {
			writeFail(w, http.StatusUnauthorized, "invalid or expired token", nil)
			return
		}

		user, err := h.store.GetUserByID(r.Context(), userID)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				slog.Error("failed to load user", "user_id", userID, "error", err)
			}
			writeFail(w, http.StatusUnauthorized, "unknown user", nil)
			return
		}
		if !user.Active {
			writeFail(w, http.StatusUnauthorized, "account disabled", nil)
			return
		}

		ctx := model.ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole returns middleware that checks the user has one of the allowed roles.
func requireRole(allowed ...model.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := model.UserFromContext(r.Context())
			if user == nil {
				writeFail(w, http.StatusUnauthorized, "unauthorized", nil)
				return
			}
			for _, role := range allowed {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeFail(w, http.StatusForbidden, "forbidden", nil)
		})
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      *model.User `json:"user"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, w, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeFail(w, http.StatusBadRequest, "username and password are required", nil)
		return
	}

	user, err := h.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Error("failed to get user", "error", err)
		}
		writeFail(w, http.StatusUnauthorized, "invalid credentials", nil)
		return
	}
	if !user.Active {
		writeFail(w, http.StatusUnauthorized, "invalid credentials", nil)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeFail(w, http.StatusUnauthorized, "invalid credentials", nil)
		return
	}

	token, exp, err := h.issueToken(user, time.Now())
	if err != nil {
		slog.Error("failed to sign token", "error", err)
		writeFail(w, http.StatusInternalServerError, "internal error", nil)
		return
	}
	slog.Info("user logged in", "user_id", user.ID, "username", user.Username)
	writeData(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: exp, User: user})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, model.UserFromContext(r.Context()))
}
