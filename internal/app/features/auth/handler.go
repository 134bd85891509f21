// internal/app/features/auth/handler.go
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmharper/taskhub/internal/app/features/shared"
	userstore "github.com/jmharper/taskhub/internal/app/store/users"
	sysauth "github.com/jmharper/taskhub/internal/app/system/auth"
	"github.com/jmharper/taskhub/internal/app/system/ratelimit"
	"github.com/jmharper/taskhub/internal/app/system/timeouts"
	"github.com/jmharper/taskhub/internal/domain/models"
)

type Handler struct {
	Users  *userstore.Store
	Tokens *sysauth.Service
	// Limits is the per-IP throttle guarding the credential endpoints.
	// A successful login clears the caller's window so legitimate users who
	// fumbled a few attempts are not locked out afterwards. Optional.
	Limits *ratelimit.Limiter
	Log    *zap.Logger
}

func NewHandler(users *userstore.Store, tokens *sysauth.Service, limits *ratelimit.Limiter, logger *zap.Logger) *Handler {
	return &Handler{Users: users, Tokens: tokens, Limits: limits, Log: logger}
}

type registerRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// HandleRegister creates an account and returns a signed token.
//
// POST /api/auth/register
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.TrimSpace(req.Email)
	if req.FullName == "" || req.Email == "" || len(req.Password) < 8 {
		shared.WriteError(w, http.StatusBadRequest, "full_name, email, and a password of at least 8 characters are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.Log.Error("bcrypt hash failed", zap.Error(err))
		shared.WriteError(w, http.StatusInternalServerError, "could not create account")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	user, err := h.Users.Create(ctx, models.User{
		FullName:     req.FullName,
		Email:        req.Email,
		PasswordHash: string(hash),
	})
	if err != nil {
		if errors.Is(err, userstore.ErrDuplicateEmail) {
			shared.WriteError(w, http.StatusConflict, "an account with this email already exists")
			return
		}
		h.Log.Error("create user failed", zap.Error(err))
		shared.WriteError(w, http.StatusInternalServerError, "could not create account")
		return
	}

	token, err := h.Tokens.Generate(user)
	if err != nil {
		h.Log.Error("token generation failed", zap.Error(err))
		shared.WriteError(w, http.StatusInternalServerError, "could not create account")
		return
	}

	shared.WriteJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

// HandleLogin verifies credentials and returns a signed token.
//
// POST /api/auth/login
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	user, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Same response as a bad password so the endpoint doesn't leak
			// which emails have accounts.
			shared.WriteError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		h.Log.Error("login lookup failed", zap.Error(err))
		shared.WriteError(w, http.StatusInternalServerError, "could not sign in")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		shared.WriteError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	token, err := h.Tokens.Generate(user)
	if err != nil {
		h.Log.Error("token generation failed", zap.Error(err))
		shared.WriteError(w, http.StatusInternalServerError, "could not sign in")
		return
	}

	if h.Limits != nil {
		h.Limits.Reset(ratelimit.ClientIP(r))
	}

	shared.WriteJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

// HandleMe returns the signed-in user's profile.
//
// GET /api/auth/me
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	su, ok := sysauth.CurrentUser(r)
	if !ok {
		shared.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	id, err := shared.ParseID(su.ID)
	if err != nil {
		shared.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	user, err := h.Users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			shared.WriteError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		h.Log.Error("me lookup failed", zap.Error(err))
		shared.WriteError(w, http.StatusInternalServerError, "could not load profile")
		return
	}

	shared.WriteJSON(w, http.StatusOK, user)
}
