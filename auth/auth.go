package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"vigila/middleware"
	"vigila/models"
	"vigila/session"
	"vigila/utils"
)

// Handler serves the authentication endpoints.
type Handler struct {
	users        Users
	manager      *session.Manager
	logger       zerolog.Logger
	secureCookie bool
	now          func() time.Time
}

func NewHandler(users Users, manager *session.Manager, logger zerolog.Logger, secureCookie bool) *Handler {
	return &Handler{
		users:        users,
		manager:      manager,
		logger:       logger.With().Str("pkg", "auth").Logger(),
		secureCookie: secureCookie,
		now:          time.Now,
	}
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

// Login handles POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var in credentials
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Username == "" || in.Password == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid input")
		return
	}

	user, err := h.users.FindByUsername(r.Context(), in.Username)
	if errors.Is(err, ErrUserNotFound) {
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("user lookup failed")
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	token, s, err := h.manager.Issue(r.Context(), user)
	if err != nil {
		h.logger.Error().Err(err).Str("user", user.UserID).Msg("issue session failed")
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to start session")
		return
	}
	if err := h.users.TouchLogin(r.Context(), user.UserID, h.now()); err != nil {
		h.logger.Warn().Err(err).Str("user", user.UserID).Msg("failed to record login")
	}

	h.setCookie(w, token, s.ExpiresAt)
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"token": token, "session": s})
}

// Register handles POST /api/auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var in registration
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid input")
		return
	}
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || len(in.Password) < 8 {
		utils.RespondWithError(w, http.StatusBadRequest, "Username and a password of at least 8 characters are required")
		return
	}
	// admins are provisioned out of band
	role := session.Role(in.Role)
	if role != session.RoleConsumer && role != session.RoleVigil {
		utils.RespondWithError(w, http.StatusBadRequest, "Role must be consumer or vigil")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error().Err(err).Msg("hash password failed")
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to hash password")
		return
	}
	user := models.User{
		UserID:       "u" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         string(role),
		Name:         in.Name,
		CreatedAt:    h.now(),
	}
	if err := h.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, ErrUserExists) {
			utils.RespondWithError(w, http.StatusConflict, "User already exists")
			return
		}
		h.logger.Error().Err(err).Msg("create user failed")
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to register user")
		return
	}

	h.logger.Info().Str("user", user.UserID).Str("role", user.Role).Msg("user registered")
	utils.RespondWithJSON(w, http.StatusCreated, utils.M{"userid": user.UserID, "username": user.Username, "role": user.Role})
}

// Logout handles POST /api/auth/logout. Every store and feed bound to the
// session is cleared, on this instance and the others.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s := h.manager.Current(r.Context())
	if s == nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "No active session")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.manager.End(ctx, s.ID); err != nil {
		h.logger.Error().Err(err).Str("session", s.ID).Msg("end session failed")
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to invalidate session")
		return
	}

	h.clearCookie(w)
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "message": "Logged out successfully"})
}

// Refresh handles POST /api/auth/token/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s := h.manager.Current(r.Context())
	if s == nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "No active session")
		return
	}

	token, refreshed, err := h.manager.Refresh(r.Context(), *s)
	if errors.Is(err, session.ErrNoSession) {
		utils.RespondWithError(w, http.StatusUnauthorized, "No active session")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("session", s.ID).Msg("refresh failed")
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to refresh token")
		return
	}

	h.setCookie(w, token, refreshed.ExpiresAt)
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"token": token, "session": refreshed})
}

// Me handles GET /profile
func (h *Handler) Me(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s := session.FromContext(r.Context())
	if s == nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "No active session")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, s)
}

func (h *Handler) setCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // expires immediately
		HttpOnly: true,
		Secure:   h.secureCookie,
	})
}
