package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatekeep/gatekeep/internal/identity"
	"github.com/gatekeep/gatekeep/internal/platform/httpx"
	"github.com/gatekeep/gatekeep/internal/shared"
	"github.com/gatekeep/gatekeep/internal/users"
)

// maskedPassword is returned in place of any password material.
const maskedPassword = "******"

// Handler wires the JSON endpoints for registration, login and logout.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	users          *users.Service
	sessionManager *shared.SessionManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, userSvc *users.Service, sessions *shared.SessionManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		users:          userSvc,
		sessionManager: sessions,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router. Logout
// accepts any method; the original contract treats every verb asking
// for /logout as a logout. Login is not mounted here so the router can
// wrap it in a tighter rate limit.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register", h.HandleRegister)
	r.HandleFunc("/logout", h.HandleLogout)
	r.Get("/user", h.HandleCurrentUser)
}

type userResponse struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func toUserResponse(user *users.User) userResponse {
	return userResponse{
		ID:       user.ID,
		Email:    user.Email,
		Name:     user.Name,
		Password: maskedPassword,
	}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

// HandleRegister creates a new account from a JSON body.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid registration body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := h.users.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		if !errors.Is(err, shared.ErrDuplicateEmail) {
			h.logger.Error("register user", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toUserResponse(user))
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// HandleLogin authenticates credentials and marks the session logged in.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil && sess.LoggedIn() {
		httpx.JSON(w, http.StatusOK, map[string]string{"message": "Already logged in"})
		return
	}
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid login body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			h.logger.Error("authenticate", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	sess.Login(strconv.FormatInt(user.ID, 10))
	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register login session", slog.Any("error", err))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"message": "Logged in",
		"user":    toUserResponse(user),
	})
}

// HandleLogout clears the login flag while keeping the session alive.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		// The session record survives logout; only the login flag is
		// cleared and the userID stays for traceability.
		sess.Logout()
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove login session", slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// HandleCurrentUser returns the authenticated user, masked.
func (h *Handler) HandleCurrentUser(w http.ResponseWriter, r *http.Request) {
	id := identity.FromContext(r.Context())
	if id.IsAnonymous() {
		httpx.JSON(w, http.StatusOK, map[string]string{"message": "Not logged in"})
		return
	}
	userID, err := strconv.ParseInt(id.UserID, 10, 64)
	if err != nil {
		httpx.JSON(w, http.StatusOK, map[string]string{"message": "Not logged in"})
		return
	}
	user, err := h.users.FindByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, shared.ErrUserNotFound) {
			httpx.JSON(w, http.StatusOK, map[string]string{"message": "Not logged in"})
			return
		}
		h.logger.Error("load current user", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserResponse(user))
}
