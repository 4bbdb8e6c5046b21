package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hongminglow/barrio-seguro-be/internal/auth"
	"github.com/hongminglow/barrio-seguro-be/internal/clients/identity"
	"github.com/hongminglow/barrio-seguro-be/internal/clients/ipinfo"
	"github.com/hongminglow/barrio-seguro-be/internal/http/respond"
	"github.com/hongminglow/barrio-seguro-be/internal/middleware"
	"github.com/hongminglow/barrio-seguro-be/internal/models"
	"github.com/hongminglow/barrio-seguro-be/internal/models/dto"
	"github.com/hongminglow/barrio-seguro-be/internal/storage"
)

// AuthHandler owns register/login endpoints.
type AuthHandler struct {
	store    storage.UserStore
	tokens   *auth.TokenManager
	identity identity.Verifier
	ip       ipinfo.Resolver
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(store storage.UserStore, tokens *auth.TokenManager, verifier identity.Verifier, ip ipinfo.Resolver, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		store:    store,
		tokens:   tokens,
		identity: verifier,
		ip:       ip,
		logger:   logger,
		now:      time.Now,
	}
}

// Register attaches the public auth routes.
func (h *AuthHandler) Register(r chi.Router) {
	r.Post("/user/register", h.handleRegister)
	r.Post("/user/login", h.handleLogin)
}

// RegisterProtected attaches routes that need a verified token.
func (h *AuthHandler) RegisterProtected(r chi.Router) {
	r.Get("/user/me", h.handleMe)
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.MsgInvalidJSON)
		return
	}
	req.Email = normalizeEmail(req.Email)
	if err := validateRegistration(req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if _, err := h.store.FindByEmail(ctx, req.Email); err == nil {
		respond.Error(w, http.StatusBadRequest, respond.MsgEmailTaken)
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		h.logger.ErrorContext(ctx, "lookup email failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, respond.MsgInternal)
		return
	}

	if err := h.identity.Verify(ctx, strings.TrimSpace(req.DNI)); err != nil {
		h.logger.WarnContext(ctx, "identity verification failed", "error", err)
		if errors.Is(err, identity.ErrMismatch) {
			respond.Error(w, http.StatusBadGateway, respond.MsgIdentityMismatch)
			return
		}
		respond.Error(w, http.StatusBadGateway, respond.MsgIdentityUnavailable)
		return
	}

	ipSignup := ipinfo.LookupOrUnavailable(ctx, h.ip)

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		respond.Error(w, http.StatusInternalServerError, respond.MsgInternal)
		return
	}

	now := h.now().UTC()
	user := models.User{
		ID:            uuid.NewString(),
		DNI:           strings.TrimSpace(req.DNI),
		FirstName:     strings.TrimSpace(req.FirstName),
		LastName:      strings.TrimSpace(req.LastName),
		Phone:         strings.TrimSpace(req.Phone),
		Email:         req.Email,
		PasswordHash:  passwordHash,
		Department:    strings.TrimSpace(req.Department),
		Province:      strings.TrimSpace(req.Province),
		District:      strings.TrimSpace(req.District),
		AddressLine1:  strings.TrimSpace(req.AddressLine1),
		BirthDate:     strings.TrimSpace(req.BirthDate),
		TermsAccepted: req.TermsAccepted,
		IPSignup:      ipSignup,
		SignupDate:    now.Format(time.DateOnly),
		CreatedAt:     now,
	}
	created, err := h.store.CreateUser(ctx, user)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrAlreadyExists):
			respond.Error(w, http.StatusBadRequest, respond.MsgEmailTaken)
		default:
			h.logger.ErrorContext(ctx, "create user failed", "error", err)
			respond.Error(w, http.StatusInternalServerError, respond.MsgInternal)
		}
		return
	}

	h.writeToken(w, r, http.StatusCreated, "user created successfully", created)
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.MsgInvalidJSON)
		return
	}
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		respond.Error(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.store.FindByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			respond.Error(w, http.StatusUnauthorized, respond.MsgBadCredentials)
			return
		}
		h.logger.ErrorContext(r.Context(), "login lookup failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, respond.MsgInternal)
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		w.Header().Set("WWW-Authenticate", "Bearer")
		respond.Error(w, http.StatusUnauthorized, respond.MsgBadCredentials)
		return
	}

	h.writeToken(w, r, http.StatusOK, "login successful", user)
}

func (h *AuthHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, respond.MsgInvalidToken)
		return
	}
	respond.JSON(w, http.StatusOK, "ok", claims)
}

func (h *AuthHandler) writeToken(w http.ResponseWriter, r *http.Request, status int, message string, user models.User) {
	token, err := h.tokens.Issue(claimsFor(user))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "issue token failed", "user_id", user.ID, "error", err)
		respond.Error(w, http.StatusInternalServerError, respond.MsgInternal)
		return
	}
	respond.JSON(w, status, message, dto.TokenResponse{AccessToken: token, TokenType: "bearer"})
}

func claimsFor(user models.User) auth.Claims {
	return auth.Claims{
		UserID:     user.ID,
		Email:      user.Email,
		FirstName:  user.FirstName,
		LastName:   user.LastName,
		Department: user.Department,
		Province:   user.Province,
		District:   user.District,
		IPSignup:   user.IPSignup,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateRegistration(req dto.RegisterRequest) error {
	required := []string{req.DNI, req.FirstName, req.LastName, req.Email, req.Department, req.Province, req.District}
	for _, v := range required {
		if strings.TrimSpace(v) == "" {
			return errors.New("dni, names, email, department, province and district are required")
		}
	}
	if !strings.Contains(req.Email, "@") {
		return errors.New("email is invalid")
	}
	if len(strings.TrimSpace(req.Password)) < 8 || !utf8.ValidString(req.Password) {
		return errors.New("password must be at least 8 characters")
	}
	if req.Password != req.ConfirmPassword {
		return errors.New("passwords do not match")
	}
	if !req.TermsAccepted {
		return errors.New("terms must be accepted")
	}
	if b := strings.TrimSpace(req.BirthDate); b != "" {
		if _, err := time.Parse(time.DateOnly, b); err != nil {
			return errors.New("birthDate must be YYYY-MM-DD")
		}
	}
	return nil
}
