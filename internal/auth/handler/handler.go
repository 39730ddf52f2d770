package handler

//go:generate mockgen -source=handler.go -destination=mocks/auth-mocks.go -package=mocks Service

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"medshare/internal/auth/models"
	"medshare/pkg/platform/httputil"
	"medshare/pkg/requestcontext"
)

// Service defines the interface for authentication operations.
type Service interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error)
}

// Handler handles the login endpoint. Authentication middleware is applied by
// the parent router to every other route.
type Handler struct {
	auth   Service
	logger *slog.Logger
}

func New(auth Service, logger *slog.Logger) *Handler {
	return &Handler{
		auth:   auth,
		logger: logger,
	}
}

// Register registers the auth routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/login", h.HandleLogin)
}

type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
}

// HandleLogin exchanges email and password for a bearer token.
//
// Input: { "email": "patient@example.com", "password": "..." }
// Output: { "access_token": "...", "token_type": "Bearer", "expires_at": "...", "email": "...", "role": "PATIENT" }
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.LoginRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.auth.Login(ctx, *req)
	if err != nil {
		h.logger.WarnContext(ctx, "login rejected",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, LoginResponse{
		AccessToken: res.AccessToken,
		TokenType:   res.TokenType,
		ExpiresAt:   res.ExpiresAt,
		Email:       res.Identity,
		Role:        string(res.Role),
	})
}
