package handler

//go:generate mockgen -source=handler.go -destination=mocks/consent-mocks.go -package=mocks Service

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"medshare/internal/consent/models"
	"medshare/internal/consent/service"
	"medshare/pkg/platform/httputil"
	"medshare/pkg/requestcontext"
)

// Service defines the interface for consent operations.
type Service interface {
	Grant(ctx context.Context, req models.GrantRequest) (*models.Record, error)
	Revoke(ctx context.Context, subjectID, consentID string) (*models.Record, error)
	List(ctx context.Context, subjectID string) ([]service.View, error)
}

// Handler handles consent endpoints for the authenticated subject.
type Handler struct {
	logger  *slog.Logger
	consent Service
	clock   func() time.Time
}

func New(consent Service, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		consent: consent,
		clock:   time.Now,
	}
}

// Register registers the consent routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/consents", h.HandleGrant)
	r.Get("/consents", h.HandleList)
	r.Delete("/consents/{id}", h.HandleRevoke)
}

type GrantRequest struct {
	GranteeID  string     `json:"grantee_id"`
	Categories []string   `json:"categories"`
	Purpose    string     `json:"purpose"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

type ConsentResponse struct {
	ID         string     `json:"id"`
	GranteeID  string     `json:"grantee_id,omitempty"`
	Categories []string   `json:"categories"`
	Purpose    string     `json:"purpose"`
	Status     string     `json:"status"`
	GrantedAt  time.Time  `json:"granted_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

type ListResponse struct {
	Consents []ConsentResponse `json:"consents"`
}

func (h *Handler) HandleGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	subjectID, err := httputil.RequirePrincipal(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeJSON[GrantRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.consent.Grant(ctx, models.GrantRequest{
		SubjectID:  subjectID,
		GranteeID:  req.GranteeID,
		Categories: req.Categories,
		Purpose:    req.Purpose,
		ExpiresAt:  req.ExpiresAt,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "failed to grant consent",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toResponse(record, record.EffectiveStatus(h.clock())))
}

func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID, err := httputil.RequirePrincipal(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.consent.Revoke(ctx, subjectID, chi.URLParam(r, "id"))
	if err != nil {
		h.logger.WarnContext(ctx, "failed to revoke consent",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toResponse(record, models.StatusRevoked))
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID, err := httputil.RequirePrincipal(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	views, err := h.consent.List(ctx, subjectID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list consents",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	res := ListResponse{Consents: make([]ConsentResponse, 0, len(views))}
	for _, v := range views {
		res.Consents = append(res.Consents, toResponse(v.Record, v.EffectiveStatus))
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func toResponse(r *models.Record, status models.Status) ConsentResponse {
	return ConsentResponse{
		ID:         r.ID,
		GranteeID:  r.GranteeID,
		Categories: r.Categories,
		Purpose:    r.Purpose,
		Status:     string(status),
		GrantedAt:  r.GrantedAt,
		ExpiresAt:  r.ExpiresAt,
		RevokedAt:  r.RevokedAt,
	}
}
