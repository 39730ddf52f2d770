package handler

//go:generate mockgen -source=handler.go -destination=mocks/disclosure-mocks.go -package=mocks Service

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"medshare/internal/disclosure/models"
	dErrors "medshare/pkg/domain-errors"
	"medshare/pkg/platform/httputil"
	"medshare/pkg/requestcontext"
	"medshare/pkg/validation"
)

// Service defines the interface for disclosure session operations.
type Service interface {
	CreateSession(ctx context.Context, req models.CreateRequest) (*models.Handle, error)
	ConsumeSession(ctx context.Context, token, consumer string) (*models.Payload, error)
	CancelSession(ctx context.Context, sessionID string) (*models.View, error)
	SessionStatus(ctx context.Context, sessionID string) (*models.View, error)
}

// Handler handles disclosure session endpoints.
type Handler struct {
	logger   *slog.Logger
	sessions Service
}

func New(sessions Service, logger *slog.Logger) *Handler {
	return &Handler{
		logger:   logger,
		sessions: sessions,
	}
}

// Register registers the disclosure routes with the chi router. scanGuards
// wrap only the scan route.
func (h *Handler) Register(r chi.Router, scanGuards ...func(http.Handler) http.Handler) {
	r.Post("/disclosures", h.HandleCreate)
	r.With(scanGuards...).Post("/disclosures/scan", h.HandleScan)
	r.Get("/disclosures/{id}", h.HandleStatus)
	r.Delete("/disclosures/{id}", h.HandleCancel)
}

type CreateRequest struct {
	Categories []string `json:"categories"`
	TTLMinutes *int     `json:"ttl_minutes,omitempty"`
	Purpose    string   `json:"purpose"`
}

type CreateResponse struct {
	SessionID     string    `json:"session_id"`
	Token         string    `json:"token"`
	ExpiresAt     time.Time `json:"expires_at"`
	SealedPayload string    `json:"sealed_payload"`
	QRCode        []byte    `json:"qr_code,omitempty"`
}

type ScanRequest struct {
	Token string `json:"token"`
}

func (r *ScanRequest) Normalize() {
	r.Token = strings.TrimSpace(r.Token)
}

func (r *ScanRequest) Validate() error {
	if r.Token == "" {
		return dErrors.New(dErrors.CodeBadRequest, "token is required")
	}
	return validation.CheckStringLength("token", r.Token, validation.MaxTokenLength)
}

type PayloadResponse struct {
	SessionID  string    `json:"session_id"`
	SubjectID  string    `json:"subject_id"`
	Categories []string  `json:"categories"`
	Purpose    string    `json:"purpose"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type StatusResponse struct {
	SessionID  string     `json:"session_id"`
	Categories []string   `json:"categories"`
	Purpose    string     `json:"purpose"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
	ConsumedBy string     `json:"consumed_by,omitempty"`
}

// HandleCreate issues a session for the authenticated subject. Pass ?qr=1 to
// include a PNG of the token.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	subjectID, err := httputil.RequirePrincipal(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeJSON[CreateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	ttl := models.DefaultTTLMinutes
	if req.TTLMinutes != nil {
		ttl = *req.TTLMinutes
	}

	handle, err := h.sessions.CreateSession(ctx, models.CreateRequest{
		SubjectID:  subjectID,
		Categories: req.Categories,
		TTLMinutes: ttl,
		Purpose:    req.Purpose,
		IncludeQR:  r.URL.Query().Get("qr") == "1",
	})
	if err != nil {
		h.logger.WarnContext(ctx, "failed to create disclosure session",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, CreateResponse{
		SessionID:     handle.SessionID,
		Token:         handle.Token,
		ExpiresAt:     handle.ExpiresAt,
		SealedPayload: handle.SealedPayload,
		QRCode:        handle.QRCode,
	})
}

// HandleScan redeems a token on behalf of the authenticated requester.
func (h *Handler) HandleScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	consumer, err := httputil.RequirePrincipal(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[ScanRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	payload, err := h.sessions.ConsumeSession(ctx, req.Token, consumer)
	if err != nil {
		h.logger.WarnContext(ctx, "disclosure scan rejected",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, PayloadResponse{
		SessionID:  payload.SessionID,
		SubjectID:  payload.SubjectID,
		Categories: payload.Categories,
		Purpose:    payload.Purpose,
		IssuedAt:   payload.IssuedAt,
		ExpiresAt:  payload.ExpiresAt,
	})
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	view, ok := h.ownedSession(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toStatusResponse(view))
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.ownedSession(w, r); !ok {
		return
	}

	view, err := h.sessions.CancelSession(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.logger.WarnContext(ctx, "failed to cancel disclosure session",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toStatusResponse(view))
}

// ownedSession loads the session named in the path and hides sessions that
// belong to another subject behind a not-found response.
func (h *Handler) ownedSession(w http.ResponseWriter, r *http.Request) (*models.View, bool) {
	ctx := r.Context()
	subjectID, err := httputil.RequirePrincipal(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	view, err := h.sessions.SessionStatus(ctx, chi.URLParam(r, "id"))
	if err == nil && view.SubjectID != subjectID {
		err = dErrors.New(dErrors.CodeSessionNotFound, "session not found")
	}
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	return view, true
}

func toStatusResponse(v *models.View) StatusResponse {
	return StatusResponse{
		SessionID:  v.ID,
		Categories: v.Categories,
		Purpose:    v.Purpose,
		Status:     string(v.Status),
		CreatedAt:  v.CreatedAt,
		ExpiresAt:  v.ExpiresAt,
		ConsumedAt: v.ConsumedAt,
		ConsumedBy: v.ConsumedBy,
	}
}
