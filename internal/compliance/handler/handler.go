package handler

//go:generate mockgen -source=handler.go -destination=mocks/compliance-mocks.go -package=mocks AccessValidator,LedgerReader

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"medshare/internal/audit"
	dErrors "medshare/pkg/domain-errors"
	"medshare/pkg/platform/httputil"
	"medshare/pkg/requestcontext"
	"medshare/pkg/validation"
)

const (
	defaultLimit = 100
	maxLimit     = 500
	rolePatient  = "PATIENT"
)

// AccessValidator checks that a stated purpose justifies reading a
// subject's records.
type AccessValidator interface {
	ValidateDataAccess(ctx context.Context, actorID, subjectID, purpose string) error
}

// LedgerReader queries the audit ledger.
type LedgerReader interface {
	Query(ctx context.Context, filter audit.Filter) ([]audit.Entry, error)
}

// Handler exposes the audit ledger to authenticated principals. Patients may
// only read their own trail; every read is itself audited as data access.
type Handler struct {
	logger *slog.Logger
	access AccessValidator
	ledger LedgerReader
}

func New(access AccessValidator, ledger LedgerReader, logger *slog.Logger) *Handler {
	return &Handler{
		logger: logger,
		access: access,
		ledger: ledger,
	}
}

// Register registers the audit routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit", h.HandleQuery)
}

type EntryResponse struct {
	Actor         string    `json:"actor"`
	Resource      string    `json:"resource"`
	Action        string    `json:"action"`
	Outcome       string    `json:"outcome"`
	SourceAddress string    `json:"source_address,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	SubjectID     string    `json:"subject_id,omitempty"`
	Categories    []string  `json:"categories,omitempty"`
	Purpose       string    `json:"purpose,omitempty"`
	Device        string    `json:"device,omitempty"`
}

type QueryResponse struct {
	Entries []EntryResponse `json:"entries"`
}

func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor, err := httputil.RequirePrincipal(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	q := r.URL.Query()
	subjectID := strings.TrimSpace(q.Get("subject_id"))
	if requestcontext.Role(ctx) == rolePatient {
		if subjectID == "" {
			subjectID = actor
		}
		if subjectID != actor {
			h.logger.WarnContext(ctx, "patient attempted to read another subject's audit trail",
				"request_id", requestID,
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "patients may only read their own audit trail"))
			return
		}
	}
	if subjectID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "subject_id is required"))
		return
	}
	purpose := q.Get("purpose")
	if err := errors.Join(
		validation.CheckStringLength("subject_id", subjectID, validation.MaxSubjectIDLength),
		validation.CheckStringLength("purpose", purpose, validation.MaxPurposeLength),
	); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, err.Error()))
		return
	}

	filter, err := parseFilter(q.Get("action"), q.Get("since"), q.Get("until"), q.Get("limit"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter.SubjectID = subjectID

	if err := h.access.ValidateDataAccess(ctx, actor, subjectID, purpose); err != nil {
		httputil.WriteError(w, err)
		return
	}

	entries, err := h.ledger.Query(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to query audit ledger",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	res := QueryResponse{Entries: make([]EntryResponse, 0, len(entries))}
	for _, e := range entries {
		res.Entries = append(res.Entries, toResponse(e))
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func parseFilter(action, since, until, limit string) (audit.Filter, error) {
	f := audit.Filter{
		Action: audit.Action(strings.ToUpper(strings.TrimSpace(action))),
		Limit:  defaultLimit,
	}
	var err error
	if since != "" {
		if f.Since, err = time.Parse(time.RFC3339, since); err != nil {
			return f, dErrors.New(dErrors.CodeBadRequest, "since must be RFC3339")
		}
	}
	if until != "" {
		if f.Until, err = time.Parse(time.RFC3339, until); err != nil {
			return f, dErrors.New(dErrors.CodeBadRequest, "until must be RFC3339")
		}
	}
	if limit != "" {
		n, convErr := strconv.Atoi(limit)
		if convErr != nil || n < 1 {
			return f, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer")
		}
		f.Limit = min(n, maxLimit)
	}
	return f, nil
}

func toResponse(e audit.Entry) EntryResponse {
	return EntryResponse{
		Actor:         e.Actor,
		Resource:      string(e.Resource),
		Action:        string(e.Action),
		Outcome:       e.Outcome,
		SourceAddress: e.SourceAddress,
		Timestamp:     e.Timestamp,
		SubjectID:     e.SubjectID,
		Categories:    e.Categories,
		Purpose:       e.Purpose,
		Device:        e.Device,
	}
}
