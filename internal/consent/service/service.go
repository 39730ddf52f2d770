package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"medshare/internal/audit"
	"medshare/internal/consent/metrics"
	"medshare/internal/consent/models"
	"medshare/internal/sentinel"
	dErrors "medshare/pkg/domain-errors"
	"medshare/pkg/platform/clock"
	"medshare/pkg/validation"
)

// Store defines the persistence interface for consent records.
// Error Contract:
// - FindByID and Revoke return sentinel.ErrNotFound for unknown or foreign records
// - Revoke returns sentinel.ErrInvalidState when the record is already revoked
// - Save returns sentinel.ErrConflict when the ID is taken
type Store interface {
	Save(ctx context.Context, record *models.Record) error
	FindByID(ctx context.Context, subjectID, consentID string) (*models.Record, error)
	ListBySubject(ctx context.Context, subjectID string) ([]*models.Record, error)
	FindQualifying(ctx context.Context, subjectID string, now time.Time) ([]*models.Record, error)
	Revoke(ctx context.Context, subjectID, consentID string, revokedAt time.Time) (*models.Record, error)
}

// Auditor records ledger entries.
type Auditor interface {
	Emit(ctx context.Context, entry audit.Entry) error
}

type Option func(*Service)

const (
	DefaultMinPurposeLength = 10
	MaxPurposeLength        = 500
)

// Service evaluates and maintains a subject's consent records. Authorization
// is a pure read: it never rewrites stored status.
type Service struct {
	store            Store
	auditor          Auditor
	clock            clock.Clock
	metrics          *metrics.Metrics
	logger           *slog.Logger
	minPurposeLength int
}

func NewService(store Store, auditor Auditor, opts ...Option) *Service {
	svc := &Service{
		store:            store,
		auditor:          auditor,
		clock:            clock.Real{},
		minPurposeLength: DefaultMinPurposeLength,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithMinPurposeLength overrides the minimum purpose length. Non-positive
// values keep the default.
func WithMinPurposeLength(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.minPurposeLength = n
		}
	}
}

// Authorize reports whether every requested category is covered by at least
// one of the subject's qualifying records. Coverage may span several records.
// A missing or partial grant is a false result, not an error. An empty
// request, or a subject with no qualifying record, is never authorized.
func (s *Service) Authorize(ctx context.Context, subjectID string, categories []string) (bool, error) {
	if strings.TrimSpace(subjectID) == "" {
		return false, dErrors.New(dErrors.CodeBadRequest, "subject ID is required")
	}
	start := time.Now()
	now := s.clock.Now()

	records, err := s.store.FindQualifying(ctx, subjectID, now)
	if err != nil {
		s.recordAuthorization("error", start)
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read consents")
	}

	covered := make(map[string]struct{})
	for _, r := range records {
		// stores may be stale relative to now; re-check before trusting a record
		if !r.Qualifies(now) {
			continue
		}
		for _, c := range r.Categories {
			covered[c] = struct{}{}
		}
	}

	requested := models.NormalizeCategories(categories)
	if len(requested) == 0 || len(covered) == 0 {
		s.recordAuthorization("denied", start)
		s.log(ctx, slog.LevelInfo, "consent authorization denied",
			"subject_id", subjectID,
			"requested", len(requested),
			"qualifying", len(covered) > 0,
		)
		return false, nil
	}
	for _, c := range requested {
		if _, ok := covered[c]; !ok {
			s.recordAuthorization("denied", start)
			s.log(ctx, slog.LevelInfo, "consent authorization denied",
				"subject_id", subjectID,
				"missing_category", c,
			)
			return false, nil
		}
	}
	s.recordAuthorization("allowed", start)
	return true, nil
}

// ValidateDisclosurePurpose rejects blank purposes and purposes outside the
// configured length bounds.
func (s *Service) ValidateDisclosurePurpose(purpose string) error {
	trimmed := strings.TrimSpace(purpose)
	n := utf8.RuneCountInString(trimmed)
	switch {
	case n == 0:
		s.incPurposeRejected()
		return dErrors.New(dErrors.CodeInvalidPurpose, "purpose is required")
	case n < s.minPurposeLength:
		s.incPurposeRejected()
		return dErrors.New(dErrors.CodeInvalidPurpose, "purpose is too short")
	case n > MaxPurposeLength:
		s.incPurposeRejected()
		return dErrors.New(dErrors.CodeInvalidPurpose, "purpose is too long")
	}
	return nil
}

// Grant creates an ACTIVE consent record for the subject. Rejected grants
// are audited as failures.
func (s *Service) Grant(ctx context.Context, req models.GrantRequest) (*models.Record, error) {
	req.Categories = models.NormalizeCategories(req.Categories)
	now := s.clock.Now()
	record, err := s.grant(ctx, req, now)
	if err != nil {
		s.emit(ctx, audit.Entry{
			Actor:      req.SubjectID,
			Resource:   audit.ResourceConsent,
			Action:     audit.ActionConsentGrant,
			Outcome:    audit.Failure(string(dErrors.CodeOf(err))),
			SubjectID:  req.SubjectID,
			Categories: req.Categories,
			Purpose:    strings.TrimSpace(req.Purpose),
			Timestamp:  now,
		})
		return nil, err
	}

	s.emit(ctx, audit.Entry{
		Actor:      req.SubjectID,
		Resource:   audit.ResourceConsent,
		Action:     audit.ActionConsentGrant,
		Outcome:    audit.OutcomeSuccess,
		SubjectID:  req.SubjectID,
		Categories: record.Categories,
		Purpose:    record.Purpose,
		Timestamp:  now,
	})
	if s.metrics != nil {
		s.metrics.IncrementConsentsGranted()
	}
	return record, nil
}

func (s *Service) grant(ctx context.Context, req models.GrantRequest, now time.Time) (*models.Record, error) {
	if err := validation.Validate(req); err != nil {
		return nil, err
	}
	if err := s.ValidateDisclosurePurpose(req.Purpose); err != nil {
		return nil, err
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, dErrors.New(dErrors.CodeValidation, "expires_at must be in the future")
	}

	record, err := models.NewRecord(uuid.NewString(), req.SubjectID, req.GranteeID, req.Categories,
		strings.TrimSpace(req.Purpose), now, req.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save consent")
	}
	return record, nil
}

// Revoke marks the subject's record REVOKED. Records belonging to another
// subject read as not found.
func (s *Service) Revoke(ctx context.Context, subjectID, consentID string) (*models.Record, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "subject ID is required")
	}
	now := s.clock.Now()
	record, err := s.store.Revoke(ctx, subjectID, consentID, now)
	if err != nil {
		var result error
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			result = dErrors.New(dErrors.CodeNotFound, "consent not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			result = dErrors.New(dErrors.CodeAlreadyTerminal, "consent already revoked")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke consent")
		}
		s.emit(ctx, audit.Entry{
			Actor:     subjectID,
			Resource:  audit.ResourceConsent,
			Action:    audit.ActionConsentRevoke,
			Outcome:   audit.Failure(string(dErrors.CodeOf(result))),
			SubjectID: subjectID,
			Detail:    consentID,
			Timestamp: now,
		})
		return nil, result
	}

	s.emit(ctx, audit.Entry{
		Actor:      subjectID,
		Resource:   audit.ResourceConsent,
		Action:     audit.ActionConsentRevoke,
		Outcome:    audit.OutcomeSuccess,
		SubjectID:  subjectID,
		Categories: record.Categories,
		Purpose:    record.Purpose,
		Detail:     record.ID,
		Timestamp:  now,
	})
	if s.metrics != nil {
		s.metrics.IncrementConsentsRevoked()
	}
	return record, nil
}

// View pairs a stored record with its status at read time.
type View struct {
	*models.Record
	EffectiveStatus models.Status
}

// List returns all of the subject's records, including revoked and expired ones.
func (s *Service) List(ctx context.Context, subjectID string) ([]View, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "subject ID is required")
	}
	records, err := s.store.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list consents")
	}
	now := s.clock.Now()
	views := make([]View, 0, len(records))
	for _, r := range records {
		views = append(views, View{Record: r, EffectiveStatus: r.EffectiveStatus(now)})
	}
	return views, nil
}

func (s *Service) emit(ctx context.Context, entry audit.Entry) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, entry); err != nil {
		s.log(ctx, slog.LevelError, "failed to emit consent audit entry",
			"error", err,
			"action", entry.Action,
		)
	}
}

func (s *Service) recordAuthorization(result string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordAuthorization(result, time.Since(start).Seconds())
	}
}

func (s *Service) incPurposeRejected() {
	if s.metrics != nil {
		s.metrics.IncrementPurposeRejected()
	}
}

func (s *Service) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Log(ctx, level, msg, args...)
}
