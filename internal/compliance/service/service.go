package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,PurposeValidator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"medshare/internal/audit"
	"medshare/internal/compliance/metrics"
	"medshare/internal/compliance/models"
	dErrors "medshare/pkg/domain-errors"
	"medshare/pkg/platform/clock"
	"medshare/pkg/platform/privacy"
	"medshare/pkg/requestcontext"
)

// Store persists per-identity attempt state. RecordFailure and ClearElapsed
// must each be atomic for one identity.
type Store interface {
	Get(ctx context.Context, identity string) (*models.State, error)
	ClearElapsed(ctx context.Context, identity string, now time.Time) (*models.State, error)
	RecordFailure(ctx context.Context, identity string, now time.Time, policy models.Policy) (*models.FailureResult, error)
	Clear(ctx context.Context, identity string) error
}

type Auditor interface {
	Emit(ctx context.Context, entry audit.Entry) error
}

// PurposeValidator checks that a stated purpose justifies PHI access.
type PurposeValidator interface {
	ValidateDisclosurePurpose(purpose string) error
}

type Option func(*Service)

// Service tracks login attempts, locks identities after repeated failures and
// makes sensitive reads traceable.
type Service struct {
	store    Store
	auditor  Auditor
	purposes PurposeValidator
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
	policy   models.Policy
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithPolicy(p models.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

func New(store Store, auditor Auditor, purposes PurposeValidator, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("compliance store is required")
	}
	if purposes == nil {
		return nil, fmt.Errorf("purpose validator is required")
	}
	svc := &Service{
		store:    store,
		auditor:  auditor,
		purposes: purposes,
		clock:    clock.Real{},
		policy:   models.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if err := svc.policy.Validate(); err != nil {
		return nil, err
	}
	return svc, nil
}

// CheckLocked reports whether identity is currently locked out. A lockout
// that has run out is cleared together with its failure count.
func (s *Service) CheckLocked(ctx context.Context, identity string) (bool, error) {
	identity = normalizeIdentity(identity)
	now := s.clock.Now()
	state, err := s.store.ClearElapsed(ctx, identity, now)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read lockout state")
	}
	locked := state.IsLocked(now)
	if locked {
		s.logAudit(ctx, "login_blocked_locked_account",
			"identity", privacy.MaskEmail(identity),
			"locked_until", state.LockedUntil,
		)
		if s.metrics != nil {
			s.metrics.BlockedAttempts.Inc()
		}
	}
	return locked, nil
}

// RecordAttempt records the outcome of one credential check. Failures are
// counted atomically; the attempt that reaches the threshold locks the
// identity. Success clears all tracked state.
func (s *Service) RecordAttempt(ctx context.Context, identity string, success bool, sourceAddress string) error {
	identity = normalizeIdentity(identity)
	if identity == "" {
		return dErrors.New(dErrors.CodeBadRequest, "identity is required")
	}
	now := s.clock.Now()

	if success {
		if err := s.store.Clear(ctx, identity); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear attempt state")
		}
		s.emit(ctx, audit.Entry{
			Actor:         identity,
			Resource:      audit.ResourceLogin,
			Action:        audit.ActionLoginSuccess,
			Outcome:       audit.OutcomeSuccess,
			SourceAddress: sourceAddress,
			Timestamp:     now,
		})
		return nil
	}

	res, err := s.store.RecordFailure(ctx, identity, now, s.policy)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record failed attempt")
	}
	if s.metrics != nil {
		s.metrics.FailedAttempts.Inc()
	}
	s.emit(ctx, audit.Entry{
		Actor:         identity,
		Resource:      audit.ResourceLogin,
		Action:        audit.ActionFailedAttempt,
		Outcome:       audit.Failure(fmt.Sprintf("Attempt %d", res.State.ConsecutiveFailures)),
		SourceAddress: sourceAddress,
		Timestamp:     now,
	})

	if res.LockTriggered {
		s.logAudit(ctx, "account_locked",
			"identity", privacy.MaskEmail(identity),
			"failures", res.State.ConsecutiveFailures,
			"locked_until", res.State.LockedUntil,
		)
		if s.metrics != nil {
			s.metrics.Lockouts.Inc()
		}
		s.emit(ctx, audit.Entry{
			Actor:         identity,
			Resource:      audit.ResourceLogin,
			Action:        audit.ActionAccountLocked,
			Outcome:       audit.Failure("Too many failed attempts"),
			SourceAddress: sourceAddress,
			Timestamp:     now,
		})
	}
	return nil
}

// ValidateDataAccess requires a sufficient purpose before actorID reads
// subjectID's protected data. Both outcomes are written to the ledger.
func (s *Service) ValidateDataAccess(ctx context.Context, actorID, subjectID, purpose string) error {
	entry := audit.Entry{
		Actor:     actorID,
		Resource:  audit.ResourcePHI,
		Action:    audit.ActionDataAccess,
		SubjectID: subjectID,
		Purpose:   strings.TrimSpace(purpose),
		Timestamp: s.clock.Now(),
	}
	if err := s.purposes.ValidateDisclosurePurpose(purpose); err != nil {
		entry.Outcome = audit.Failure(string(dErrors.CodeOf(err)))
		s.emit(ctx, entry)
		s.countDataAccess("rejected")
		return err
	}
	entry.Outcome = audit.OutcomeSuccess
	s.emit(ctx, entry)
	s.countDataAccess("allowed")
	return nil
}

// Status returns the tracked state for identity without modifying it. An
// untracked identity reads as zero failures.
func (s *Service) Status(ctx context.Context, identity string) (*models.State, error) {
	identity = normalizeIdentity(identity)
	state, err := s.store.Get(ctx, identity)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read attempt state")
	}
	if state == nil {
		return &models.State{Identity: identity}, nil
	}
	return state, nil
}

func normalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

func (s *Service) emit(ctx context.Context, entry audit.Entry) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, entry); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to emit compliance audit entry",
			"error", err,
			"action", entry.Action,
		)
	}
}

func (s *Service) countDataAccess(result string) {
	if s.metrics != nil {
		s.metrics.DataAccess.WithLabelValues(result).Inc()
	}
}

func (s *Service) logAudit(ctx context.Context, event string, attrs ...any) {
	if s.logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	args := append(attrs, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}
