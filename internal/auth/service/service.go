package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks CredentialVerifier,LockoutGuard,TokenIssuer,Auditor

import (
	"context"
	"log/slog"
	"time"

	"medshare/internal/audit"
	"medshare/internal/auth/metrics"
	"medshare/internal/auth/models"
	dErrors "medshare/pkg/domain-errors"
	"medshare/pkg/platform/clock"
	"medshare/pkg/requestcontext"
)

// CredentialVerifier checks a password for identity and returns the caller's
// role. A mismatch is reported as an Unauthorized domain error.
type CredentialVerifier interface {
	Verify(ctx context.Context, identity, password string) (models.Role, error)
}

// LockoutGuard is the attempt-tracking surface of the compliance guard.
type LockoutGuard interface {
	CheckLocked(ctx context.Context, identity string) (bool, error)
	RecordAttempt(ctx context.Context, identity string, success bool, sourceAddress string) error
}

type TokenIssuer interface {
	Issue(identity string, role models.Role) (string, time.Time, error)
}

type Auditor interface {
	Emit(ctx context.Context, entry audit.Entry) error
}

type Option func(*Service)

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

// Service authenticates credentials behind the lockout guard and issues
// access tokens.
type Service struct {
	verifier CredentialVerifier
	guard    LockoutGuard
	tokens   TokenIssuer
	auditor  Auditor
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func New(verifier CredentialVerifier, guard LockoutGuard, tokens TokenIssuer, auditor Auditor, opts ...Option) (*Service, error) {
	if verifier == nil || guard == nil || tokens == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "credential verifier, lockout guard and token issuer are required")
	}
	svc := &Service{
		verifier: verifier,
		guard:    guard,
		tokens:   tokens,
		auditor:  auditor,
		clock:    clock.Real{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Login checks the lockout state before verifying credentials, then records
// the outcome with the guard. Locked identities are rejected without touching
// the credential store.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error) {
	start := s.clock.Now()
	outcome := "error"
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordLogin(outcome, float64(s.clock.Now().Sub(start).Milliseconds()))
		}
	}()

	identity := models.NormalizeIdentity(req.Identity)
	if identity == "" || req.Password == "" {
		outcome = "invalid"
		return nil, dErrors.New(dErrors.CodeBadRequest, "email and password required")
	}
	source := requestcontext.ClientIP(ctx)

	locked, err := s.guard.CheckLocked(ctx, identity)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check lockout state")
	}
	if locked {
		outcome = "locked"
		s.emit(ctx, audit.Entry{
			Actor:         identity,
			Resource:      audit.ResourceLogin,
			Action:        audit.ActionLoginBlocked,
			Outcome:       audit.Failure("Account locked"),
			SourceAddress: source,
			Timestamp:     start,
		})
		return nil, dErrors.New(dErrors.CodeAccountLocked, "account temporarily locked")
	}

	role, err := s.verifier.Verify(ctx, identity, req.Password)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify credentials")
		}
		outcome = "rejected"
		if recErr := s.guard.RecordAttempt(ctx, identity, false, source); recErr != nil {
			return nil, dErrors.Wrap(recErr, dErrors.CodeInternal, "failed to record login attempt")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}

	if err := s.guard.RecordAttempt(ctx, identity, true, source); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record login attempt")
	}

	signed, expiresAt, err := s.tokens.Issue(identity, role)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue access token")
	}
	outcome = "success"
	if s.logger != nil {
		s.logger.InfoContext(ctx, "login succeeded",
			"request_id", requestcontext.RequestID(ctx),
			"role", role,
		)
	}
	return &models.LoginResult{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		Identity:    identity,
		Role:        role,
	}, nil
}

func (s *Service) emit(ctx context.Context, entry audit.Entry) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, entry); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"error", err,
			"action", entry.Action,
		)
	}
}
