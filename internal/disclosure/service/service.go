package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,Sealer,ConsentGuard,Auditor,QRRenderer

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"medshare/internal/audit"
	"medshare/internal/disclosure/metrics"
	"medshare/internal/disclosure/models"
	"medshare/internal/disclosure/store"
	"medshare/internal/sealer"
	"medshare/internal/sentinel"
	dErrors "medshare/pkg/domain-errors"
	"medshare/pkg/platform/clock"
	"medshare/pkg/requestcontext"
	"medshare/pkg/secrets"
	"medshare/pkg/validation"
)

// Store persists sessions with per-token atomic updates.
// Error Contract:
// - ErrNotFound for unknown tokens or IDs
// - ErrConflict from Create when the token or ID is already taken
type Store interface {
	Create(ctx context.Context, session *models.Session) error
	FindByToken(ctx context.Context, token string) (*models.Session, error)
	FindByID(ctx context.Context, sessionID string) (*models.Session, error)
	Update(ctx context.Context, token string, fn store.UpdateFunc) (*models.Session, error)
}

// Sealer is the authenticated encryption engine for payloads.
type Sealer interface {
	Seal(ctx context.Context, plaintext []byte) ([]byte, error)
	Open(ctx context.Context, sealed []byte) ([]byte, error)
}

// ConsentGuard decides whether a subject has authorized a disclosure.
type ConsentGuard interface {
	Authorize(ctx context.Context, subjectID string, categories []string) (bool, error)
	ValidateDisclosurePurpose(purpose string) error
}

type Auditor interface {
	Emit(ctx context.Context, entry audit.Entry) error
}

type QRRenderer interface {
	Render(content string) ([]byte, error)
}

// DefaultMaxTokenAttempts bounds token regeneration after collisions.
const DefaultMaxTokenAttempts = 5

type Option func(*Service)

// Service runs the disclosure session state machine:
// ACTIVE -> {EXPIRED, USED, CANCELLED}, all terminal.
type Service struct {
	store            Store
	sealer           Sealer
	consent          ConsentGuard
	auditor          Auditor
	qr               QRRenderer
	clock            clock.Clock
	random           io.Reader
	tracer           trace.Tracer
	logger           *slog.Logger
	metrics          *metrics.Metrics
	maxTokenAttempts int
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

// WithRandom sets the entropy source for session tokens.
func WithRandom(r io.Reader) Option {
	return func(s *Service) {
		if r != nil {
			s.random = r
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

func WithQRRenderer(r QRRenderer) Option {
	return func(s *Service) {
		s.qr = r
	}
}

func WithMaxTokenAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxTokenAttempts = n
		}
	}
}

func New(st Store, sl Sealer, consent ConsentGuard, auditor Auditor, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if sl == nil {
		return nil, fmt.Errorf("sealer is required")
	}
	if consent == nil {
		return nil, fmt.Errorf("consent guard is required")
	}
	svc := &Service{
		store:            st,
		sealer:           sl,
		consent:          consent,
		auditor:          auditor,
		clock:            clock.Real{},
		random:           rand.Reader,
		maxTokenAttempts: DefaultMaxTokenAttempts,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.tracer == nil {
		svc.tracer = otel.Tracer("medshare/disclosure")
	}
	return svc, nil
}

// CreateSession authorizes, seals and persists a new ACTIVE session. Nothing
// is sealed unless consent covers every requested category, and nothing is
// persisted unless sealing succeeds. Every failure leaves one audit entry.
func (s *Service) CreateSession(ctx context.Context, req models.CreateRequest) (handle *models.Handle, err error) {
	start := time.Now()
	req.SubjectID = strings.TrimSpace(req.SubjectID)
	req.Purpose = strings.TrimSpace(req.Purpose)
	req.Categories = models.NormalizeCategories(req.Categories)

	ctx, span := s.tracer.Start(ctx, "disclosure.CreateSession", trace.WithAttributes(
		attribute.Int("disclosure.ttl_minutes", req.TTLMinutes),
		attribute.StringSlice("disclosure.categories", req.Categories),
	))
	defer func() {
		endSpan(span, err)
		s.recordCreate(err, start)
		if err != nil {
			s.emit(ctx, audit.Entry{
				Actor:      actorOr(ctx, req.SubjectID),
				Resource:   audit.ResourceDisclosure,
				Action:     audit.ActionDisclosureCreate,
				Outcome:    audit.Failure(string(dErrors.CodeOf(err))),
				SubjectID:  req.SubjectID,
				Categories: req.Categories,
				Purpose:    req.Purpose,
				Timestamp:  s.clock.Now(),
			})
		}
	}()

	if req.SubjectID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "subject ID is required")
	}
	if req.TTLMinutes < models.MinTTLMinutes || req.TTLMinutes > models.MaxTTLMinutes {
		return nil, dErrors.New(dErrors.CodeInvalidTTL,
			fmt.Sprintf("ttl must be between %d and %d minutes", models.MinTTLMinutes, models.MaxTTLMinutes))
	}
	if err := s.consent.ValidateDisclosurePurpose(req.Purpose); err != nil {
		return nil, err
	}
	if err := validation.Validate(req); err != nil {
		return nil, err
	}

	allowed, err := s.consent.Authorize(ctx, req.SubjectID, req.Categories)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to evaluate consent")
	}
	if !allowed {
		return nil, dErrors.New(dErrors.CodeConsentDenied, "consent does not cover the requested categories")
	}

	now := s.clock.Now()
	ttl := time.Duration(req.TTLMinutes) * time.Minute
	sessionID := uuid.NewString()
	span.SetAttributes(attribute.String("disclosure.session_id", sessionID))

	plaintext, err := json.Marshal(models.Payload{
		SessionID:  sessionID,
		SubjectID:  req.SubjectID,
		Categories: req.Categories,
		Purpose:    req.Purpose,
		IssuedAt:   now,
		ExpiresAt:  now.Add(ttl),
	})
	if err != nil {
		return nil, dErrors.As(err, dErrors.CodeEncryptionFailure, "failed to encode payload")
	}
	sealed, err := s.sealer.Seal(ctx, plaintext)
	if err != nil {
		return nil, dErrors.As(err, dErrors.CodeEncryptionFailure, "failed to seal payload")
	}

	session, qrPNG, err := s.persistWithFreshToken(ctx, req, sessionID, now, ttl, sealed)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, audit.Entry{
		Actor:      actorOr(ctx, req.SubjectID),
		Resource:   audit.ResourceDisclosure,
		Action:     audit.ActionDisclosureCreate,
		Outcome:    audit.OutcomeSuccess,
		SubjectID:  req.SubjectID,
		Categories: session.Categories,
		Purpose:    session.Purpose,
		Detail:     session.ID,
		Timestamp:  now,
	})
	s.log(ctx, slog.LevelInfo, "disclosure session created",
		"session_id", session.ID,
		"subject_id", session.SubjectID,
		"expires_at", session.ExpiresAt,
	)

	return &models.Handle{
		SessionID:     session.ID,
		Token:         session.Token,
		ExpiresAt:     session.ExpiresAt,
		SealedPayload: sealer.EncodeString(sealed),
		QRCode:        qrPNG,
	}, nil
}

// persistWithFreshToken draws tokens until the store accepts one, giving up
// after maxTokenAttempts collisions.
func (s *Service) persistWithFreshToken(ctx context.Context, req models.CreateRequest, sessionID string, now time.Time, ttl time.Duration, sealed []byte) (*models.Session, []byte, error) {
	for attempt := range s.maxTokenAttempts {
		token, err := secrets.GenerateFrom(s.random)
		if err != nil {
			return nil, nil, err
		}
		session, err := models.NewSession(sessionID, req.SubjectID, token, req.Categories, req.Purpose, now, ttl, sealed)
		if err != nil {
			return nil, nil, err
		}

		var qrPNG []byte
		if req.IncludeQR && s.qr != nil {
			if qrPNG, err = s.qr.Render(token); err != nil {
				return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to render qr code")
			}
		}

		err = s.store.Create(ctx, session)
		if err == nil {
			return session, qrPNG, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save session")
		}
		if s.metrics != nil {
			s.metrics.TokenCollisions.Inc()
		}
		s.log(ctx, slog.LevelWarn, "session token collision, regenerating",
			"session_id", sessionID,
			"attempt", attempt+1,
		)
	}
	return nil, nil, dErrors.New(dErrors.CodeInternal, "could not allocate a unique session token")
}

// ConsumeSession redeems a token exactly once and returns the unsealed
// payload. Concurrent consumers of one token see one success; the rest get
// SessionAlreadyUsed. A payload that fails to open leaves the session ACTIVE.
func (s *Service) ConsumeSession(ctx context.Context, token, consumer string) (payload *models.Payload, err error) {
	ctx, span := s.tracer.Start(ctx, "disclosure.ConsumeSession")
	var seen *models.Session
	defer func() {
		endSpan(span, err)
		s.recordConsume(err)
		s.auditConsume(ctx, seen, consumer, err)
	}()

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, dErrors.New(dErrors.CodeSessionNotFound, "session not found")
	}

	now := s.clock.Now()
	_, err = s.store.Update(ctx, token, func(session *models.Session) (bool, error) {
		seen = session.Clone()
		payload = nil

		switch session.Status {
		case models.StatusUsed:
			return false, dErrors.New(dErrors.CodeSessionAlreadyUsed, "session already used")
		case models.StatusCancelled:
			return false, dErrors.New(dErrors.CodeSessionCancelled, "session cancelled")
		case models.StatusExpired:
			return false, dErrors.New(dErrors.CodeSessionExpired, "session expired")
		}
		if session.Elapsed(now) {
			return session.Expire(), dErrors.New(dErrors.CodeSessionExpired, "session expired")
		}

		p, err := s.open(ctx, session.SealedPayload)
		if err != nil {
			return false, err
		}
		if err := session.MarkUsed(now, consumer); err != nil {
			return false, err
		}
		payload = p
		return true, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeSessionNotFound, "session not found")
		case dErrors.CodeOf(err) != dErrors.CodeInternal:
			return nil, err
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume session")
		}
	}
	span.SetAttributes(attribute.String("disclosure.session_id", seen.ID))
	return payload, nil
}

func (s *Service) open(ctx context.Context, sealed []byte) (*models.Payload, error) {
	plaintext, err := s.sealer.Open(ctx, sealed)
	if err != nil {
		return nil, dErrors.As(err, dErrors.CodeEncryptionFailure, "failed to open sealed payload")
	}
	var p models.Payload
	if err := json.Unmarshal(plaintext, &p); err != nil {
		return nil, dErrors.As(err, dErrors.CodeEncryptionFailure, "sealed payload is malformed")
	}
	return &p, nil
}

func (s *Service) auditConsume(ctx context.Context, session *models.Session, consumer string, err error) {
	entry := audit.Entry{
		Actor:     consumer,
		Resource:  audit.ResourceDisclosure,
		Action:    audit.ActionDisclosureConsume,
		Outcome:   audit.OutcomeSuccess,
		Timestamp: s.clock.Now(),
	}
	if entry.Actor == "" {
		entry.Actor = "anonymous"
	}
	if session != nil {
		entry.SubjectID = session.SubjectID
		entry.Categories = session.Categories
		entry.Purpose = session.Purpose
		entry.Detail = session.ID
	}
	if err != nil {
		entry.Outcome = audit.Failure(string(dErrors.CodeOf(err)))
	}
	s.emit(ctx, entry)
}

// CancelSession moves an ACTIVE session to CANCELLED. Sessions already in a
// terminal state, including ones that have just run out, fail with
// AlreadyTerminal.
func (s *Service) CancelSession(ctx context.Context, sessionID string) (view *models.View, err error) {
	ctx, span := s.tracer.Start(ctx, "disclosure.CancelSession", trace.WithAttributes(
		attribute.String("disclosure.session_id", sessionID),
	))
	var seen *models.Session
	defer func() {
		endSpan(span, err)
		entry := audit.Entry{
			Resource:  audit.ResourceDisclosure,
			Action:    audit.ActionDisclosureCancel,
			Outcome:   audit.OutcomeSuccess,
			Detail:    sessionID,
			Timestamp: s.clock.Now(),
		}
		if seen != nil {
			entry.SubjectID = seen.SubjectID
			entry.Categories = seen.Categories
		}
		entry.Actor = actorOr(ctx, entry.SubjectID)
		if err != nil {
			entry.Outcome = audit.Failure(string(dErrors.CodeOf(err)))
		}
		s.emit(ctx, entry)
	}()

	current, err := s.store.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeSessionNotFound, "session not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	seen = current

	now := s.clock.Now()
	updated, err := s.store.Update(ctx, current.Token, func(session *models.Session) (bool, error) {
		if session.Elapsed(now) {
			return session.Expire(), dErrors.New(dErrors.CodeAlreadyTerminal, "session already expired")
		}
		if session.Status.IsTerminal() {
			return false, dErrors.New(dErrors.CodeAlreadyTerminal,
				fmt.Sprintf("session already %s", strings.ToLower(string(session.Status))))
		}
		return true, session.Cancel()
	})
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeSessionNotFound, "session not found")
		case dErrors.CodeOf(err) != dErrors.CodeInternal:
			return nil, err
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to cancel session")
		}
	}
	if s.metrics != nil {
		s.metrics.SessionsCanceled.Inc()
	}
	return updated.ViewAt(now), nil
}

// SessionStatus returns a payload-free view with the effective status. It
// never writes.
func (s *Service) SessionStatus(ctx context.Context, sessionID string) (*models.View, error) {
	session, err := s.store.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeSessionNotFound, "session not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	return session.ViewAt(s.clock.Now()), nil
}

// actorOr prefers the authenticated principal over the fallback identity.
func actorOr(ctx context.Context, fallback string) string {
	if p := requestcontext.Principal(ctx); p != "" {
		return p
	}
	return fallback
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

func (s *Service) emit(ctx context.Context, entry audit.Entry) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, entry); err != nil {
		s.log(ctx, slog.LevelError, "failed to emit disclosure audit entry",
			"error", err,
			"action", entry.Action,
		)
	}
}

func (s *Service) recordCreate(err error, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordCreate(resultLabel(err), time.Since(start).Seconds())
	}
}

func (s *Service) recordConsume(err error) {
	if s.metrics != nil {
		s.metrics.RecordConsume(resultLabel(err))
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	return string(dErrors.CodeOf(err))
}

func (s *Service) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Log(ctx, level, msg, args...)
}
