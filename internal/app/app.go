// Package app assembles the service graph from configuration. Memory-backed
// stores are used for any backend whose URL is not configured.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"medshare/internal/audit"
	auditmetrics "medshare/internal/audit/metrics"
	kafkasink "medshare/internal/audit/sink/kafka"
	auditpg "medshare/internal/audit/store/postgres"
	authhandler "medshare/internal/auth/handler"
	authmetrics "medshare/internal/auth/metrics"
	authmodels "medshare/internal/auth/models"
	authservice "medshare/internal/auth/service"
	credentialstore "medshare/internal/auth/store"
	"medshare/internal/auth/token"
	"medshare/internal/auth/verifier"
	compliancehandler "medshare/internal/compliance/handler"
	compliancemetrics "medshare/internal/compliance/metrics"
	compliancemodels "medshare/internal/compliance/models"
	complianceservice "medshare/internal/compliance/service"
	compliancestore "medshare/internal/compliance/store"
	consenthandler "medshare/internal/consent/handler"
	consentmetrics "medshare/internal/consent/metrics"
	consentservice "medshare/internal/consent/service"
	consentstore "medshare/internal/consent/store"
	disclosurehandler "medshare/internal/disclosure/handler"
	disclosuremetrics "medshare/internal/disclosure/metrics"
	"medshare/internal/disclosure/qr"
	disclosureservice "medshare/internal/disclosure/service"
	disclosurestore "medshare/internal/disclosure/store"
	"medshare/internal/disclosure/workers/cleanup"
	"medshare/internal/platform/config"
	"medshare/internal/platform/database"
	"medshare/internal/platform/health"
	"medshare/internal/platform/kafka/producer"
	platformmetrics "medshare/internal/platform/metrics"
	platformredis "medshare/internal/platform/redis"
	"medshare/internal/sealer"
	httptransport "medshare/internal/transport/http"
	"medshare/migrations"
	"medshare/pkg/platform/circuit"
	"medshare/pkg/platform/clock"
	"medshare/pkg/platform/middleware/metadata"
	"medshare/pkg/platform/middleware/request"
	"medshare/pkg/secrets"
)

// App is a fully wired server.
type App struct {
	Handler http.Handler
	Cleanup *cleanup.SessionCleanupService
	Redis   *platformredis.Client

	closers []func() error
}

// Option adjusts construction, mainly for tests.
type Option func(*options)

type options struct {
	clock    clock.Clock
	registry *prometheus.Registry
	version  string
}

func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

type stores struct {
	consent     consentservice.Store
	sessions    sessionBackend
	lockout     complianceservice.Store
	audit       audit.Store
	credentials credentialStore
}

type credentialStore interface {
	verifier.CredentialStore
	Save(ctx context.Context, c authmodels.Credential) error
}

// sessionBackend is what the disclosure service and the cleanup worker need
// from one session store.
type sessionBackend interface {
	disclosureservice.Store
	cleanup.SessionStore
}

// New builds the application. A missing or malformed encryption key is
// fatal; every other backend degrades to memory when unconfigured.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	o := options{clock: clock.Real{}, version: health.Version}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = platformmetrics.NewRegistry(o.version)
	}
	reg := o.registry
	a := &App{}

	keys, err := sealer.KeyFromBase64(cfg.Security.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("load encryption key: %w", err)
	}
	seal := sealer.New(keys)
	if err := seal.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate encryption key: %w", err)
	}

	healthHandler := health.New(cfg.Server.Environment, health.WithClock(o.clock), health.WithLogger(logger))

	pool, err := database.New(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	var db *sql.DB
	if pool != nil {
		a.closers = append(a.closers, pool.Close)
		db = pool.DB()
		if err := migrations.Apply(ctx, db); err != nil {
			a.Close() //nolint:errcheck // best-effort cleanup on init failure
			return nil, err
		}
		if err := platformmetrics.RegisterDBStats(reg, db); err != nil {
			logger.Warn("database stats collector not registered", "error", err)
		}
		healthHandler.RegisterCheck("postgres", pool.Health)
	}

	rc, err := platformredis.New(ctx, cfg.Redis, platformredis.NewPoolMetrics(reg))
	if err != nil {
		a.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, err
	}
	if rc != nil {
		a.Redis = rc
		a.closers = append(a.closers, rc.Close)
		healthHandler.RegisterCheck("redis", rc.Health)
	}

	st := buildStores(db, rc)

	auditOpts := []audit.PublisherOption{
		audit.WithPublisherLogger(logger),
		audit.WithMetrics(auditmetrics.New(reg)),
		audit.WithClock(o.clock),
	}
	if cfg.Disclosure.AuditBuffer > 0 {
		auditOpts = append(auditOpts, audit.WithAsyncBuffer(cfg.Disclosure.AuditBuffer))
	}
	if strings.TrimSpace(cfg.Kafka.Brokers) != "" {
		prod, err := producer.New(producer.DefaultConfig(cfg.Kafka.Brokers), logger)
		if err != nil {
			a.Close() //nolint:errcheck // best-effort cleanup on init failure
			return nil, err
		}
		a.closers = append(a.closers, prod.Close)
		healthHandler.RegisterCheck("kafka", prod.Ping)
		auditOpts = append(auditOpts, audit.WithSinks(kafkasink.New(prod, cfg.Kafka.AuditTopic,
			kafkasink.WithBreaker(circuit.New("audit-kafka", circuit.WithClock(o.clock))),
			kafkasink.WithLogger(logger),
		)))
	}
	ledger := audit.NewPublisher(st.audit, auditOpts...)
	a.closers = append(a.closers, func() error { ledger.Close(); return nil })

	consentSvc := consentservice.NewService(st.consent, ledger,
		consentservice.WithLogger(logger),
		consentservice.WithMetrics(consentmetrics.New(reg)),
		consentservice.WithClock(o.clock),
		consentservice.WithMinPurposeLength(cfg.Compliance.MinPurposeLength),
	)

	complianceSvc, err := complianceservice.New(st.lockout, ledger, consentSvc,
		complianceservice.WithLogger(logger),
		complianceservice.WithMetrics(compliancemetrics.New(reg)),
		complianceservice.WithClock(o.clock),
		complianceservice.WithPolicy(compliancemodels.Policy{
			Threshold:       cfg.Compliance.LockoutThreshold,
			LockoutDuration: cfg.Compliance.LockoutDuration,
			FailureWindow:   cfg.Compliance.FailureWindow,
		}),
	)
	if err != nil {
		a.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, err
	}

	disclosureMetrics := disclosuremetrics.New(reg)
	disclosureSvc, err := disclosureservice.New(st.sessions, seal, consentSvc, ledger,
		disclosureservice.WithLogger(logger),
		disclosureservice.WithMetrics(disclosureMetrics),
		disclosureservice.WithClock(o.clock),
		disclosureservice.WithQRRenderer(qr.New()),
	)
	if err != nil {
		a.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, err
	}
	a.Cleanup = cleanup.New(st.sessions,
		cleanup.WithLogger(logger),
		cleanup.WithInterval(cfg.Disclosure.CleanupInterval),
		cleanup.WithMetrics(disclosureMetrics),
		cleanup.WithClock(o.clock),
	)

	tokens, err := token.NewJWTService(cfg.Security.JWTSigningKey, cfg.Security.JWTIssuer, cfg.Security.JWTAudience,
		token.WithTTL(cfg.Security.TokenTTL),
		token.WithClock(o.clock),
	)
	if err != nil {
		a.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, err
	}
	authSvc, err := authservice.New(verifier.New(st.credentials), complianceSvc, tokens, ledger,
		authservice.WithLogger(logger),
		authservice.WithMetrics(authmetrics.New(reg)),
		authservice.WithClock(o.clock),
	)
	if err != nil {
		a.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, err
	}
	if err := SeedCredentials(ctx, st.credentials, cfg.Seed.Credentials); err != nil {
		a.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, err
	}

	proxies, err := metadata.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		a.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}

	a.Handler = httptransport.NewRouter(httptransport.Deps{
		Logger:         logger,
		Registry:       reg,
		RequestMetrics: request.NewMetrics(reg),
		Tokens:         token.NewMiddlewareAdapter(tokens),
		TrustedProxies: proxies,
		Production:     cfg.IsProduction(),
		LoginRateLimit: cfg.Server.LoginRateLimit,
		ScanRateLimit:  cfg.Server.ScanRateLimit,
		Health:         healthHandler,
		Auth:           authhandler.New(authSvc, logger),
		Consent:        consenthandler.New(consentSvc, logger),
		Audit:          compliancehandler.New(complianceSvc, ledger, logger),
		Disclosures:    disclosurehandler.New(disclosureSvc, logger),
	})
	return a, nil
}

func buildStores(db *sql.DB, rc *platformredis.Client) stores {
	var st stores
	if db != nil {
		st.consent = consentstore.NewPostgres(db)
		st.audit = auditpg.New(db)
		st.credentials = credentialstore.NewPostgres(db)
	} else {
		st.consent = consentstore.NewInMemory()
		st.audit = audit.NewInMemoryStore()
		st.credentials = credentialstore.NewInMemory()
	}

	if rc != nil {
		st.sessions = disclosurestore.NewRedis(rc.Client)
		st.lockout = compliancestore.NewRedis(rc.Client)
	} else {
		st.sessions = disclosurestore.NewInMemory()
		st.lockout = compliancestore.NewInMemory()
	}
	return st
}

// SeedCredentials stores "email:password:ROLE" entries, hashing each
// password with bcrypt.
func SeedCredentials(ctx context.Context, store credentialStore, entries []string) error {
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return errors.New("seed credential must be email:password:ROLE")
		}
		role := authmodels.Role(strings.ToUpper(strings.TrimSpace(parts[2])))
		if !role.IsValid() {
			return fmt.Errorf("seed credential for %q has unknown role %q", parts[0], parts[2])
		}
		hash, err := secrets.Hash(parts[1])
		if err != nil {
			return fmt.Errorf("hash seed credential: %w", err)
		}
		if err := store.Save(ctx, authmodels.Credential{
			Identity:     authmodels.NormalizeIdentity(parts[0]),
			PasswordHash: hash,
			Role:         role,
		}); err != nil {
			return fmt.Errorf("save seed credential: %w", err)
		}
	}
	return nil
}

// Close releases backends in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
