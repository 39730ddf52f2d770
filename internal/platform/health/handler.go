// Package health serves liveness, readiness and status probes.
package health

import (
	"context"
	"log/slog"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"medshare/pkg/platform/clock"
	"medshare/pkg/platform/httputil"
)

// Version is set at build time via ldflags.
var Version = "dev"

// CheckFunc reports whether a dependency is reachable.
type CheckFunc func(ctx context.Context) error

const checkTimeout = 2 * time.Second

// Handler serves the probes. Readiness runs every registered check in
// parallel under one deadline.
type Handler struct {
	startTime   time.Time
	environment string
	clock       clock.Clock
	logger      *slog.Logger

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

type Option func(*Handler)

func WithClock(c clock.Clock) Option {
	return func(h *Handler) {
		if c != nil {
			h.clock = c
		}
	}
}

// WithLogger records failing checks. Probe responses only say "down".
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func New(environment string, opts ...Option) *Handler {
	h := &Handler{
		environment: environment,
		clock:       clock.Real{},
		logger:      slog.Default(),
		checks:      make(map[string]CheckFunc),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.startTime = h.clock.Now()
	return h
}

// RegisterCheck adds a named dependency check to the readiness probe.
func (h *Handler) RegisterCheck(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HandleStatus)
	r.Get("/health/live", h.HandleLiveness)
	r.Get("/health/ready", h.HandleReadiness)
}

type LivenessResponse struct {
	Status string `json:"status"`
}

func (h *Handler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, LivenessResponse{
		Status: "alive",
	})
}

type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	results := h.runChecks(r.Context())

	response := ReadinessResponse{
		Status: "ready",
		Checks: make(map[string]string, len(results)),
	}
	for name, err := range results {
		if err != nil {
			h.logger.WarnContext(r.Context(), "readiness check failed",
				"check", name,
				"error", err,
			)
			response.Checks[name] = "down"
			response.Status = "not_ready"
			continue
		}
		response.Checks[name] = "up"
	}

	if response.Status != "ready" {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, response)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, response)
}

func (h *Handler) runChecks(ctx context.Context) map[string]error {
	h.mu.RLock()
	checks := maps.Clone(h.checks)
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		g       errgroup.Group
		results = make(map[string]error, len(checks))
	)
	for name, check := range checks {
		g.Go(func() error {
			err := check(ctx)
			mu.Lock()
			results[name] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // checks never fail the group
	return results
}

type StatusResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Environment   string `json:"environment"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Timestamp     string `json:"timestamp"`
}

func (h *Handler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	now := h.clock.Now()
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{
		Status:        "healthy",
		Version:       Version,
		Environment:   h.environment,
		UptimeSeconds: int64(now.Sub(h.startTime).Seconds()),
		Timestamp:     now.UTC().Format(time.RFC3339),
	})
}
