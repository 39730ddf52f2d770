package audit

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"medshare/internal/audit/metrics"
	dErrors "medshare/pkg/domain-errors"
	"medshare/pkg/platform/clock"
	"medshare/pkg/requestcontext"
)

// Publisher appends entries to the ledger store and fans them out to
// optional sinks. In async mode a single worker drains a FIFO queue, so each
// emitter's entries are persisted in the order it produced them.
type Publisher struct {
	store   Store
	sinks   []Sink
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	closed  bool
	async   bool
	entries chan Entry
	wg      sync.WaitGroup
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithAsyncBuffer enables async processing with the specified buffer size.
// Emit blocks while the buffer is full instead of dropping entries.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.entries = make(chan Entry, size)
			p.async = true
		}
	}
}

// WithPublisherLogger sets a logger for persistence and sink errors.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithSinks adds best-effort secondary destinations.
func WithSinks(sinks ...Sink) PublisherOption {
	return func(p *Publisher) {
		p.sinks = append(p.sinks, sinks...)
	}
}

func WithClock(c clock.Clock) PublisherOption {
	return func(p *Publisher) {
		if c != nil {
			p.clock = c
		}
	}
}

func WithMetrics(m *metrics.Metrics) PublisherOption {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store, clock: clock.Real{}}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.processEntries()
	}
	return p
}

func (p *Publisher) processEntries() {
	defer p.wg.Done()
	for entry := range p.entries {
		p.metrics.DecQueueDepth()
		if err := p.persist(context.Background(), entry); err != nil {
			p.logError(context.Background(), "failed to persist audit entry", err, entry)
		}
	}
}

// Close stops accepting entries and waits for the queue to drain.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	if p.async {
		close(p.entries)
		p.wg.Wait()
	}
}

// Emit records entry. A zero Timestamp is stamped from the publisher clock,
// an empty Outcome defaults to SUCCESS and missing request metadata is taken
// from ctx.
func (p *Publisher) Emit(ctx context.Context, entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = p.clock.Now()
	}
	if strings.TrimSpace(entry.Outcome) == "" {
		entry.Outcome = OutcomeSuccess
	}
	enrich(ctx, &entry)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return dErrors.New(dErrors.CodeInternal, "audit publisher is closed")
	}

	if p.async {
		select {
		case p.entries <- entry:
			p.metrics.IncQueueDepth()
			return nil
		case <-ctx.Done():
			return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "audit queue full")
		}
	}
	return p.persist(ctx, entry)
}

// Query returns ledger entries matching filter in append order. It has no
// side effects.
func (p *Publisher) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	if filter.Limit < 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "limit must not be negative")
	}
	if !filter.Since.IsZero() && !filter.Until.IsZero() && filter.Until.Before(filter.Since) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "until must not be before since")
	}
	entries, err := p.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to query audit log")
	}
	return entries, nil
}

func (p *Publisher) persist(ctx context.Context, entry Entry) error {
	start := time.Now()
	err := p.store.Append(ctx, entry)
	p.metrics.ObservePersistDuration(time.Since(start).Seconds())
	if err != nil {
		p.metrics.IncPersistFailures()
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append audit entry")
	}

	outcome := "success"
	if !entry.Succeeded() {
		outcome = "failure"
	}
	p.metrics.IncAppended(string(entry.Resource), outcome)

	for _, sink := range p.sinks {
		if err := sink.Deliver(ctx, entry); err != nil {
			p.metrics.IncSinkFailures()
			p.logError(ctx, "audit sink delivery failed", err, entry)
		}
	}
	return nil
}

func enrich(ctx context.Context, e *Entry) {
	if e.RequestID == "" {
		e.RequestID = requestcontext.RequestID(ctx)
	}
	if e.SourceAddress == "" {
		e.SourceAddress = requestcontext.ClientIP(ctx)
	}
	if e.Device == "" {
		e.Device = requestcontext.Device(ctx)
	}
}

func (p *Publisher) logError(ctx context.Context, msg string, err error, entry Entry) {
	if p.logger == nil {
		return
	}
	p.logger.ErrorContext(ctx, msg,
		"error", err,
		"resource", entry.Resource,
		"action", entry.Action,
		"actor", entry.Actor,
	)
}
