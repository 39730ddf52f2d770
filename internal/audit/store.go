package audit

import (
	"context"
)

// Store is the append-only ledger backend. Implementations must never expose
// update or delete operations.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	// List returns entries matching filter in append order.
	List(ctx context.Context, filter Filter) ([]Entry, error)
}

// Sink receives a copy of every persisted entry. Sinks are best-effort:
// their failures are logged and never surface to the emitter.
type Sink interface {
	Deliver(ctx context.Context, entry Entry) error
}
