package models

import (
	"slices"
	"time"

	dErrors "medshare/pkg/domain-errors"
	pstrings "medshare/pkg/platform/strings"
)

// Status is the lifecycle state of a disclosure session.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusExpired   Status = "EXPIRED"
	StatusUsed      Status = "USED"
	StatusCancelled Status = "CANCELLED"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusExpired || s == StatusUsed || s == StatusCancelled
}

func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusExpired, StatusUsed, StatusCancelled:
		return true
	}
	return false
}

const (
	MinTTLMinutes     = 1
	MaxTTLMinutes     = 60
	DefaultTTLMinutes = 15
	MaxCategories     = 10
)

// Session is one single-use disclosure materialized as a scannable token.
//
// Invariants:
//   - ExpiresAt = CreatedAt + TTL
//   - Status USED iff ConsumedAt is set
//   - terminal states are never left
type Session struct {
	ID            string
	SubjectID     string
	Token         string
	Categories    []string
	Purpose       string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	ConsumedAt    *time.Time
	ConsumedBy    string
	Status        Status
	SealedPayload []byte
}

// NewSession creates an ACTIVE session expiring ttl after createdAt.
func NewSession(id, subjectID, token string, categories []string, purpose string, createdAt time.Time, ttl time.Duration, sealed []byte) (*Session, error) {
	if id == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "session ID required")
	}
	if subjectID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "subject ID required")
	}
	if token == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "session token required")
	}
	if len(categories) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "at least one category required")
	}
	if ttl <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "ttl must be positive")
	}
	if len(sealed) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "sealed payload required")
	}
	return &Session{
		ID:            id,
		SubjectID:     subjectID,
		Token:         token,
		Categories:    slices.Clone(categories),
		Purpose:       purpose,
		CreatedAt:     createdAt,
		ExpiresAt:     createdAt.Add(ttl),
		Status:        StatusActive,
		SealedPayload: slices.Clone(sealed),
	}, nil
}

// EffectiveStatus reports the state at now. An ACTIVE session whose expiry
// is not after now reads as EXPIRED.
func (s Session) EffectiveStatus(now time.Time) Status {
	if s.Status == StatusActive && !s.ExpiresAt.After(now) {
		return StatusExpired
	}
	return s.Status
}

// Elapsed reports whether an ACTIVE session has run past its expiry.
func (s Session) Elapsed(now time.Time) bool {
	return s.Status == StatusActive && !s.ExpiresAt.After(now)
}

// Expire moves an ACTIVE session to EXPIRED. It reports whether the session changed.
func (s *Session) Expire() bool {
	if s.Status != StatusActive {
		return false
	}
	s.Status = StatusExpired
	return true
}

// MarkUsed moves an ACTIVE session to USED and records the consumer.
func (s *Session) MarkUsed(now time.Time, consumer string) error {
	if s.Status != StatusActive {
		return dErrors.New(dErrors.CodeInvariantViolation, "only active sessions can be consumed")
	}
	s.Status = StatusUsed
	s.ConsumedAt = &now
	s.ConsumedBy = consumer
	return nil
}

// Cancel moves an ACTIVE session to CANCELLED.
func (s *Session) Cancel() error {
	if s.Status != StatusActive {
		return dErrors.New(dErrors.CodeInvariantViolation, "only active sessions can be cancelled")
	}
	s.Status = StatusCancelled
	return nil
}

// PurgePayload drops the sealed payload of a terminal session. It reports
// whether anything was removed.
func (s *Session) PurgePayload() bool {
	if !s.Status.IsTerminal() || s.SealedPayload == nil {
		return false
	}
	s.SealedPayload = nil
	return true
}

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Categories = slices.Clone(s.Categories)
	c.SealedPayload = slices.Clone(s.SealedPayload)
	if s.ConsumedAt != nil {
		t := *s.ConsumedAt
		c.ConsumedAt = &t
	}
	return &c
}

// NormalizeCategories trims, upper-cases and de-duplicates tags.
func NormalizeCategories(categories []string) []string {
	return pstrings.DedupeAndTrimUpper(categories)
}

// CreateRequest is the input for issuing a disclosure session.
type CreateRequest struct {
	SubjectID  string   `validate:"notblank"`
	Categories []string `validate:"min=1,max=10,dive,notblank"`
	TTLMinutes int
	Purpose    string
	// IncludeQR asks for a PNG rendering of the token in the Handle.
	IncludeQR bool
}

// Payload is the plaintext sealed into a session. It never leaves the
// engine unsealed except to the consumer of the session.
type Payload struct {
	SessionID  string    `json:"session_id"`
	SubjectID  string    `json:"subject_id"`
	Categories []string  `json:"categories"`
	Purpose    string    `json:"purpose"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Handle is returned to the data holder after a session is created.
type Handle struct {
	SessionID     string
	Token         string
	ExpiresAt     time.Time
	SealedPayload string
	QRCode        []byte
}

// View is a payload-free snapshot of a session for status queries.
type View struct {
	ID         string
	SubjectID  string
	Categories []string
	Purpose    string
	Status     Status
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	ConsumedBy string
}

// ViewAt projects s with its effective status at now.
func (s *Session) ViewAt(now time.Time) *View {
	c := s.Clone()
	return &View{
		ID:         c.ID,
		SubjectID:  c.SubjectID,
		Categories: c.Categories,
		Purpose:    c.Purpose,
		Status:     c.EffectiveStatus(now),
		CreatedAt:  c.CreatedAt,
		ExpiresAt:  c.ExpiresAt,
		ConsumedAt: c.ConsumedAt,
		ConsumedBy: c.ConsumedBy,
	}
}

// ReclaimResult summarizes one maintenance pass over stored sessions.
type ReclaimResult struct {
	Expired int
	Purged  int
}
