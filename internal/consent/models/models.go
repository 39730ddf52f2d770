package models

import (
	"slices"
	"strings"
	"time"

	dErrors "medshare/pkg/domain-errors"
	pstrings "medshare/pkg/platform/strings"
)

// Status is the stored lifecycle state of a consent record.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusExpired Status = "EXPIRED"
	StatusRevoked Status = "REVOKED"
	StatusPending Status = "PENDING"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusExpired, StatusRevoked, StatusPending:
		return true
	}
	return false
}

// Well-known category tags. Tags are opaque to the engine; these exist so
// clients and tests share spelling.
const (
	CategoryDemographics  = "DEMOGRAPHICS"
	CategoryVitals        = "VITALS"
	CategoryMedications   = "MEDICATIONS"
	CategoryAllergies     = "ALLERGIES"
	CategoryConditions    = "CONDITIONS"
	CategoryLabResults    = "LAB_RESULTS"
	CategoryImmunizations = "IMMUNIZATIONS"
	CategoryProcedures    = "PROCEDURES"
	CategoryDocuments     = "DOCUMENTS"
)

// Record captures a subject's authorization to disclose a set of categories.
//
// Records are never deleted. Revocation sets Status to REVOKED and stamps
// RevokedAt; expiry is derived from ExpiresAt at read time and never written
// back by readers.
type Record struct {
	ID         string
	SubjectID  string
	GranteeID  string
	Categories []string
	Status     Status
	Purpose    string
	GrantedAt  time.Time
	ExpiresAt  *time.Time
	RevokedAt  *time.Time
}

// NewRecord creates an ACTIVE record with domain invariant checks.
func NewRecord(id, subjectID, granteeID string, categories []string, purpose string, grantedAt time.Time, expiresAt *time.Time) (*Record, error) {
	if id == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "consent ID required")
	}
	if subjectID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "subject ID required")
	}
	if len(categories) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "at least one category required")
	}
	if strings.TrimSpace(purpose) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "purpose required")
	}
	if grantedAt.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "grant time required")
	}
	if expiresAt != nil && !expiresAt.After(grantedAt) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "expiry must be after grant time")
	}
	return &Record{
		ID:         id,
		SubjectID:  subjectID,
		GranteeID:  granteeID,
		Categories: slices.Clone(categories),
		Status:     StatusActive,
		Purpose:    purpose,
		GrantedAt:  grantedAt,
		ExpiresAt:  expiresAt,
	}, nil
}

// EffectiveStatus reports the lifecycle state at now. An ACTIVE record whose
// expiry is not after now reads as EXPIRED.
func (r Record) EffectiveStatus(now time.Time) Status {
	if r.Status == StatusRevoked || r.RevokedAt != nil {
		return StatusRevoked
	}
	if r.Status != StatusActive {
		return r.Status
	}
	if r.ExpiresAt != nil && !r.ExpiresAt.After(now) {
		return StatusExpired
	}
	return StatusActive
}

// Qualifies reports whether the record can authorize a disclosure at now.
func (r Record) Qualifies(now time.Time) bool {
	return r.EffectiveStatus(now) == StatusActive
}

// Covers reports whether category is among the record's tags.
func (r Record) Covers(category string) bool {
	return slices.Contains(r.Categories, category)
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Categories = slices.Clone(r.Categories)
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		c.ExpiresAt = &t
	}
	if r.RevokedAt != nil {
		t := *r.RevokedAt
		c.RevokedAt = &t
	}
	return &c
}

// NormalizeCategories trims, upper-cases and de-duplicates tags, keeping the
// first occurrence order. Blank tags are dropped.
func NormalizeCategories(categories []string) []string {
	return pstrings.DedupeAndTrimUpper(categories)
}

// GrantRequest is the input for creating a consent record.
type GrantRequest struct {
	SubjectID  string     `validate:"notblank"`
	GranteeID  string     `validate:"omitempty,max=128"`
	Categories []string   `validate:"min=1,max=10,dive,notblank"`
	Purpose    string     `validate:"notblank"`
	ExpiresAt  *time.Time `validate:"omitempty"`
}
