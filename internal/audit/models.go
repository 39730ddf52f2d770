package audit

import (
	"strings"
	"time"
)

// Entry is one immutable line of the compliance ledger. It never carries
// disclosure payloads or credentials, only identifiers and category tags.
type Entry struct {
	Actor         string
	Resource      Resource
	Action        Action
	Outcome       string
	SourceAddress string
	Timestamp     time.Time

	SubjectID  string
	Categories []string
	Purpose    string
	Detail     string
	RequestID  string
	Device     string
}

// Succeeded reports whether the entry records a successful operation.
func (e Entry) Succeeded() bool {
	return e.Outcome == OutcomeSuccess
}

type Resource string

const (
	ResourceLogin      Resource = "LOGIN"
	ResourceDisclosure Resource = "DISCLOSURE_SESSION"
	ResourceConsent    Resource = "CONSENT"
	ResourcePHI        Resource = "PHI_ACCESS"
)

type Action string

const (
	ActionLoginSuccess      Action = "SUCCESS"
	ActionFailedAttempt     Action = "FAILED_ATTEMPT"
	ActionAccountLocked     Action = "ACCOUNT_LOCKED"
	ActionLoginBlocked      Action = "BLOCKED"
	ActionDisclosureCreate  Action = "DISCLOSURE_CREATE"
	ActionDisclosureConsume Action = "DISCLOSURE_CONSUME"
	ActionDisclosureCancel  Action = "DISCLOSURE_CANCEL"
	ActionConsentGrant      Action = "CONSENT_GRANT"
	ActionConsentRevoke     Action = "CONSENT_REVOKE"
	ActionDataAccess        Action = "DATA_ACCESS"
)

const (
	OutcomeSuccess = "SUCCESS"
	OutcomeFailure = "FAILURE"
)

// Failure formats a failure outcome as "FAILURE: <reason>".
func Failure(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return OutcomeFailure
	}
	return OutcomeFailure + ": " + reason
}

// FailureReason extracts the reason from a failure outcome. It returns "" for
// successful outcomes.
func FailureReason(outcome string) string {
	rest, ok := strings.CutPrefix(outcome, OutcomeFailure)
	if !ok {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(rest, ":"))
}

// Filter narrows a ledger query. Zero fields match everything.
type Filter struct {
	Actor     string
	SubjectID string
	Resource  Resource
	Action    Action
	Since     time.Time
	Until     time.Time
	Limit     int
}

// Matches reports whether e satisfies every non-zero field of f. Since is
// inclusive, Until exclusive.
func (f Filter) Matches(e Entry) bool {
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if f.SubjectID != "" && e.SubjectID != f.SubjectID {
		return false
	}
	if f.Resource != "" && e.Resource != f.Resource {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !e.Timestamp.Before(f.Until) {
		return false
	}
	return true
}
