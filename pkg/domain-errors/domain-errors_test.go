package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

// DomainErrorsSuite tests the domain error primitives.
//
// Callers distinguish disclosure failures purely by code, so matching and
// wrapping rules are invariants worth pinning down.
type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestErrorInterface() {
	s.Run("returns message when present", func() {
		err := &Error{Code: CodeSessionNotFound, Message: "disclosure session not found"}
		s.Equal("disclosure session not found", err.Error())
	})

	s.Run("returns code when message is empty", func() {
		err := &Error{Code: CodeSessionExpired}
		s.Equal("session_expired", err.Error())
	})
}

func (s *DomainErrorsSuite) TestIsMatching() {
	s.Run("matches by code only", func() {
		err1 := &Error{Code: CodeConsentDenied, Message: "category VITALS not covered"}
		err2 := &Error{Code: CodeConsentDenied, Message: "no active consent"}
		s.True(err1.Is(err2))
	})

	s.Run("does not match different codes", func() {
		err1 := &Error{Code: CodeSessionAlreadyUsed}
		err2 := &Error{Code: CodeSessionCancelled}
		s.False(err1.Is(err2))
	})

	s.Run("does not match non-domain errors", func() {
		err1 := &Error{Code: CodeNotFound}
		s.False(err1.Is(errors.New("not found")))
	})

	s.Run("works with errors.Is through chain", func() {
		inner := &Error{Code: CodeAuthenticationFailure, Message: "tag mismatch"}
		wrapped := &Error{Code: CodeEncryptionFailure, Message: "open payload", Err: inner}
		s.True(errors.Is(wrapped, &Error{Code: CodeAuthenticationFailure}))
		s.True(errors.Is(wrapped, &Error{Code: CodeEncryptionFailure}))
	})
}

func (s *DomainErrorsSuite) TestWrap() {
	s.Run("preserves original domain code when wrapping domain error", func() {
		wrapped := Wrap(New(CodeMissingKey, "no key configured"), CodeInternal, "sealer unavailable")

		var domainErr *Error
		s.Require().True(errors.As(wrapped, &domainErr))
		s.Equal(CodeMissingKey, domainErr.Code)
		s.Equal("sealer unavailable", domainErr.Message)
	})

	s.Run("uses provided code when wrapping non-domain error", func() {
		original := errors.New("redis timeout")
		wrapped := Wrap(original, CodeInternal, "failed to load session")

		s.True(HasCode(wrapped, CodeInternal))
		s.True(errors.Is(wrapped, original))
	})
}

func (s *DomainErrorsSuite) TestAs() {
	s.Run("overrides an existing domain code", func() {
		err := As(New(CodeAuthenticationFailure, "tag mismatch"), CodeEncryptionFailure, "failed to open payload")
		s.True(HasCode(err, CodeEncryptionFailure))
		s.True(errors.Is(err, &Error{Code: CodeAuthenticationFailure}))
	})
}

func (s *DomainErrorsSuite) TestHasCodeAndCodeOf() {
	s.Run("finds code through fmt wrapping", func() {
		err := fmt.Errorf("consume: %w", New(CodeSessionAlreadyUsed, "already used"))
		s.True(HasCode(err, CodeSessionAlreadyUsed))
		s.Equal(CodeSessionAlreadyUsed, CodeOf(err))
	})

	s.Run("non-domain errors map to internal", func() {
		s.False(HasCode(errors.New("boom"), CodeNotFound))
		s.Equal(CodeInternal, CodeOf(errors.New("boom")))
	})

	s.Run("returns false for nil error", func() {
		s.False(HasCode(nil, CodeNotFound))
	})
}
