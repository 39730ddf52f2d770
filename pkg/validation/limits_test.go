package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "medshare/pkg/domain-errors"
)

// LimitsSuite covers the boundary validators: max passes, max+1 fails.
type LimitsSuite struct {
	suite.Suite
}

func TestLimitsSuite(t *testing.T) {
	suite.Run(t, new(LimitsSuite))
}

func (s *LimitsSuite) TestCheckSliceCount() {
	s.NoError(CheckSliceCount("categories", 10, 10))
	s.NoError(CheckSliceCount("categories", 0, 10))

	err := CheckSliceCount("categories", 11, 10)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Contains(err.Error(), "too many categories: max 10 allowed")
}

func (s *LimitsSuite) TestCheckStringLength() {
	s.NoError(CheckStringLength("token", strings.Repeat("a", MaxTokenLength), MaxTokenLength))
	s.NoError(CheckStringLength("token", "", MaxTokenLength))

	err := CheckStringLength("token", strings.Repeat("a", MaxTokenLength+1), MaxTokenLength)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Contains(err.Error(), "token exceeds max length of 128")
}

func (s *LimitsSuite) TestCheckEachStringLength() {
	s.NoError(CheckEachStringLength("category", []string{"VITALS", strings.Repeat("a", 64)}, 64))
	s.NoError(CheckEachStringLength("category", nil, 64))

	err := CheckEachStringLength("category", []string{"VITALS", strings.Repeat("a", 65), strings.Repeat("b", 70)}, 64)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Contains(err.Error(), "category exceeds max length of 64")
}
