package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "medshare/pkg/domain-errors"
)

type createRequest struct {
	SubjectID  string   `validate:"notblank"`
	Categories []string `validate:"min=1,max=3,dive,notblank"`
	TTLMinutes int      `validate:"gte=1,lte=60"`
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(createRequest{SubjectID: "p1", Categories: []string{"VITALS"}, TTLMinutes: 15}))

	tests := []struct {
		name string
		req  createRequest
		msg  string
	}{
		{"blank subject", createRequest{SubjectID: "  ", Categories: []string{"A"}, TTLMinutes: 1}, "subject_id must not be blank"},
		{"no categories", createRequest{SubjectID: "p1", TTLMinutes: 1}, "categories must contain at least 1 item(s)"},
		{"too many", createRequest{SubjectID: "p1", Categories: []string{"A", "B", "C", "D"}, TTLMinutes: 1}, "categories must contain at most 3 items"},
		{"ttl high", createRequest{SubjectID: "p1", Categories: []string{"A"}, TTLMinutes: 61}, "ttl_minutes must be at most 60"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.req)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.Equal(t, tt.msg, err.Error())
		})
	}
}

func TestToSnakeCase(t *testing.T) {
	assert.Equal(t, "subject_id", toSnakeCase("SubjectID"))
	assert.Equal(t, "ttl_minutes", toSnakeCase("TTLMinutes"))
	assert.Equal(t, "purpose", toSnakeCase("Purpose"))
}
