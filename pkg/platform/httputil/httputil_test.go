package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "medshare/pkg/domain-errors"
	"medshare/pkg/requestcontext"
)

func TestWriteError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantDesc   bool
	}{
		{"consent denied", dErrors.New(dErrors.CodeConsentDenied, "no consent"), http.StatusForbidden, "consent_denied", true},
		{"account locked", dErrors.New(dErrors.CodeAccountLocked, "try later"), http.StatusLocked, "account_locked", true},
		{"already used", dErrors.New(dErrors.CodeSessionAlreadyUsed, "used"), http.StatusConflict, "session_already_used", true},
		{"expired", dErrors.New(dErrors.CodeSessionExpired, "expired"), http.StatusGone, "session_expired", true},
		{"invalid ttl", dErrors.New(dErrors.CodeInvalidTTL, "ttl"), http.StatusBadRequest, "invalid_ttl", true},
		{"validation", dErrors.New(dErrors.CodeValidation, "purpose is required"), http.StatusBadRequest, "validation_error", true},
		{"encryption failure hides message", dErrors.New(dErrors.CodeEncryptionFailure, "key rotated"), http.StatusInternalServerError, "internal_error", false},
		{"internal hides message", dErrors.New(dErrors.CodeInternal, "db down"), http.StatusInternalServerError, "internal_error", false},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "internal_error", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tc.err)

			assert.Equal(t, tc.wantStatus, w.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.wantCode, body["error"])
			_, hasDesc := body["error_description"]
			assert.Equal(t, tc.wantDesc, hasDesc)
		})
	}
}

func TestRequirePrincipal(t *testing.T) {
	_, err := RequirePrincipal(context.Background(), nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))

	got, err := RequirePrincipal(requestcontext.WithPrincipal(context.Background(), "patient-1"), nil)
	require.NoError(t, err)
	assert.Equal(t, "patient-1", got)
}
