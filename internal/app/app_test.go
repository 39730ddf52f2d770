package app

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"medshare/internal/platform/config"
	"medshare/pkg/platform/clock"
)

const (
	patientEmail    = "patient@example.com"
	patientPassword = "correct horse battery"
	providerEmail   = "dr.lee@clinic.example"
	providerPass    = "stethoscope-42"
	carePurpose     = "follow-up cardiology appointment"
)

type AppSuite struct {
	suite.Suite
	clock *clock.Fake
	app   *App
}

func TestAppSuite(t *testing.T) {
	suite.Run(t, new(AppSuite))
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.Server{
			Environment:    "test",
			LoginRateLimit: 1000,
			ScanRateLimit:  1000,
		},
		Security: config.Security{
			EncryptionKey: base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32)),
			JWTSigningKey: "test-signing-key-that-is-long-enough",
			JWTIssuer:     "medshare",
			JWTAudience:   "medshare-api",
			TokenTTL:      2 * time.Hour,
		},
		Compliance: config.Compliance{
			LockoutThreshold: 3,
			LockoutDuration:  30 * time.Minute,
			MinPurposeLength: 10,
		},
		Disclosure: config.Disclosure{
			CleanupInterval: time.Minute,
		},
		Seed: config.Seed{Credentials: []string{
			patientEmail + ":" + patientPassword + ":PATIENT",
			providerEmail + ":" + providerPass + ":provider",
		}},
	}
}

func (s *AppSuite) SetupTest() {
	s.clock = clock.NewFake(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	a, err := New(s.T().Context(), testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithClock(s.clock),
		WithRegistry(prometheus.NewRegistry()),
		WithVersion("test"),
	)
	s.Require().NoError(err)
	s.app = a
}

func (s *AppSuite) TearDownTest() {
	s.NoError(s.app.Close())
}

func (s *AppSuite) do(method, path, bearer string, body any) (int, map[string]any) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	s.app.Handler.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w.Code, out
}

func (s *AppSuite) login(email, password string) string {
	code, body := s.do(http.MethodPost, "/v1/auth/login", "", map[string]string{"email": email, "password": password})
	s.Require().Equal(http.StatusOK, code, body)
	return body["access_token"].(string)
}

func (s *AppSuite) grantConsent(bearer string, categories ...string) {
	code, body := s.do(http.MethodPost, "/v1/consents", bearer, map[string]any{
		"grantee_id": "clinic-7",
		"categories": categories,
		"purpose":    carePurpose,
	})
	s.Require().Equal(http.StatusCreated, code, body)
}

func (s *AppSuite) createSession(bearer string, ttl int, categories ...string) map[string]any {
	code, body := s.do(http.MethodPost, "/v1/disclosures", bearer, map[string]any{
		"categories":  categories,
		"ttl_minutes": ttl,
		"purpose":     carePurpose,
	})
	s.Require().Equal(http.StatusCreated, code, body)
	return body
}

func (s *AppSuite) TestDisclosureLifecycle() {
	patient := s.login(patientEmail, patientPassword)
	provider := s.login(providerEmail, providerPass)

	code, body := s.do(http.MethodPost, "/v1/disclosures", patient, map[string]any{
		"categories": []string{"LAB_RESULTS"},
		"purpose":    carePurpose,
	})
	s.Equal(http.StatusForbidden, code)
	s.Equal("consent_denied", body["error"])

	s.grantConsent(patient, "VITALS", "LAB_RESULTS")
	session := s.createSession(patient, 15, "LAB_RESULTS")
	token := session["token"].(string)
	sessionID := session["session_id"].(string)
	s.NotEmpty(session["sealed_payload"])

	code, body = s.do(http.MethodPost, "/v1/disclosures/scan", patient, map[string]string{"token": token})
	s.Equal(http.StatusForbidden, code, "patients cannot redeem tokens")
	s.Equal("forbidden", body["error"])

	code, body = s.do(http.MethodPost, "/v1/disclosures/scan", provider, map[string]string{"token": token})
	s.Require().Equal(http.StatusOK, code, body)
	s.Equal(patientEmail, body["subject_id"])
	s.Equal([]any{"LAB_RESULTS"}, body["categories"])

	code, body = s.do(http.MethodPost, "/v1/disclosures/scan", provider, map[string]string{"token": token})
	s.Equal(http.StatusConflict, code)
	s.Equal("session_already_used", body["error"])

	code, body = s.do(http.MethodGet, "/v1/disclosures/"+sessionID, patient, nil)
	s.Require().Equal(http.StatusOK, code)
	s.Equal("USED", body["status"])
	s.Equal(providerEmail, body["consumed_by"])

	code, body = s.do(http.MethodGet, "/v1/disclosures/"+sessionID, provider, nil)
	s.Equal(http.StatusNotFound, code, "other principals cannot see the session")

	code, body = s.do(http.MethodGet,
		"/v1/audit?subject_id="+patientEmail+"&action=DISCLOSURE_CONSUME&purpose=follow-up+cardiology+appointment",
		provider, nil)
	s.Require().Equal(http.StatusOK, code, body)
	entries := body["entries"].([]any)
	s.Len(entries, 2, "one success and one replay")
	first := entries[0].(map[string]any)
	s.Equal("SUCCESS", first["outcome"])
	s.Equal(providerEmail, first["actor"])
}

func (s *AppSuite) TestSessionExpiresAfterTTL() {
	patient := s.login(patientEmail, patientPassword)
	provider := s.login(providerEmail, providerPass)
	s.grantConsent(patient, "VITALS")
	token := s.createSession(patient, 15, "VITALS")["token"].(string)

	s.clock.Advance(16 * time.Minute)

	code, body := s.do(http.MethodPost, "/v1/disclosures/scan", provider, map[string]string{"token": token})
	s.Equal(http.StatusGone, code)
	s.Equal("session_expired", body["error"])

	res, err := s.app.Cleanup.RunOnce(s.T().Context())
	s.Require().NoError(err)
	s.NotNil(res)
}

func (s *AppSuite) TestSweepDoesNotChangeReplayOutcome() {
	patient := s.login(patientEmail, patientPassword)
	provider := s.login(providerEmail, providerPass)
	s.grantConsent(patient, "VITALS")
	session := s.createSession(patient, 15, "VITALS")
	token := session["token"].(string)

	code, body := s.do(http.MethodPost, "/v1/disclosures/scan", provider, map[string]string{"token": token})
	s.Require().Equal(http.StatusOK, code, body)

	for _, step := range []time.Duration{16 * time.Minute, 25 * time.Hour, 30 * 24 * time.Hour} {
		s.clock.Advance(step)
		_, err := s.app.Cleanup.RunOnce(s.T().Context())
		s.Require().NoError(err)
	}

	patient = s.login(patientEmail, patientPassword)
	provider = s.login(providerEmail, providerPass)
	code, body = s.do(http.MethodPost, "/v1/disclosures/scan", provider, map[string]string{"token": token})
	s.Equal(http.StatusConflict, code)
	s.Equal("session_already_used", body["error"])

	code, body = s.do(http.MethodGet, "/v1/disclosures/"+session["session_id"].(string), patient, nil)
	s.Require().Equal(http.StatusOK, code, body)
	s.Equal("USED", body["status"])
}

func (s *AppSuite) TestCancelledSessionCannotBeRedeemed() {
	patient := s.login(patientEmail, patientPassword)
	provider := s.login(providerEmail, providerPass)
	s.grantConsent(patient, "MEDICATIONS")
	session := s.createSession(patient, 5, "MEDICATIONS")

	code, body := s.do(http.MethodDelete, "/v1/disclosures/"+session["session_id"].(string), patient, nil)
	s.Require().Equal(http.StatusOK, code, body)
	s.Equal("CANCELLED", body["status"])

	code, body = s.do(http.MethodPost, "/v1/disclosures/scan", provider, map[string]string{"token": session["token"].(string)})
	s.Equal(http.StatusGone, code)
	s.Equal("session_cancelled", body["error"])
}

func (s *AppSuite) TestLockoutAfterThreeFailures() {
	for range 3 {
		code, body := s.do(http.MethodPost, "/v1/auth/login", "", map[string]string{"email": patientEmail, "password": "wrong"})
		s.Equal(http.StatusUnauthorized, code)
		s.Equal("unauthorized", body["error"])
	}

	code, body := s.do(http.MethodPost, "/v1/auth/login", "", map[string]string{"email": patientEmail, "password": patientPassword})
	s.Equal(http.StatusLocked, code)
	s.Equal("account_locked", body["error"])

	s.clock.Advance(31 * time.Minute)
	s.login(patientEmail, patientPassword)
}

func (s *AppSuite) TestUnauthenticatedRequestsRejected() {
	code, _ := s.do(http.MethodGet, "/v1/consents", "", nil)
	s.Equal(http.StatusUnauthorized, code)

	code, _ = s.do(http.MethodGet, "/v1/consents", "not-a-jwt", nil)
	s.Equal(http.StatusUnauthorized, code)
}

func (s *AppSuite) TestOperationalEndpoints() {
	code, body := s.do(http.MethodGet, "/health/ready", "", nil)
	s.Equal(http.StatusOK, code)
	s.Equal("ready", body["status"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.app.Handler.ServeHTTP(w, req)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "medshare_redis_pool_hits_total")
	s.Equal("nosniff", w.Header().Get("X-Content-Type-Options"))
}

func (s *AppSuite) TestSeedCredentialsRejectsMalformedEntries() {
	cfg := testConfig()
	cfg.Seed.Credentials = []string{"no-colons"}
	_, err := New(s.T().Context(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), WithRegistry(prometheus.NewRegistry()))
	s.ErrorContains(err, "email:password:ROLE")

	cfg.Seed.Credentials = []string{"a@b.example:pw:ADMIN"}
	_, err = New(s.T().Context(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), WithRegistry(prometheus.NewRegistry()))
	s.ErrorContains(err, "unknown role")
}

func (s *AppSuite) TestMissingEncryptionKeyIsFatal() {
	cfg := testConfig()
	cfg.Security.EncryptionKey = ""
	_, err := New(s.T().Context(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), WithRegistry(prometheus.NewRegistry()))
	s.ErrorContains(err, "encryption key")
}
