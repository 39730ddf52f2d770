package e2e

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"medshare/internal/app"
	"medshare/internal/platform/config"
	"medshare/pkg/platform/clock"
)

// Seeded principals available to every scenario.
var seedCredentials = []string{
	"patient@example.com:correct horse battery:PATIENT",
	"other.patient@example.com:another long secret:PATIENT",
	"dr.lee@clinic.example:stethoscope-42:PROVIDER",
}

// TestContext holds state between test steps. Each scenario gets a fresh
// in-process server with a fake clock so expiry and lockout can be driven
// without sleeping.
type TestContext struct {
	BaseURL          string
	HTTPClient       *http.Client
	Clock            *clock.Fake
	LastResponse     *http.Response
	LastResponseBody []byte

	tokens  map[string]string
	current string
	values  map[string]string

	app    *app.App
	server *httptest.Server
}

// NewTestContext starts a server backed by in-memory stores.
func NewTestContext(ctx context.Context) (*TestContext, error) {
	fake := clock.NewFake(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	a, err := app.New(ctx, testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)),
		app.WithClock(fake),
		app.WithRegistry(prometheus.NewRegistry()),
		app.WithVersion("e2e"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build app: %w", err)
	}
	server := httptest.NewServer(a.Handler)

	return &TestContext{
		BaseURL:    server.URL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Clock:      fake,
		tokens:     make(map[string]string),
		values:     make(map[string]string),
		app:        a,
		server:     server,
	}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.Server{
			Environment:    "e2e",
			LoginRateLimit: 1000,
			ScanRateLimit:  1000,
		},
		Security: config.Security{
			EncryptionKey: base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{42}, 32)),
			JWTSigningKey: "e2e-signing-key-with-enough-entropy",
			JWTIssuer:     "medshare",
			JWTAudience:   "medshare-api",
			TokenTTL:      4 * time.Hour,
		},
		Compliance: config.Compliance{
			LockoutThreshold: 3,
			LockoutDuration:  30 * time.Minute,
			MinPurposeLength: 10,
		},
		Disclosure: config.Disclosure{
			CleanupInterval: time.Minute,
		},
		Seed: config.Seed{Credentials: seedCredentials},
	}
}

// Close stops the server and releases the app.
func (tc *TestContext) Close() error {
	tc.server.Close()
	return tc.app.Close()
}

// POST makes a POST request as the current principal and stores the response
func (tc *TestContext) POST(path string, body any) error {
	return tc.do(http.MethodPost, path, body)
}

// GET makes a GET request as the current principal and stores the response
func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil)
}

// DELETE makes a DELETE request as the current principal and stores the response
func (tc *TestContext) DELETE(path string) error {
	return tc.do(http.MethodDelete, path, nil)
}

func (tc *TestContext) do(method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, tc.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := tc.tokens[tc.current]; token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}

	tc.LastResponse = resp
	tc.LastResponseBody, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	return nil
}

// GetResponseField extracts a field from the JSON response
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var data map[string]any
	if err := json.Unmarshal(tc.LastResponseBody, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	value, ok := data[field]
	if !ok {
		return nil, fmt.Errorf("field %s not found in response", field)
	}

	return value, nil
}

// ResponseContains checks if the response body contains a field or text
func (tc *TestContext) ResponseContains(text string) bool {
	if strings.Contains(string(tc.LastResponseBody), text) {
		return true
	}

	var data map[string]any
	if err := json.Unmarshal(tc.LastResponseBody, &data); err == nil {
		if _, ok := data[text]; ok {
			return true
		}
	}

	return false
}

// Getter methods for step package interfaces

func (tc *TestContext) GetLastResponseStatus() int {
	if tc.LastResponse == nil {
		return 0
	}
	return tc.LastResponse.StatusCode
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.LastResponseBody
}

// SetToken stores an access token for a principal.
func (tc *TestContext) SetToken(principal, token string) {
	tc.tokens[principal] = token
}

// ActAs switches the principal whose token is sent. An empty principal sends
// no Authorization header.
func (tc *TestContext) ActAs(principal string) {
	tc.current = principal
}

func (tc *TestContext) Remember(key, value string) {
	tc.values[key] = value
}

func (tc *TestContext) Recall(key string) string {
	return tc.values[key]
}

func (tc *TestContext) AdvanceClock(d time.Duration) {
	tc.Clock.Advance(d)
}

// RunCleanup runs one pass of the expired-session sweeper.
func (tc *TestContext) RunCleanup(ctx context.Context) error {
	_, err := tc.app.Cleanup.RunOnce(ctx)
	return err
}
