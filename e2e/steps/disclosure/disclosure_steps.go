package disclosure

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

const defaultPurpose = "follow-up cardiology appointment"

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GET(path string) error
	DELETE(path string) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	SetToken(principal, token string)
	ActAs(principal string)
	Remember(key, value string)
	Recall(key string) string
	AdvanceClock(d time.Duration)
	RunCleanup(ctx context.Context) error
}

// RegisterSteps registers login, consent, disclosure and audit steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &disclosureSteps{tc: tc}

	// Authentication
	ctx.Step(`^"([^"]*)" logs in with password "([^"]*)"$`, steps.logIn)
	ctx.Step(`^"([^"]*)" fails to log in (\d+) times$`, steps.failLogIn)
	ctx.Step(`^I act as "([^"]*)"$`, steps.actAs)

	// Consent
	ctx.Step(`^I grant consent to "([^"]*)" for categories "([^"]*)"$`, steps.grantConsent)
	ctx.Step(`^I revoke that consent$`, steps.revokeConsent)

	// Disclosure sessions
	ctx.Step(`^I create a disclosure for categories "([^"]*)" valid for (\d+) minutes$`, steps.createDisclosure)
	ctx.Step(`^I scan the disclosure token$`, steps.scanToken)
	ctx.Step(`^I scan the token "([^"]*)"$`, steps.scanLiteralToken)
	ctx.Step(`^I cancel the disclosure$`, steps.cancelDisclosure)
	ctx.Step(`^I look up the disclosure$`, steps.lookUpDisclosure)
	ctx.Step(`^(\d+) minutes pass$`, steps.minutesPass)
	ctx.Step(`^the expired sessions are swept$`, steps.sweep)

	// Disclosure assertions
	ctx.Step(`^the disclosed categories should be "([^"]*)"$`, steps.disclosedCategoriesShouldBe)
	ctx.Step(`^the disclosure should carry a sealed payload$`, steps.shouldCarrySealedPayload)

	// Audit
	ctx.Step(`^I query the audit trail of "([^"]*)" for action "([^"]*)"$`, steps.queryAudit)
	ctx.Step(`^the audit trail should have (\d+) entr(?:y|ies)$`, steps.auditTrailShouldHave)
	ctx.Step(`^every audit entry should have "([^"]*)" equal to "([^"]*)"$`, steps.everyAuditEntryShouldHave)
}

type disclosureSteps struct {
	tc TestContext
}

func (s *disclosureSteps) logIn(ctx context.Context, email, password string) error {
	s.tc.ActAs("")
	if err := s.tc.POST("/v1/auth/login", map[string]string{"email": email, "password": password}); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != 200 {
		return nil
	}
	token, err := s.tc.GetResponseField("access_token")
	if err != nil {
		return err
	}
	s.tc.SetToken(email, token.(string))
	s.tc.ActAs(email)
	return nil
}

func (s *disclosureSteps) failLogIn(ctx context.Context, email string, times int) error {
	s.tc.ActAs("")
	for i := range times {
		if err := s.tc.POST("/v1/auth/login", map[string]string{"email": email, "password": "definitely wrong"}); err != nil {
			return err
		}
		if status := s.tc.GetLastResponseStatus(); status != 401 {
			return fmt.Errorf("attempt %d: expected 401 but got %d", i+1, status)
		}
	}
	return nil
}

func (s *disclosureSteps) actAs(ctx context.Context, principal string) error {
	s.tc.ActAs(principal)
	return nil
}

func (s *disclosureSteps) grantConsent(ctx context.Context, grantee, categories string) error {
	if err := s.tc.POST("/v1/consents", map[string]any{
		"grantee_id": grantee,
		"categories": splitList(categories),
		"purpose":    defaultPurpose,
	}); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != 201 {
		return nil
	}
	id, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	s.tc.Remember("consent_id", fmt.Sprint(id))
	return nil
}

func (s *disclosureSteps) revokeConsent(ctx context.Context) error {
	return s.tc.DELETE("/v1/consents/" + s.tc.Recall("consent_id"))
}

func (s *disclosureSteps) createDisclosure(ctx context.Context, categories string, ttl int) error {
	if err := s.tc.POST("/v1/disclosures", map[string]any{
		"categories":  splitList(categories),
		"ttl_minutes": ttl,
		"purpose":     defaultPurpose,
	}); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != 201 {
		return nil
	}
	for _, field := range []string{"token", "session_id"} {
		v, err := s.tc.GetResponseField(field)
		if err != nil {
			return err
		}
		s.tc.Remember(field, fmt.Sprint(v))
	}
	return nil
}

func (s *disclosureSteps) scanToken(ctx context.Context) error {
	return s.scanLiteralToken(ctx, s.tc.Recall("token"))
}

func (s *disclosureSteps) scanLiteralToken(ctx context.Context, token string) error {
	return s.tc.POST("/v1/disclosures/scan", map[string]string{"token": token})
}

func (s *disclosureSteps) cancelDisclosure(ctx context.Context) error {
	return s.tc.DELETE("/v1/disclosures/" + s.tc.Recall("session_id"))
}

func (s *disclosureSteps) lookUpDisclosure(ctx context.Context) error {
	return s.tc.GET("/v1/disclosures/" + s.tc.Recall("session_id"))
}

func (s *disclosureSteps) minutesPass(ctx context.Context, minutes int) error {
	s.tc.AdvanceClock(time.Duration(minutes) * time.Minute)
	return nil
}

func (s *disclosureSteps) sweep(ctx context.Context) error {
	return s.tc.RunCleanup(ctx)
}

func (s *disclosureSteps) disclosedCategoriesShouldBe(ctx context.Context, expected string) error {
	v, err := s.tc.GetResponseField("categories")
	if err != nil {
		return err
	}
	raw, ok := v.([]any)
	if !ok {
		return fmt.Errorf("categories is %T, not a list", v)
	}
	got := make([]string, 0, len(raw))
	for _, c := range raw {
		got = append(got, fmt.Sprint(c))
	}
	want := splitList(expected)
	slices.Sort(got)
	slices.Sort(want)
	if !slices.Equal(got, want) {
		return fmt.Errorf("expected categories %v but got %v", want, got)
	}
	return nil
}

func (s *disclosureSteps) shouldCarrySealedPayload(ctx context.Context) error {
	v, err := s.tc.GetResponseField("sealed_payload")
	if err != nil {
		return err
	}
	if fmt.Sprint(v) == "" {
		return fmt.Errorf("sealed_payload is empty")
	}
	return nil
}

func (s *disclosureSteps) queryAudit(ctx context.Context, subject, action string) error {
	q := url.Values{}
	q.Set("subject_id", subject)
	q.Set("action", action)
	q.Set("purpose", defaultPurpose)
	return s.tc.GET("/v1/audit?" + q.Encode())
}

func (s *disclosureSteps) auditEntries() ([]map[string]any, error) {
	var body struct {
		Entries []map[string]any `json:"entries"`
	}
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &body); err != nil {
		return nil, fmt.Errorf("failed to parse audit response: %w", err)
	}
	return body.Entries, nil
}

func (s *disclosureSteps) auditTrailShouldHave(ctx context.Context, n int) error {
	entries, err := s.auditEntries()
	if err != nil {
		return err
	}
	if len(entries) != n {
		return fmt.Errorf("expected %d audit entries but got %d\nResponse: %s", n, len(entries), string(s.tc.GetLastResponseBody()))
	}
	return nil
}

func (s *disclosureSteps) everyAuditEntryShouldHave(ctx context.Context, field, expected string) error {
	entries, err := s.auditEntries()
	if err != nil {
		return err
	}
	for i, e := range entries {
		if got := fmt.Sprint(e[field]); got != expected {
			return fmt.Errorf("entry %d: %s is %q, expected %q", i, field, got, expected)
		}
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
