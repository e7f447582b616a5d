package certificate

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Do(method, path string, body any, headers map[string]string) error
	POST(path string, body any) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (any, error)
	GetLastResponseBody() []byte
	GetAdminToken() string
	Save(key, value string)
	Load(key string) (string, error)
}

const savedFingerprint = "fingerprint"

var classification = map[string]string{
	"college": "Engineering",
	"course":  "Computer Science",
	"major":   "Distributed Systems",
}

// RegisterSteps registers certificate issuance and verification steps.
func RegisterSteps(ctx *godog.ScenarioContext, current func() TestContext) {
	steps := &certificateSteps{current: current}

	// Issuance
	ctx.Step(`^I issue a certificate titled "([^"]*)" to "([^"]*)" on "([^"]*)"$`, steps.issue)
	ctx.Step(`^I issue a certificate titled "([^"]*)" to "([^"]*)" on "([^"]*)" with artifact "([^"]*)"$`, steps.issueWithArtifact)
	ctx.Step(`^I bulk issue a certificate titled "([^"]*)" on "([^"]*)" to holders "([^"]*)"$`, steps.bulkIssue)
	ctx.Step(`^I save the certificate fingerprint$`, steps.saveFingerprint)
	ctx.Step(`^I save the fingerprint at "([^"]*)"$`, steps.saveFingerprintAt)

	// Verification and reads
	ctx.Step(`^I verify the saved certificate$`, steps.verifySaved)
	ctx.Step(`^I verify fingerprint "([^"]*)"$`, steps.verify)
	ctx.Step(`^I bulk verify the saved certificate and "([^"]*)"$`, steps.bulkVerify)
	ctx.Step(`^I get the saved certificate$`, steps.getSaved)

	// Lifecycle
	ctx.Step(`^I set the status of the saved certificate to "([^"]*)"$`, steps.setStatus)
	ctx.Step(`^I delete the saved certificate as an operator$`, steps.adminDelete)
	ctx.Step(`^I delete the saved certificate without the admin token$`, steps.deleteWithoutAdminToken)

	// Export
	ctx.Step(`^I export my certificates as CSV$`, steps.exportCSV)
	ctx.Step(`^the CSV export should have (\d+) certificates?$`, steps.csvShouldHaveRows)
}

type certificateSteps struct {
	current func() TestContext
}

func (s *certificateSteps) issue(_ context.Context, title, holder, issuedOn string) error {
	return s.issueWithArtifact(context.Background(), title, holder, issuedOn, artifactFor(holder))
}

func (s *certificateSteps) issueWithArtifact(_ context.Context, title, holder, issuedOn, artifact string) error {
	return s.current().POST("/certificates", map[string]any{
		"holderId":       holder,
		"title":          title,
		"classification": classification,
		"artifactRef":    artifact,
		"issuedOn":       issuedOn,
	})
}

func (s *certificateSteps) bulkIssue(_ context.Context, title, issuedOn, holders string) error {
	var items []map[string]string
	for _, h := range strings.Split(holders, ",") {
		h = strings.TrimSpace(h)
		items = append(items, map[string]string{"holderId": h, "artifactRef": artifactFor(h)})
	}
	return s.current().POST("/certificates/bulk", map[string]any{
		"title":          title,
		"classification": classification,
		"issuedOn":       issuedOn,
		"holders":        items,
	})
}

func (s *certificateSteps) saveFingerprint(ctx context.Context) error {
	return s.saveFingerprintAt(ctx, "certificate.fingerprint")
}

func (s *certificateSteps) saveFingerprintAt(_ context.Context, field string) error {
	tc := s.current()
	v, err := tc.GetResponseField(field)
	if err != nil {
		return err
	}
	fp, ok := v.(string)
	if !ok || fp == "" {
		return fmt.Errorf("field %s is not a fingerprint: %v", field, v)
	}
	tc.Save(savedFingerprint, fp)
	return nil
}

func (s *certificateSteps) verifySaved(ctx context.Context) error {
	fp, err := s.current().Load(savedFingerprint)
	if err != nil {
		return err
	}
	return s.verify(ctx, fp)
}

func (s *certificateSteps) verify(_ context.Context, fp string) error {
	return s.current().POST("/certificates/verify", map[string]string{"fingerprint": fp})
}

func (s *certificateSteps) bulkVerify(_ context.Context, other string) error {
	tc := s.current()
	fp, err := tc.Load(savedFingerprint)
	if err != nil {
		return err
	}
	return tc.POST("/certificates/verify/bulk", map[string]any{"fingerprints": []string{fp, other}})
}

func (s *certificateSteps) getSaved(context.Context) error {
	tc := s.current()
	fp, err := tc.Load(savedFingerprint)
	if err != nil {
		return err
	}
	return tc.GET("/certificates/"+fp, nil)
}

func (s *certificateSteps) setStatus(_ context.Context, status string) error {
	tc := s.current()
	fp, err := tc.Load(savedFingerprint)
	if err != nil {
		return err
	}
	return tc.Do(http.MethodPatch, "/certificates/"+fp+"/status", map[string]string{"status": status}, nil)
}

func (s *certificateSteps) adminDelete(context.Context) error {
	tc := s.current()
	fp, err := tc.Load(savedFingerprint)
	if err != nil {
		return err
	}
	return tc.Do(http.MethodDelete, "/admin/certificates/"+fp, nil, map[string]string{
		"X-Admin-Token":    tc.GetAdminToken(),
		"X-Admin-Actor-ID": "e2e-operator",
	})
}

func (s *certificateSteps) deleteWithoutAdminToken(context.Context) error {
	tc := s.current()
	fp, err := tc.Load(savedFingerprint)
	if err != nil {
		return err
	}
	return tc.Do(http.MethodDelete, "/admin/certificates/"+fp, nil, nil)
}

func (s *certificateSteps) exportCSV(context.Context) error {
	return s.current().GET("/issuers/me/certificates.csv", nil)
}

func (s *certificateSteps) csvShouldHaveRows(_ context.Context, want int) error {
	records, err := csv.NewReader(bytes.NewReader(s.current().GetLastResponseBody())).ReadAll()
	if err != nil {
		return fmt.Errorf("export is not valid CSV: %w", err)
	}
	if len(records) == 0 {
		return fmt.Errorf("export has no header row")
	}
	if got := len(records) - 1; got != want {
		return fmt.Errorf("expected %d certificates in export but got %d", want, got)
	}
	return nil
}

func artifactFor(holder string) string {
	name := strings.NewReplacer("@", "-", ".", "-").Replace(holder)
	return "https://cdn.uni.example/diplomas/" + name + ".png"
}
