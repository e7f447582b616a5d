package common

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	SignIn(subject, role string) error
	SignOut()
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (any, error)
	ResponseContains(text string) bool
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetLastResponseHeader(name string) string
}

// RegisterSteps registers common step definitions used across features.
// current returns the context of the running scenario.
func RegisterSteps(ctx *godog.ScenarioContext, current func() TestContext) {
	steps := &commonSteps{current: current}

	// Background steps
	ctx.Step(`^the certificate ledger is running$`, steps.ledgerIsRunning)
	ctx.Step(`^I am signed in as "([^"]*)" with role "([^"]*)"$`, steps.signIn)
	ctx.Step(`^I am not signed in$`, steps.signOut)

	// Generic request steps
	ctx.Step(`^I GET "([^"]*)"$`, steps.get)

	// Response assertion steps
	ctx.Step(`^the response status should be (\d+)$`, steps.responseStatusShouldBe)
	ctx.Step(`^the response should contain "([^"]*)"$`, steps.responseShouldContain)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, steps.responseFieldShouldEqual)
	ctx.Step(`^the response header "([^"]*)" should equal "([^"]*)"$`, steps.responseHeaderShouldEqual)
}

type commonSteps struct {
	current func() TestContext
}

func (s *commonSteps) ledgerIsRunning(ctx context.Context) error {
	if err := s.current().GET("/health/live", nil); err != nil {
		return err
	}
	return s.responseStatusShouldBe(ctx, 200)
}

func (s *commonSteps) signIn(_ context.Context, subject, role string) error {
	return s.current().SignIn(subject, role)
}

func (s *commonSteps) signOut(context.Context) error {
	s.current().SignOut()
	return nil
}

func (s *commonSteps) get(_ context.Context, path string) error {
	return s.current().GET(path, nil)
}

func (s *commonSteps) responseStatusShouldBe(_ context.Context, expectedStatus int) error {
	tc := s.current()
	if actual := tc.GetLastResponseStatus(); actual != expectedStatus {
		return fmt.Errorf("expected status %d but got %d\nResponse: %s", expectedStatus, actual, string(tc.GetLastResponseBody()))
	}
	return nil
}

func (s *commonSteps) responseShouldContain(_ context.Context, text string) error {
	tc := s.current()
	if !tc.ResponseContains(text) {
		return fmt.Errorf("response does not contain %q\nResponse: %s", text, string(tc.GetLastResponseBody()))
	}
	return nil
}

func (s *commonSteps) responseFieldShouldEqual(_ context.Context, field, expected string) error {
	value, err := s.current().GetResponseField(field)
	if err != nil {
		return err
	}
	if actual := fmt.Sprint(value); actual != expected {
		return fmt.Errorf("expected field %s to equal %q but got %q", field, expected, actual)
	}
	return nil
}

func (s *commonSteps) responseHeaderShouldEqual(_ context.Context, name, expected string) error {
	if actual := s.current().GetLastResponseHeader(name); actual != expected {
		return fmt.Errorf("expected header %s to equal %q but got %q", name, expected, actual)
	}
	return nil
}
