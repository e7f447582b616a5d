package e2e

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"

	"github.com/cucumber/godog"
	"github.com/cucumber/godog/colors"

	"certledger/e2e/steps/certificate"
	"certledger/e2e/steps/common"
)

var opts = godog.Options{
	Output: colors.Colored(os.Stdout),
	Format: "pretty",
	Paths:  []string{"features"},
}

func init() {
	godog.BindCommandLineFlags("godog.", &opts)
}

func TestFeatures(t *testing.T) {
	flag.Parse()
	opts.TestingT = t

	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options:             &opts,
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

// scenarioState lets step packages share the per-scenario context created in Before.
type scenarioState struct {
	tc *TestContext
}

func InitializeScenario(sc *godog.ScenarioContext) {
	state := &scenarioState{}

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		tc, err := NewTestContext()
		if err != nil {
			return ctx, err
		}
		state.tc = tc
		return ctx, nil
	})

	sc.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if state.tc == nil {
			return ctx, nil
		}
		if err != nil {
			fmt.Printf("Scenario failed: %s\nLast Response: %s\n", sc.Name, string(state.tc.LastResponseBody))
		}
		state.tc.Close()
		return ctx, nil
	})

	common.RegisterSteps(sc, func() common.TestContext { return state.tc })
	certificate.RegisterSteps(sc, func() certificate.TestContext { return state.tc })
}
