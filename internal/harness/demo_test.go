package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scenarioDir holds the end-to-end scenarios shipped with the repository.
const scenarioDir = "../../testdata/scenarios"

// TestScenarios runs every shipped scenario and compares its solutions
// with the golden snapshot of the same name.
func TestScenarios(t *testing.T) {
	paths, err := Discover(scenarioDir)
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		scenario, err := LoadScenario(path)
		require.NoError(t, err, "failed to load scenario from %s", path)

		t.Run(scenario.Name, func(t *testing.T) {
			assert.Equal(t, scenario.Name+".yaml", filepath.Base(path), "file name matches scenario name")

			var result *Result
			if scenario.Expect.Error != "" {
				// Error text carries the query id and wrapping; keep it out
				// of golden files.
				result, err = Run(context.Background(), scenario)
			} else {
				result, err = RunWithGolden(t, scenario)
			}
			require.NoError(t, err)
			assert.True(t, result.Pass, "scenario should pass: errors=%v", result.Errors)
		})
	}
}

// TestScenarios_Deterministic runs a scenario twice and expects
// byte-identical snapshots.
func TestScenarios_Deterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join(scenarioDir, "bound_join.yaml"))
	require.NoError(t, err)

	first, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	second, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.Equal(t, string(Snapshot(scenario, first)), string(Snapshot(scenario, second)))
	assert.Equal(t, first.Plan, second.Plan)
	assert.Equal(t, first.Dispatches, second.Dispatches)
}

func TestSuite_ShippedScenarios(t *testing.T) {
	paths, err := Discover(scenarioDir)
	require.NoError(t, err)

	result := RunSuite(context.Background(), paths)
	assert.Equal(t, len(paths), result.TotalScenarios)
	assert.Zero(t, result.Failed, "failures=%v", result.Failures)
}
