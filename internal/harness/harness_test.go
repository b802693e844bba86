package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarioGoldens(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths, "no scenario files found")

	for _, path := range paths {
		path := path
		t.Run(filepath.Base(path), func(t *testing.T) {
			RunWithGolden(t, path)
		})
	}
}

func TestRun_ExpectationMismatchFailsResult(t *testing.T) {
	scenario := &Scenario{
		Name:        "mismatch",
		Description: "a step expected to fail actually succeeds",
		Flow: []Step{
			{As: "alice", Invoke: "create_channel", Args: map[string]any{"name": "general"}, Expect: "VALIDATION"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected VALIDATION, got ok")
}

func TestRun_SetupRejectionIsHarnessError(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad-setup",
		Description: "setup referencing a missing channel",
		Setup: []Step{
			{As: "alice", Invoke: "send_message", Args: map[string]any{"channel_id": 1, "text": "hi"}},
		},
		Flow: []Step{
			{As: "alice", Invoke: "clear_typing"},
		},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup[0]")
}

func TestRun_StateAssertion(t *testing.T) {
	scenario := &Scenario{
		Name:        "state",
		Description: "final state matching",
		Flow: []Step{
			{As: "alice", Invoke: "create_channel", Args: map[string]any{"name": "My Channel", "topic": "stuff"}},
		},
		Assertions: []Assertion{
			{Type: AssertState, Table: "channels", Where: map[string]any{"id": 1},
				Expect: map[string]any{"name": "my-channel", "topic": "stuff", "created_by": "alice"}},
			{Type: AssertCount, Table: "channels", Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_FailedAssertionReported(t *testing.T) {
	scenario := &Scenario{
		Name:        "failing-assertion",
		Description: "count mismatch surfaces as result error",
		Flow: []Step{
			{As: "alice", Invoke: "create_channel", Args: map[string]any{"name": "general"}},
		},
		Assertions: []Assertion{
			{Type: AssertCount, Table: "channels", Count: 2},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected 2 rows, got 1")
}

func TestLoadScenario_Validation(t *testing.T) {
	write := func(body string) string {
		path := filepath.Join(t.TempDir(), "scenario.yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		return path
	}

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing name",
			body: "description: d\nflow:\n  - {as: alice, invoke: clear_typing}\n",
			want: "name is required",
		},
		{
			name: "empty flow",
			body: "name: n\ndescription: d\n",
			want: "flow must not be empty",
		},
		{
			name: "unknown actor",
			body: "name: n\ndescription: d\nflow:\n  - {as: mallory, invoke: clear_typing}\n",
			want: "unknown actor",
		},
		{
			name: "unknown transaction",
			body: "name: n\ndescription: d\nflow:\n  - {as: alice, invoke: frobnicate}\n",
			want: "unknown transaction",
		},
		{
			name: "unknown expect code",
			body: "name: n\ndescription: d\nflow:\n  - {as: alice, invoke: clear_typing, expect: EXPLODED}\n",
			want: "unknown expect code",
		},
		{
			name: "expect in setup",
			body: "name: n\ndescription: d\nsetup:\n  - {as: alice, invoke: clear_typing, expect: VALIDATION}\nflow:\n  - {as: alice, invoke: clear_typing}\n",
			want: "expect is not allowed",
		},
		{
			name: "unknown field",
			body: "name: n\ndescription: d\nflows:\n  - {as: alice, invoke: clear_typing}\n",
			want: "field flows not found",
		},
		{
			name: "unknown assertion table",
			body: "name: n\ndescription: d\nflow:\n  - {as: alice, invoke: clear_typing}\nassertions:\n  - {type: count, table: widgets, count: 0}\n",
			want: "unknown table",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(write(tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ok.yaml")
	body := `name: ok
description: loads cleanly
seed: true
flow:
  - as: alice
    invoke: client_connected
assertions:
  - type: count
    table: users
    count: 1
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "ok", scenario.Name)
	assert.True(t, scenario.Seed)
	require.Len(t, scenario.Flow, 1)
	assert.Equal(t, "client_connected", scenario.Flow[0].Invoke)
}
