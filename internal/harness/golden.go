package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RenderTranscript renders a result as a deterministic text transcript
// for golden comparison. Args serialize as JSON, which orders map keys,
// so identical scenarios always render byte-identical transcripts.
func RenderTranscript(scenarioName string, result *Result) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "scenario: %s\n", scenarioName)
	fmt.Fprintf(&buf, "pass: %t\n", result.Pass)
	fmt.Fprintln(&buf)

	for i, ev := range result.Transcript {
		fmt.Fprintf(&buf, "%02d %-5s %s %s", i+1, ev.Phase, ev.Actor, ev.Invoke)
		if len(ev.Args) > 0 {
			args, err := json.Marshal(ev.Args)
			if err != nil {
				return nil, fmt.Errorf("rendering step %d args: %w", i+1, err)
			}
			fmt.Fprintf(&buf, " %s", args)
		}
		fmt.Fprintf(&buf, " -> %s", ev.Outcome)
		if ev.Detail != "" {
			fmt.Fprintf(&buf, " (%s)", ev.Detail)
		}
		fmt.Fprintln(&buf)
	}

	fmt.Fprintln(&buf)
	fmt.Fprintf(&buf, "final: channels=%d threads=%d messages=%d reactions=%d typing=%d users=%d stars=%d\n",
		len(result.Final.Channels), len(result.Final.Threads), len(result.Final.Messages),
		len(result.Final.Reactions), len(result.Final.Typing), len(result.Final.Users),
		len(result.Final.Stars))

	for _, e := range result.Errors {
		fmt.Fprintf(&buf, "error: %s\n", e)
	}

	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario file and compares its transcript
// against testdata/golden/{name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, path string) {
	t.Helper()

	scenario, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("loading scenario: %v", err)
	}

	result, err := Run(scenario)
	if err != nil {
		t.Fatalf("running scenario %s: %v", scenario.Name, err)
	}

	for _, msg := range result.Errors {
		t.Errorf("scenario %s: %s", scenario.Name, msg)
	}

	transcript, err := RenderTranscript(scenario.Name, result)
	if err != nil {
		t.Fatalf("rendering transcript: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, transcript)
}
