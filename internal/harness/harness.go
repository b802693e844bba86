// Package harness executes YAML conformance scenarios against a real
// engine on a fresh in-memory database. Every step goes through the
// engine's synchronous apply path, so expected rejections are checked
// against actual reducer outcomes and final-state assertions run over
// the real committed tables.
package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/backchannel/internal/engine"
	"github.com/roach88/backchannel/internal/seed"
	"github.com/roach88/backchannel/internal/store"
	"github.com/roach88/backchannel/internal/table"
	"github.com/roach88/backchannel/internal/testutil"
)

// systemIdentity owns the seeded default channels.
const systemIdentity = table.Identity("0000000000000000")

// Event is one executed step in the transcript.
type Event struct {
	Phase   string // "seed", "setup", or "flow"
	Actor   string
	Invoke  string
	Args    map[string]any
	Outcome string // "ok" or the reducer error code
	Detail  string // error message when rejected
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool

	// Transcript lists every executed step in order.
	Transcript []Event

	// Errors lists expectation and assertion failures.
	Errors []string

	// Final is the state after the last step.
	Final table.Snapshot
}

// AddError records a failure and marks the result failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// actorIdentity resolves a scenario actor name.
func actorIdentity(name string) (table.Identity, bool) {
	switch name {
	case "alice":
		return testutil.Alice, true
	case "bob":
		return testutil.Bob, true
	case "carol":
		return testutil.Carol, true
	case "system":
		return systemIdentity, true
	default:
		return "", false
	}
}

// Run executes a scenario and returns its result. A returned error means
// the harness itself failed (bad store, undecodable step); expectation
// mismatches land in the result instead.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory store: %w", err)
	}
	defer st.Close()

	clock := testutil.NewManualClock()
	eng := engine.New(st, engine.WithClock(clock))
	ctx := context.Background()

	result := &Result{Pass: true}

	if scenario.Seed {
		channels, err := seed.Default()
		if err != nil {
			return nil, fmt.Errorf("compiling default seed: %w", err)
		}
		if err := eng.Init(ctx, systemIdentity, channels); err != nil {
			return nil, fmt.Errorf("seeding: %w", err)
		}
		result.Transcript = append(result.Transcript, Event{
			Phase:   "seed",
			Actor:   "system",
			Invoke:  "seed_default_channels",
			Outcome: "ok",
		})
	}

	for i, step := range scenario.Setup {
		event, err := applyStep(ctx, eng, clock, "setup", step)
		if err != nil {
			return nil, fmt.Errorf("setup[%d]: %w", i, err)
		}
		if event.Outcome != "ok" {
			return nil, fmt.Errorf("setup[%d] %s rejected: %s", i, step.Invoke, event.Detail)
		}
		result.Transcript = append(result.Transcript, event)
	}

	for i, step := range scenario.Flow {
		event, err := applyStep(ctx, eng, clock, "flow", step)
		if err != nil {
			return nil, fmt.Errorf("flow[%d]: %w", i, err)
		}
		result.Transcript = append(result.Transcript, event)

		expected := step.Expect
		if expected == "" {
			expected = "ok"
		}
		if event.Outcome != expected {
			result.AddError("flow[%d] %s: expected %s, got %s (%s)",
				i, step.Invoke, expected, event.Outcome, event.Detail)
		}
	}

	result.Final, err = st.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading final snapshot: %w", err)
	}

	for i, a := range scenario.Assertions {
		if err := evaluateAssertion(result.Final, a); err != nil {
			result.AddError("assertions[%d]: %v", i, err)
		}
	}

	return result, nil
}

// applyStep decodes and applies one step, advancing the clock so every
// step commits at a distinct instant.
func applyStep(ctx context.Context, eng *engine.Engine, clock *testutil.ManualClock, phase string, step Step) (Event, error) {
	id, ok := actorIdentity(step.As)
	if !ok {
		return Event{}, fmt.Errorf("unknown actor %q", step.As)
	}

	tx, err := engine.Decode(step.Invoke, step.Args)
	if err != nil {
		return Event{}, err
	}

	clock.Advance(time.Second)

	event := Event{
		Phase:   phase,
		Actor:   step.As,
		Invoke:  step.Invoke,
		Args:    step.Args,
		Outcome: "ok",
	}

	if err := eng.Apply(ctx, id, tx); err != nil {
		var re *engine.ReducerError
		if !errors.As(err, &re) {
			return Event{}, fmt.Errorf("applying %s: %w", step.Invoke, err)
		}
		event.Outcome = string(re.Code)
		event.Detail = re.Message
	}
	return event, nil
}
