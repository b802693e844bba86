package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/backchannel/internal/engine"
)

// Scenario defines a conformance scenario: a transaction flow executed
// against a fresh engine, with expected outcomes per step and assertions
// on the final state.
//
// Scenarios run on a fresh in-memory database, so store-assigned ids are
// deterministic: the first inserted row of each table gets id 1, the
// next id 2, and so on (the seeded default channels, when enabled,
// occupy ids 1-3). Steps reference rows by those ids.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Seed runs the default channel seeding before any step.
	Seed bool `yaml:"seed,omitempty"`

	// Setup contains transactions applied before the main flow. Every
	// setup step must succeed; a rejection aborts the scenario.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow is the main sequence of transactions with expected outcomes.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final state after the flow.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one transaction application.
type Step struct {
	// As names the actor submitting the transaction: alice, bob, or
	// carol.
	As string `yaml:"as"`

	// Invoke is the transaction's wire name (send_message, ...).
	Invoke string `yaml:"invoke"`

	// Args are the transaction arguments.
	Args map[string]any `yaml:"args,omitempty"`

	// Expect is the expected reducer error code (VALIDATION, NOT_FOUND,
	// UNAUTHORIZED). Empty expects a commit.
	Expect string `yaml:"expect,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type is "count" or "state".
	Type string `yaml:"type"`

	// Table names the asserted table: channels, threads, messages,
	// reactions, typing, users, stars.
	Table string `yaml:"table"`

	// Count is the expected row count (type "count").
	Count int `yaml:"count"`

	// Where filters rows by exact field match (type "state").
	Where map[string]any `yaml:"where,omitempty"`

	// Expect holds expected field values, subset-matched against every
	// row that passes Where; at least one row must match Where
	// (type "state").
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertCount = "count"
	AssertState = "state"
)

// LoadScenario reads and validates a scenario YAML file. Unknown fields
// are rejected so a typo fails loudly instead of silently skipping.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}

	var scenario Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
	}

	if err := scenario.validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow must not be empty")
	}

	known := knownTransactionNames()

	for i, step := range s.Setup {
		if err := validateStep(step, known); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		if step.Expect != "" {
			return fmt.Errorf("setup[%d]: setup steps must succeed, expect is not allowed", i)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step, known); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
		switch step.Expect {
		case "", string(engine.ErrCodeValidation), string(engine.ErrCodeNotFound), string(engine.ErrCodeUnauthorized):
		default:
			return fmt.Errorf("flow[%d]: unknown expect code %q", i, step.Expect)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step, known map[string]bool) error {
	if step.As == "" {
		return fmt.Errorf("as is required")
	}
	if _, ok := actorIdentity(step.As); !ok {
		return fmt.Errorf("unknown actor %q", step.As)
	}
	if step.Invoke == "" {
		return fmt.Errorf("invoke is required")
	}
	if !known[step.Invoke] {
		return fmt.Errorf("unknown transaction %q", step.Invoke)
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertCount:
		if a.Count < 0 {
			return fmt.Errorf("count must not be negative")
		}
	case AssertState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("expect is required for state assertions")
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	if !knownTable(a.Table) {
		return fmt.Errorf("unknown table %q", a.Table)
	}
	return nil
}

func knownTransactionNames() map[string]bool {
	known := map[string]bool{}
	for _, name := range engine.TransactionNames() {
		known[name] = true
	}
	return known
}
