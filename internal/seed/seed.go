// Package seed compiles the declarative workspace seed: the set of
// channels a fresh database starts with. Seeds are written in CUE and
// schema-checked at load time, so a malformed seed fails the process at
// startup instead of half-populating the store.
package seed

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed default.cue
var defaultCUE string

// Channel is one seeded channel. Names are slugified by the engine on
// insertion, so the seed may use human-readable names.
type Channel struct {
	Name  string
	Topic string
}

// CompileError reports a seed that failed schema checking, with the CUE
// source position when one is available.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("seed: %s: %s (%s)", e.Field, e.Message, e.Pos)
	}
	return fmt.Sprintf("seed: %s: %s", e.Field, e.Message)
}

// Default compiles the embedded default seed (general, random,
// introductions).
func Default() ([]Channel, error) {
	return CompileSource(defaultCUE)
}

// LoadFile reads and compiles a seed file.
func LoadFile(path string) ([]Channel, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return CompileSource(string(src))
}

// CompileSource compiles CUE source into a seed.
// Uses the CUE SDK's Go API directly (not a CLI subprocess).
func CompileSource(src string) ([]Channel, error) {
	ctx := cuecontext.New()
	return Compile(ctx.CompileString(src))
}

// Compile extracts the channel list from a CUE value.
//
// The value must contain `channels: [{name: string, topic?: string}]`
// with at least one entry, non-empty names, and no duplicate names.
func Compile(v cue.Value) ([]Channel, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	chVal := v.LookupPath(cue.ParsePath("channels"))
	if !chVal.Exists() {
		return nil, &CompileError{
			Field:   "channels",
			Message: "channels is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := chVal.List()
	if err != nil {
		return nil, &CompileError{
			Field:   "channels",
			Message: "channels must be a list",
			Pos:     chVal.Pos(),
		}
	}

	var channels []Channel
	seen := make(map[string]bool)

	for iter.Next() {
		item := iter.Value()

		nameVal := item.LookupPath(cue.ParsePath("name"))
		if !nameVal.Exists() {
			return nil, &CompileError{
				Field:   "channels.name",
				Message: "name is required",
				Pos:     item.Pos(),
			}
		}
		name, err := nameVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if name == "" {
			return nil, &CompileError{
				Field:   "channels.name",
				Message: "name must not be empty",
				Pos:     nameVal.Pos(),
			}
		}
		if seen[name] {
			return nil, &CompileError{
				Field:   "channels.name",
				Message: fmt.Sprintf("duplicate channel %q", name),
				Pos:     nameVal.Pos(),
			}
		}
		seen[name] = true

		ch := Channel{Name: name}

		// Topic is optional; absent reads as empty.
		topicVal := item.LookupPath(cue.ParsePath("topic"))
		if topicVal.Exists() {
			topic, err := topicVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			ch.Topic = topic
		}

		channels = append(channels, ch)
	}

	if len(channels) == 0 {
		return nil, &CompileError{
			Field:   "channels",
			Message: "at least one channel is required",
			Pos:     chVal.Pos(),
		}
	}

	return channels, nil
}

// formatCUEError converts a CUE error into a positioned CompileError.
func formatCUEError(err error) error {
	var pos token.Pos
	if positions := cueerrors.Positions(err); len(positions) > 0 {
		pos = positions[0]
	}
	return &CompileError{
		Field:   "cue",
		Message: cueerrors.Details(err, nil),
		Pos:     pos,
	}
}
