package testutil

import "github.com/roach88/backchannel/internal/table"

// Fixed identities for tests. Opaque hex tokens like production ones,
// but memorable.
const (
	Alice = table.Identity("a11ce00000000001")
	Bob   = table.Identity("b0b0000000000002")
	Carol = table.Identity("ca20100000000003")
)
