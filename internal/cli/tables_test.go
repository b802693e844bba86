package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runTables(t *testing.T, buf *bytes.Buffer, format string, args ...string) error {
	t.Helper()
	rootOpts := &RootOptions{Format: format}
	cmd := NewTablesCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestTablesEmptyDatabase(t *testing.T) {
	db := testDBPath(t)
	buf := &bytes.Buffer{}

	err := runTables(t, buf, "text", "--db", db)
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "channels (0)")
	assert.Contains(t, output, "messages (0)")
	assert.Contains(t, output, "users (0)")
}

func TestTablesShowsCommittedRows(t *testing.T) {
	db := testDBPath(t)

	err := runInvoke(t, &bytes.Buffer{},
		"create_channel",
		"--db", db,
		"--as", "a11ce00000000001",
		"--args", `{"name":"My Cool Channel","topic":"things"}`,
	)
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	err = runTables(t, buf, "text", "--db", db)
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "channels (1)")
	assert.Contains(t, output, "#my-cool-channel")
	assert.Contains(t, output, `topic="things"`)
	assert.Contains(t, output, "a11ce00000000001")
}

func TestTablesJSONFormat(t *testing.T) {
	db := testDBPath(t)

	err := runInvoke(t, &bytes.Buffer{},
		"create_channel",
		"--db", db,
		"--as", "a11ce00000000001",
		"--args", `{"name":"General"}`,
	)
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	err = runTables(t, buf, "json", "--db", db)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `"status":"ok"`)
	assert.Contains(t, buf.String(), "general")
}

func TestTablesRequiresDB(t *testing.T) {
	buf := &bytes.Buffer{}

	err := runTables(t, buf, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}
