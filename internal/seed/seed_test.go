package seed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	channels, err := Default()
	require.NoError(t, err)

	require.Len(t, channels, 3)
	assert.Equal(t, Channel{Name: "general", Topic: "General discussion"}, channels[0])
	assert.Equal(t, Channel{Name: "random", Topic: "Off-topic conversation"}, channels[1])
	assert.Equal(t, Channel{Name: "introductions", Topic: "Introduce yourself!"}, channels[2])
}

func TestCompileSource_TopicOptional(t *testing.T) {
	channels, err := CompileSource(`channels: [{name: "dev"}]`)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, Channel{Name: "dev", Topic: ""}, channels[0])
}

func TestCompileSource_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "missing channels",
			src:  `other: 1`,
			want: "channels is required",
		},
		{
			name: "channels not a list",
			src:  `channels: "nope"`,
			want: "channels must be a list",
		},
		{
			name: "empty list",
			src:  `channels: []`,
			want: "at least one channel is required",
		},
		{
			name: "missing name",
			src:  `channels: [{topic: "x"}]`,
			want: "name is required",
		},
		{
			name: "empty name",
			src:  `channels: [{name: ""}]`,
			want: "name must not be empty",
		},
		{
			name: "duplicate name",
			src:  `channels: [{name: "dev"}, {name: "dev"}]`,
			want: `duplicate channel "dev"`,
		},
		{
			name: "invalid cue",
			src:  `channels: [`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileSource(tt.src)
			require.Error(t, err)

			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			if tt.want != "" {
				assert.Contains(t, ce.Error(), tt.want)
			}
		})
	}
}
