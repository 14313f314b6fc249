package envsubst

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trly/pei-docker/internal/cfgerr"
)

func TestSubstitute(t *testing.T) {
	env := Environment{
		"HOME_DIR": "/home/me",
		"EMPTY":    "",
		"PORT":     "2222",
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "no references", input: "plain text", expected: "plain text"},
		{name: "defined variable", input: "${HOME_DIR}/data", expected: "/home/me/data"},
		{name: "undefined variable left verbatim", input: "${NOPE}/data", expected: "${NOPE}/data"},
		{name: "default used when unset", input: "${NOPE:-fallback}", expected: "fallback"},
		{name: "default ignored when set", input: "${PORT:-22}", expected: "2222"},
		{name: "empty value wins over default", input: "x${EMPTY:-d}x", expected: "xx"},
		{name: "default not substituted again", input: "${NOPE:-${HOME_DIR}}", expected: "${HOME_DIR}"},
		{name: "multiple references", input: "${PORT}:${NOPE:-22}", expected: "2222:22"},
		{name: "bare dollar kept", input: "$HOME_DIR and $$", expected: "$HOME_DIR and $$"},
		{name: "passthrough marker untouched", input: "{{HOME_DIR}}", expected: "{{HOME_DIR}}"},
		{name: "empty default", input: "${NOPE:-}", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Substitute(tt.input, env))
		})
	}
}

// TestSubstitute_NoReferencesIsIdentity checks strings without ${...} survive any environment.
func TestSubstitute_NoReferencesIsIdentity(t *testing.T) {
	inputs := []string{"", "abc", "$A", "{A}", "$ {A}", "{{A:-b}}", "a:b-c"}
	envs := []Environment{nil, {}, {"A": "1"}, {"A": ""}}
	for _, env := range envs {
		for _, in := range inputs {
			assert.Equal(t, in, Substitute(in, env))
		}
	}
}

// The default in ${NAME:-DEFAULT} applies only when NAME is unset.
func TestSubstitute_DefaultOnlyWhenUnset(t *testing.T) {
	assert.Equal(t, "d", Substitute("${X:-d}", Environment{}))
	assert.Equal(t, "", Substitute("${X:-d}", Environment{"X": ""}))
	assert.Equal(t, "v", Substitute("${X:-d}", Environment{"X": "v"}))
}

func TestSubstituteTree(t *testing.T) {
	env := Environment{"IMG": "ubuntu:24.04", "PORT": "2222"}
	input := map[string]any{
		"stage_1": map[string]any{
			"image": map[string]any{"base": "${IMG}"},
			"ssh": map[string]any{
				"enable":    true,
				"port":      22,
				"host_port": "${PORT}",
			},
			"ports": []any{"${PORT}:22", 8080},
			"none":  nil,
		},
	}

	out, err := SubstituteTree(input, env)
	require.NoError(t, err)

	stage := out["stage_1"].(map[string]any)
	assert.Equal(t, "ubuntu:24.04", stage["image"].(map[string]any)["base"])
	ssh := stage["ssh"].(map[string]any)
	assert.Equal(t, true, ssh["enable"])
	assert.Equal(t, 22, ssh["port"])
	assert.Equal(t, "2222", ssh["host_port"])
	assert.Equal(t, []any{"2222:22", 8080}, stage["ports"])
	assert.Nil(t, stage["none"])

	// input untouched
	assert.Equal(t, "${IMG}", input["stage_1"].(map[string]any)["image"].(map[string]any)["base"])
}

func TestSubstituteTree_Nil(t *testing.T) {
	out, err := SubstituteTree(nil, Environment{})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestRewritePassthrough(t *testing.T) {
	assert.Equal(t, "${DISPLAY}", RewritePassthrough("{{DISPLAY}}"))
	assert.Equal(t, "a ${X:-b c} d", RewritePassthrough("a {{X:-b c}} d"))
	assert.Equal(t, "{{ not a marker }}", RewritePassthrough("{{ not a marker }}"))
	assert.Equal(t, "plain", RewritePassthrough("plain"))
}

func TestRewritePassthroughTree(t *testing.T) {
	tree := map[string]any{
		"environment": map[string]any{"DISPLAY": "{{DISPLAY:-:0}}"},
		"list":        []any{"{{A}}", 1},
	}
	RewritePassthroughTree(tree)
	assert.Equal(t, "${DISPLAY:-:0}", tree["environment"].(map[string]any)["DISPLAY"])
	assert.Equal(t, []any{"${A}", 1}, tree["list"])
}

func TestCheckLeftovers(t *testing.T) {
	clean := map[string]any{"services": map[string]any{"a": map[string]any{"image": "x"}}}
	require.NoError(t, CheckLeftovers(clean))

	dirty := map[string]any{
		"services": map[string]any{
			"a": map[string]any{
				"environment": []any{"OK=1", "BAD=${UNSET}"},
			},
		},
	}
	err := CheckLeftovers(dirty)
	require.Error(t, err)
	assert.True(t, errors.Is(err, cfgerr.ErrLeftoverSubstitution))
	assert.True(t, cfgerr.IsPolicyViolation(err))

	var ce *cfgerr.Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "services.a.environment[1]", ce.Field)
	assert.Equal(t, "${UNSET}", ce.Value)
}
