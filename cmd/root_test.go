package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trly/pei-docker/internal/config"
	"github.com/trly/pei-docker/internal/testutil"
)

func TestRootCommandFlags(t *testing.T) {
	cmd := (&RootCommand{}).GetCobraCommand()

	tests := []struct {
		name      string
		shorthand string
		def       string
	}{
		{name: "project-dir", shorthand: "p", def: ""},
		{name: "config", shorthand: "c", def: ""},
		{name: "settings", def: ""},
		{name: "verbose", shorthand: "v", def: "false"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := cmd.PersistentFlags().Lookup(tt.name)
			require.NotNil(t, flag)
			assert.Equal(t, tt.shorthand, flag.Shorthand)
			assert.Equal(t, tt.def, flag.DefValue)
		})
	}
}

func TestRootCommandSubcommands(t *testing.T) {
	cmd := (&RootCommand{}).GetCobraCommand()

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"configure", "validate", "keygen", "config", "version"}, names)
}

func TestRootCommandKeepsInjectedApp(t *testing.T) {
	proj := testutil.NewMemProject(t)
	app := NewTestApp(t, proj)

	out, err := RunRoot(t, app, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "pei-docker version")
	assert.Equal(t, proj.Dir, app.Config.ProjectDir)
}

func TestApplyRootFlags(t *testing.T) {
	cmd := (&RootCommand{}).GetCobraCommand()
	require.NoError(t, cmd.ParseFlags([]string{"-p", "/work", "-c", "other.yml"}))

	cfg := config.DefaultSettings()
	applyRootFlags(cmd, cfg)

	assert.Equal(t, "/work", cfg.ProjectDir)
	assert.Equal(t, "other.yml", cfg.ConfigFile)
	assert.False(t, cfg.Verbose)
	assert.Equal(t, "/work/other.yml", cfg.ConfigPath())
}

func TestGetAppWithoutContext(t *testing.T) {
	cmd := (&RootCommand{}).GetCobraCommand()
	assert.Nil(t, getApp(cmd))
}
