package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/trly/pei-docker/internal/config"
	"github.com/trly/pei-docker/internal/testutil"
)

func TestConfigShowCommand(t *testing.T) {
	proj := testutil.NewMemProject(t)
	app := NewTestApp(t, proj, testutil.WithOutputFile("compose.yml"))

	out, err := RunRoot(t, app, "config", "show")
	require.NoError(t, err)

	var got config.Settings
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, proj.Dir, got.ProjectDir)
	assert.Equal(t, "compose.yml", got.OutputFile)
	assert.Equal(t, config.DefaultConfigFile, got.ConfigFile)
}

func TestConfigInitCommand(t *testing.T) {
	proj := testutil.NewMemProject(t)
	app := NewTestApp(t, proj)
	settingsPath := "/home/me/.config/pei-docker/pei-docker.yaml"

	out, err := RunRoot(t, app, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Settings file created at "+settingsPath)

	data, err := app.FSService.ReadFile(settingsPath)
	require.NoError(t, err)
	var got config.Settings
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, *config.DefaultSettings(), got)

	_, err = RunRoot(t, app, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = RunRoot(t, app, "config", "init", "--force")
	assert.NoError(t, err)
}
