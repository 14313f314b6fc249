package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trly/pei-docker/internal/compose"
	"github.com/trly/pei-docker/internal/testutil"
)

const simpleConfig = `
	stage_1:
	  image:
	    base: ubuntu:24.04
	    output: demo:stage-1
	  ssh:
	    enable: true
	    host_port: 2222
	    users:
	      me:
	        password: x
	  environment:
	    LANG: C.UTF-8
	stage_2:
	  image:
	    output: demo:stage-2
`

func TestConfigureCommand_WritesProject(t *testing.T) {
	proj := testutil.NewMemProject(t)
	proj.WriteConfig(simpleConfig)
	app := NewTestApp(t, proj)

	out, err := RunRoot(t, app, "configure")
	require.NoError(t, err)

	require.True(t, proj.Exists("docker-compose.yml"))
	doc, err := compose.ParseTemplate([]byte(proj.Read("docker-compose.yml")))
	require.NoError(t, err)
	services, ok := doc["services"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, services, "stage-1")
	assert.Contains(t, services, "stage-2")
	assert.NotContains(t, doc, "x-cfg-stage-1")

	assert.Equal(t, "LANG=C.UTF-8\n", proj.Read("installation/stage-1/generated/_etc_environment.sh"))
	assert.True(t, proj.Exists("installation/stage-2/generated/_custom-on-entry.sh"))

	assert.Contains(t, out, "installation/stage-1/generated/_custom-on-build.sh")
	assert.Contains(t, out, "written")
	assert.Contains(t, out, "Configured /proj/docker-compose.yml")
}

func TestConfigureCommand_SecondRunIsUnchanged(t *testing.T) {
	proj := testutil.NewMemProject(t)
	proj.WriteConfig(simpleConfig)
	app := NewTestApp(t, proj)

	_, err := RunRoot(t, app, "configure")
	require.NoError(t, err)
	first := proj.Read("docker-compose.yml")

	out, err := RunRoot(t, app, "configure")
	require.NoError(t, err)
	assert.Equal(t, first, proj.Read("docker-compose.yml"))
	assert.Contains(t, out, "unchanged")
	assert.NotContains(t, out, "written")
}

func TestConfigureCommand_Stdout(t *testing.T) {
	proj := testutil.NewMemProject(t)
	proj.WriteConfig(simpleConfig)
	app := NewTestApp(t, proj)

	out, err := RunRoot(t, app, "configure", "-o", "-", "--skip-artifacts")
	require.NoError(t, err)

	assert.Contains(t, out, "services:")
	assert.Contains(t, out, "demo:stage-2")
	assert.False(t, proj.Exists("docker-compose.yml"))
	assert.False(t, proj.Exists("installation/stage-1/generated/_custom-on-entry.sh"))
}

func TestConfigureCommand_KeepHelperKeys(t *testing.T) {
	proj := testutil.NewMemProject(t)
	proj.WriteConfig(simpleConfig)
	app := NewTestApp(t, proj)

	_, err := RunRoot(t, app, "configure", "--keep-helper-keys", "--output", "out/compose.yml")
	require.NoError(t, err)

	assert.Contains(t, proj.Read("out/compose.yml"), "x-cfg-stage-1:")
}

func TestConfigureCommand_CustomTemplate(t *testing.T) {
	proj := testutil.NewMemProject(t)
	proj.WriteConfig(simpleConfig)
	proj.WriteFile("template.yml", `
services:
  stage-1:
    image: ${x-cfg-stage-1.image.output}
  stage-2:
    image: ${x-cfg-stage-2.image.output}
`)
	app := NewTestApp(t, proj)

	_, err := RunRoot(t, app, "configure", "-t", "template.yml", "--no-validate")
	require.NoError(t, err)

	doc, err := compose.ParseTemplate([]byte(proj.Read("docker-compose.yml")))
	require.NoError(t, err)
	stage1 := doc["services"].(map[string]any)["stage-1"].(map[string]any)
	assert.Equal(t, "demo:stage-1", stage1["image"])
	assert.Equal(t, []any{"2222:22"}, stage1["ports"])
}

func TestConfigureCommand_InvalidConfigWritesNothing(t *testing.T) {
	proj := testutil.NewMemProject(t)
	proj.WriteConfig(`
		stage_1:
		  image:
		    base: ubuntu:24.04
		    output: demo:stage-1
		  custom:
		    on_build:
		      - stage-1/custom/absent.sh
	`)
	app := NewTestApp(t, proj)

	_, err := RunRoot(t, app, "configure")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage_1.custom.on_build[0]")
	assert.False(t, proj.Exists("docker-compose.yml"))
	assert.False(t, proj.Exists("installation/stage-1/generated/_custom-on-build.sh"))
}

func TestConfigureCommand_MissingUserConfig(t *testing.T) {
	app := NewTestApp(t, testutil.NewMemProject(t))

	_, err := RunRoot(t, app, "configure")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading user config")
}

func TestConfigureCommand_Summary(t *testing.T) {
	proj := testutil.NewDiskProject(t)
	proj.WriteConfig(simpleConfig)
	app := NewTestApp(t, proj)

	out, err := RunRoot(t, app, "configure", "--summary")
	require.NoError(t, err)

	assert.Contains(t, out, "Service")
	assert.Contains(t, out, "demo:stage-1")
	assert.Contains(t, out, "2222:22")
}

func TestConfigureCommand_RejectsArgs(t *testing.T) {
	app := NewTestApp(t, testutil.NewMemProject(t))

	_, err := RunRoot(t, app, "configure", "extra")
	assert.Error(t, err)
}
