/*
Copyright © 2025 Travis Lyons travis.lyons@gmail.com

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"

	"github.com/trly/pei-docker/internal/compose"
	"github.com/trly/pei-docker/internal/processor"
	"github.com/trly/pei-docker/internal/userconfig"
)

// ConfigureCommand represents the configure command for pei-docker CLI.
type ConfigureCommand struct{}

var (
	configureOutput       string
	configureTemplate     string
	configureKeepHelpers  bool
	configureSkipArtifact bool
	configureNoValidate   bool
	configureSummary      bool
)

// GetCobraCommand returns the cobra command for configure operations.
func (c *ConfigureCommand) GetCobraCommand() *cobra.Command {
	configureCmd := &cobra.Command{
		Use:   "configure",
		Short: "Generates docker-compose.yml and installation artifacts from user_config.yml",
		Long: `Generates docker-compose.yml and installation artifacts from user_config.yml.

The user config is substituted against the current environment, validated and
compiled onto the compose template. Lifecycle hook wrappers, per-stage
environment files and staged ssh keys are written under installation/.
Nothing is written when any part of the config is invalid.

Examples:
  # Configure the project in the current directory
  pei-docker configure

  # Print the compose document instead of writing it
  pei-docker configure -o -

  # Use a custom template and keep the x-cfg- helper sections
  pei-docker configure -t my-template.yml --keep-helper-keys`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := getApp(cmd)
			if app == nil {
				return errors.New("application not initialized")
			}
			return c.run(cmd, app)
		},
	}

	configureCmd.Flags().StringVarP(&configureOutput, "output", "o", "", "Compose output file, or - for stdout")
	configureCmd.Flags().StringVarP(&configureTemplate, "template", "t", "", "Compose template file, defaults to the built-in template")
	configureCmd.Flags().BoolVar(&configureKeepHelpers, "keep-helper-keys", false, "Keep x-cfg- helper sections in the output")
	configureCmd.Flags().BoolVar(&configureSkipArtifact, "skip-artifacts", false, "Only write the compose document")
	configureCmd.Flags().BoolVar(&configureNoValidate, "no-validate", false, "Skip compose schema validation of the output")
	configureCmd.Flags().BoolVar(&configureSummary, "summary", false, "Print a summary of the generated services")

	return configureCmd
}

func (c *ConfigureCommand) run(cmd *cobra.Command, app *App) error {
	settings := *app.Config
	if cmd.Flags().Changed("output") {
		settings.OutputFile = configureOutput
	}
	if cmd.Flags().Changed("template") {
		settings.TemplateFile = configureTemplate
	}
	if cmd.Flags().Changed("keep-helper-keys") {
		settings.KeepHelperKeys = configureKeepHelpers
	}
	if cmd.Flags().Changed("skip-artifacts") {
		settings.SkipArtifacts = configureSkipArtifact
	}
	if cmd.Flags().Changed("no-validate") {
		settings.ValidateOutput = !configureNoValidate
	}

	opts := processor.Options{
		ProjectDir:     settings.ProjectDir,
		Env:            app.Env,
		Fs:             app.Fs,
		Logger:         app.Logger,
		KeepHelperKeys: settings.KeepHelperKeys,
		SkipArtifacts:  settings.SkipArtifacts,
		HomeDir:        app.HomeDir,
		ValidateOutput: settings.ValidateOutput,
	}
	result, err := compileProject(cmd.Context(), app, settings.ConfigPath(), settings.TemplatePath(), opts)
	if err != nil {
		return err
	}

	data, err := compose.Marshal(result.Compose)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	toStdout := settings.OutputFile == "-"
	if toStdout {
		if _, err := out.Write(data); err != nil {
			return err
		}
		// Keep stdout a clean compose document.
		out = cmd.ErrOrStderr()
	} else {
		outputPath := settings.OutputPath()
		changed, err := app.FSService.WriteFile(outputPath, data, 0o644)
		if err != nil {
			return fmt.Errorf("writing %s: %w", outputPath, err)
		}
		app.Logger.Info("Wrote compose file", "path", outputPath, "changed", changed)
	}

	for _, w := range result.Warnings {
		fmt.Fprintln(out, colorWarning("warning: "+w))
	}

	if len(result.Artifacts) > 0 {
		printArtifacts(out, settings.ProjectDir, result.Artifacts)
	}

	if configureSummary {
		project, err := compose.Inspect(cmd.Context(), result.Compose, settings.ProjectDir, app.Env)
		if err != nil {
			return err
		}
		printSummary(out, compose.Summarize(project))
	}

	if !toStdout {
		fmt.Fprintln(out, colorSuccess("Configured "+settings.OutputPath()))
	}
	return nil
}

// compileProject reads the user config and template and runs the processor.
func compileProject(ctx context.Context, app *App, configPath, templatePath string, opts processor.Options) (*processor.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	raw, err := userconfig.ReadFile(app.Fs, configPath)
	if err != nil {
		return nil, err
	}
	template, err := compose.LoadTemplate(app.Fs, templatePath)
	if err != nil {
		return nil, err
	}
	app.Logger.Debug("Compiling user config", "config", configPath, "template", templateName(templatePath))
	return processor.Process(ctx, raw, template, opts)
}

func templateName(path string) string {
	if path == "" {
		return "built-in"
	}
	return path
}

func printArtifacts(w io.Writer, projectDir string, artifacts []processor.Artifact) {
	headerFmt := color.New(color.FgGreen, color.Underline).SprintfFunc()
	columnFmt := color.New(color.FgYellow).SprintfFunc()

	tbl := table.New("File", "Mode", "Status")
	tbl.WithWriter(w)
	tbl.WithHeaderFormatter(headerFmt).WithFirstColumnFormatter(columnFmt)

	for _, a := range artifacts {
		status := "unchanged"
		if a.Changed {
			status = "written"
		}
		tbl.AddRow(relPath(projectDir, a.Path), fmt.Sprintf("%04o", a.Mode.Perm()), status)
	}
	tbl.Print()
}

func printSummary(w io.Writer, services []compose.ServiceSummary) {
	headerFmt := color.New(color.FgGreen, color.Underline).SprintfFunc()
	columnFmt := color.New(color.FgYellow).SprintfFunc()

	tbl := table.New("Service", "Image", "Ports", "Volumes", "GPU")
	tbl.WithWriter(w)
	tbl.WithHeaderFormatter(headerFmt).WithFirstColumnFormatter(columnFmt)

	for _, s := range services {
		gpu := ""
		if s.GPU {
			gpu = "yes"
		}
		tbl.AddRow(s.Name, s.Image, strings.Join(s.Ports, ", "), strings.Join(s.Volumes, ", "), gpu)
	}
	tbl.Print()
}

func relPath(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

