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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trly/pei-docker/internal/processor"
)

// ValidateCommand represents the validate command for pei-docker CLI.
type ValidateCommand struct{}

var (
	validateTemplate string
	validateFormat   string
)

// errInvalidConfig is returned after the issues have been printed.
var errInvalidConfig = errors.New("user config is invalid")

// GetCobraCommand returns the cobra command for validate operations.
func (c *ValidateCommand) GetCobraCommand() *cobra.Command {
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Checks user_config.yml without writing any file",
		Long: `Checks user_config.yml without writing any file.

Runs the full compilation, including file and ssh key checks and compose schema
validation of the result, and reports every problem found together with the
field it belongs to.

Examples:
  # Validate the project in the current directory
  pei-docker validate

  # Machine readable report
  pei-docker validate --format json`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := getApp(cmd)
			if app == nil {
				return errors.New("application not initialized")
			}
			if !validOutputFormat(validateFormat) {
				return fmt.Errorf("unsupported output format: %s", validateFormat)
			}
			return c.run(cmd, app)
		},
	}

	validateCmd.Flags().StringVarP(&validateTemplate, "template", "t", "", "Compose template file, defaults to the built-in template")
	validateCmd.Flags().StringVarP(&validateFormat, "format", "f", "text", "Output format: text, json or yaml")

	return validateCmd
}

func (c *ValidateCommand) run(cmd *cobra.Command, app *App) error {
	settings := *app.Config
	if cmd.Flags().Changed("template") {
		settings.TemplateFile = validateTemplate
	}

	opts := processor.Options{
		ProjectDir:     settings.ProjectDir,
		Env:            app.Env,
		Fs:             app.Fs,
		Logger:         app.Logger,
		SkipArtifacts:  true,
		HomeDir:        app.HomeDir,
		ValidateOutput: true,
	}
	result, err := compileProject(cmd.Context(), app, settings.ConfigPath(), settings.TemplatePath(), opts)

	report := OperationResult{Success: err == nil}
	if err != nil {
		report.Message = "user config is invalid"
		report.Errors = issuesFrom(err)
	} else {
		report.Message = "user config is valid"
		report.Warnings = result.Warnings
	}

	out := cmd.OutOrStdout()
	if validateFormat == "text" {
		for _, w := range report.Warnings {
			fmt.Fprintln(out, colorWarning("warning: "+w))
		}
		for _, e := range report.Errors {
			fmt.Fprintln(out, colorError(e.Message))
		}
		if report.Success {
			fmt.Fprintln(out, colorSuccess(settings.ConfigPath()+" is valid"))
		}
	} else if perr := PrintOutput(out, validateFormat, report); perr != nil {
		return perr
	}

	if !report.Success {
		return fmt.Errorf("%w: %d problem(s) found", errInvalidConfig, len(report.Errors))
	}
	return nil
}
