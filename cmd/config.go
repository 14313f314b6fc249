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
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/trly/pei-docker/internal/config"
)

// ConfigCommand represents the config command for pei-docker CLI.
type ConfigCommand struct{}

// GetCobraCommand returns the cobra command for tool settings operations.
func (c *ConfigCommand) GetCobraCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage pei-docker settings",
		Long: `Manage pei-docker settings.

Settings are read from pei-docker.yaml in $HOME/.config/pei-docker or the
current directory, and from PEIDOCKER_* environment variables.`,
	}

	configCmd.AddCommand(
		(&ConfigShowCommand{}).GetCobraCommand(),
		(&ConfigInitCommand{}).GetCobraCommand(),
	)
	return configCmd
}

// ConfigShowCommand represents the config show command.
type ConfigShowCommand struct{}

// GetCobraCommand returns the cobra command for config show.
func (c *ConfigShowCommand) GetCobraCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current settings",
		Long:  "Display the current settings including defaults and overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := getApp(cmd)
			if app == nil {
				return errors.New("application not initialized")
			}
			output, err := yaml.Marshal(app.Config)
			if err != nil {
				return fmt.Errorf("marshalling settings: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(output)
			return err
		},
	}
}

// ConfigInitCommand represents the config init command.
type ConfigInitCommand struct{}

// GetCobraCommand returns the cobra command for config init.
func (c *ConfigInitCommand) GetCobraCommand() *cobra.Command {
	var force bool

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default settings file",
		Long:  "Write a settings file holding the defaults to $HOME/.config/pei-docker/pei-docker.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := getApp(cmd)
			if app == nil {
				return errors.New("application not initialized")
			}
			path, err := settingsFilePathFor(app)
			if err != nil {
				return err
			}

			exists, err := app.FSService.Exists(path)
			if err != nil {
				return err
			}
			if exists && !force {
				return fmt.Errorf("settings file already exists at %s, use --force to overwrite", path)
			}

			data, err := yaml.Marshal(config.DefaultSettings())
			if err != nil {
				return fmt.Errorf("marshalling settings: %w", err)
			}
			if _, err := app.FSService.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("writing settings file %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Settings file created at %s\n", path)
			return nil
		},
	}

	initCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing settings file")
	return initCmd
}

func settingsFilePathFor(app *App) (string, error) {
	home := app.HomeDir
	if home == "" {
		dir, err := homedir.Dir()
		if err != nil {
			return "", fmt.Errorf("locating home directory: %w", err)
		}
		home = dir
	}
	return filepath.Join(home, ".config", "pei-docker", config.SettingsFileName+".yaml"), nil
}
