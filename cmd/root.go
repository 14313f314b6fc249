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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/trly/pei-docker/internal/config"
	"github.com/trly/pei-docker/internal/log"
)

// RootCommand represents the root command for pei-docker CLI.
type RootCommand struct{}

var (
	settingsFilePath string
	projectDir       string
	userConfigFile   string
	verbose          bool
)

// GetCobraCommand returns the cobra root command for pei-docker CLI.
func (c *RootCommand) GetCobraCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pei-docker",
		Short: "pei-docker compiles a two-stage user_config.yml into a docker compose project.",
		Long: `pei-docker compiles a two-stage user_config.yml into a docker compose project.
It writes docker-compose.yml together with the lifecycle hook wrappers, environment
files and ssh key material the image build copies from installation/.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Tests inject their own App.
			if getApp(cmd) != nil {
				return nil
			}

			provider := config.NewDefaultConfigProvider()
			if settingsFilePath != "" {
				provider.SetConfigFilePath(settingsFilePath)
			}
			cfg, err := provider.InitConfig()
			if err != nil {
				return err
			}
			applyRootFlags(cmd, cfg)

			log.Init(cfg.Verbose)
			logger := log.GetLogger()
			logger.Debug("Loaded settings", "projectDir", cfg.ProjectDir, "configFile", cfg.ConfigFile)

			app := NewApp(logger, provider)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, appContextKey, app))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&settingsFilePath, "settings", "", "Path to the pei-docker settings file")
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project-dir", "p", "", "Project directory holding user_config.yml and installation/")
	rootCmd.PersistentFlags().StringVarP(&userConfigFile, "config", "c", "", "User config file, relative to the project directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(
		(&ConfigureCommand{}).GetCobraCommand(),
		(&ValidateCommand{}).GetCobraCommand(),
		(&KeygenCommand{}).GetCobraCommand(),
		(&ConfigCommand{}).GetCobraCommand(),
		(&VersionCommand{}).GetCobraCommand(),
	)

	return rootCmd
}

// applyRootFlags lets explicitly set flags override file and env settings.
func applyRootFlags(cmd *cobra.Command, cfg *config.Settings) {
	flags := cmd.Flags()
	if flags.Changed("project-dir") {
		cfg.ProjectDir = projectDir
	}
	if flags.Changed("config") {
		cfg.ConfigFile = userConfigFile
	}
	if flags.Changed("verbose") {
		cfg.Verbose = verbose
	}
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := (&RootCommand{}).GetCobraCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, colorError(err.Error()))
		os.Exit(1)
	}
}
