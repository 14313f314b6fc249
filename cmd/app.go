// Package cmd provides the command line interface for pei-docker
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
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/trly/pei-docker/internal/config"
	"github.com/trly/pei-docker/internal/envsubst"
	"github.com/trly/pei-docker/internal/fs"
	"github.com/trly/pei-docker/internal/log"
)

type contextKey string

// appContextKey stores the *App in a command's context.
const appContextKey contextKey = "app"

// App holds the application dependencies for command line interface.
type App struct {
	Logger         log.Logger
	Config         *config.Settings
	ConfigProvider config.Provider
	Fs             afero.Fs
	FSService      *fs.Service
	// Env is the environment user_config.yml is substituted against.
	Env envsubst.Environment
	// HomeDir overrides the home directory used for "~" ssh keys.
	HomeDir string
}

// NewApp creates a new App backed by the OS filesystem and environment.
func NewApp(logger log.Logger, configProv config.Provider) *App {
	return NewAppWithFs(logger, configProv, afero.NewOsFs(), envsubst.FromOS())
}

// NewAppWithFs creates a new App with explicit filesystem and environment injection.
func NewAppWithFs(logger log.Logger, configProv config.Provider, fsys afero.Fs, env envsubst.Environment) *App {
	return &App{
		Logger:         logger,
		Config:         configProv.GetConfig(),
		ConfigProvider: configProv,
		Fs:             fsys,
		FSService:      fs.NewServiceWithFs(fsys, logger),
		Env:            env,
	}
}

// getApp retrieves the App from the command context.
func getApp(cmd *cobra.Command) *App {
	if cmd.Context() == nil {
		return nil
	}
	app, _ := cmd.Context().Value(appContextKey).(*App)
	return app
}
