// Package config provides tool settings for pei-docker.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Provider defines the interface for configuration providers.
type Provider interface {
	// GetConfig returns the current application configuration.
	GetConfig() *Settings
	// SetConfig sets the application configuration.
	SetConfig(c *Settings)
	// InitConfig initializes the application configuration.
	InitConfig() (*Settings, error)
	// SetConfigFilePath sets the configuration file path.
	SetConfigFilePath(p string)
}

// Default values for tool settings.
const (
	DefaultProjectDir     = "."
	DefaultConfigFile     = "user_config.yml"
	DefaultTemplateFile   = ""
	DefaultOutputFile     = "docker-compose.yml"
	DefaultKeepHelperKeys = false
	DefaultSkipArtifacts  = false
	DefaultValidateOutput = true
	DefaultVerbose        = false

	// EnvPrefix prefixes environment overrides, e.g. PEIDOCKER_PROJECTDIR.
	EnvPrefix = "PEIDOCKER"
	// SettingsFileName is the settings file searched for without extension.
	SettingsFileName = "pei-docker"
)

// Settings controls how a project is processed. Paths other than
// ProjectDir are relative to ProjectDir unless absolute.
type Settings struct {
	ProjectDir     string `yaml:"projectDir" mapstructure:"projectDir"`
	ConfigFile     string `yaml:"configFile" mapstructure:"configFile"`
	TemplateFile   string `yaml:"templateFile" mapstructure:"templateFile"`
	OutputFile     string `yaml:"outputFile" mapstructure:"outputFile"`
	KeepHelperKeys bool   `yaml:"keepHelperKeys" mapstructure:"keepHelperKeys"`
	SkipArtifacts  bool   `yaml:"skipArtifacts" mapstructure:"skipArtifacts"`
	ValidateOutput bool   `yaml:"validateOutput" mapstructure:"validateOutput"`
	Verbose        bool   `yaml:"verbose" mapstructure:"verbose"`
}

// DefaultSettings returns Settings populated with defaults.
func DefaultSettings() *Settings {
	return &Settings{
		ProjectDir:     DefaultProjectDir,
		ConfigFile:     DefaultConfigFile,
		TemplateFile:   DefaultTemplateFile,
		OutputFile:     DefaultOutputFile,
		KeepHelperKeys: DefaultKeepHelperKeys,
		SkipArtifacts:  DefaultSkipArtifacts,
		ValidateOutput: DefaultValidateOutput,
		Verbose:        DefaultVerbose,
	}
}

// ResolvePath returns p joined to ProjectDir when p is relative.
// "-" and "" are returned unchanged.
func (s *Settings) ResolvePath(p string) string {
	if p == "" || p == "-" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.ProjectDir, p)
}

// ConfigPath is the absolute or project-relative path of user_config.yml.
func (s *Settings) ConfigPath() string {
	return s.ResolvePath(s.ConfigFile)
}

// OutputPath is where the compose document is written, "-" for stdout.
func (s *Settings) OutputPath() string {
	return s.ResolvePath(s.OutputFile)
}

// TemplatePath is the template file, "" for the embedded default.
func (s *Settings) TemplatePath() string {
	return s.ResolvePath(s.TemplateFile)
}

// viperConfigProvider implements Provider on top of a viper instance.
type viperConfigProvider struct {
	v   *viper.Viper
	cfg *Settings
	// file is the settings file set through SetConfigFilePath. When set,
	// the search path is not consulted and the file must exist.
	file string
}

// NewDefaultConfigProvider creates a provider using the global viper instance,
// so cobra flag bindings made through viper.BindPFlag are honored.
func NewDefaultConfigProvider() Provider {
	return &viperConfigProvider{v: viper.GetViper()}
}

// NewConfigProvider creates a provider with its own viper instance.
func NewConfigProvider() Provider {
	return &viperConfigProvider{v: viper.New()}
}

func (p *viperConfigProvider) SetConfig(c *Settings) {
	p.cfg = c
}

func (p *viperConfigProvider) GetConfig() *Settings {
	if p.cfg == nil {
		return DefaultSettings()
	}
	return p.cfg
}

func (p *viperConfigProvider) SetConfigFilePath(path string) {
	p.file = path
}

func (p *viperConfigProvider) InitConfig() (*Settings, error) {
	cfg, err := initConfigInternal(p.v, p.file)
	if err != nil {
		return nil, err
	}
	p.cfg = cfg
	return cfg, nil
}

func initConfigInternal(v *viper.Viper, file string) (*Settings, error) {
	defaults := DefaultSettings()

	v.SetDefault("projectDir", defaults.ProjectDir)
	v.SetDefault("configFile", defaults.ConfigFile)
	v.SetDefault("templateFile", defaults.TemplateFile)
	v.SetDefault("outputFile", defaults.OutputFile)
	v.SetDefault("keepHelperKeys", defaults.KeepHelperKeys)
	v.SetDefault("skipArtifacts", defaults.SkipArtifacts)
	v.SetDefault("validateOutput", defaults.ValidateOutput)
	v.SetDefault("verbose", defaults.Verbose)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigType("yaml")
	if file != "" {
		// SetConfigName would reset the explicit file, so it is only used
		// for the search path.
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading settings %s: %w", file, err)
		}
	} else {
		v.SetConfigName(SettingsFileName)
		v.AddConfigPath(os.ExpandEnv("$HOME/.config/pei-docker"))
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading settings: %w", err)
			}
		}
	}

	cfg := &Settings{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}
	return cfg, nil
}
