// Package userconfig defines the two-stage user configuration (user_config.yml),
// how it is read from YAML, normalized, decoded and validated.
package userconfig

import (
	"path"
	"path/filepath"

	"github.com/trly/pei-docker/internal/scripts"
)

// Stage names as they appear in user_config.yml.
const (
	Stage1Key = "stage_1"
	Stage2Key = "stage_2"
)

// Storage types.
const (
	StorageAutoVolume   = "auto-volume"
	StorageManualVolume = "manual-volume"
	StorageHost         = "host"
	StorageImage        = "image"
)

// Device types.
const (
	DeviceCPU = "cpu"
	DeviceGPU = "gpu"
)

// Defaults applied when a section is present but a field is omitted.
const (
	DefaultSSHPort      = 22
	DefaultProxyAddress = "host.docker.internal"
)

// FixedStorageKeys are the only keys accepted under stage_2.storage, in
// the order they are mounted.
var FixedStorageKeys = []string{"app", "data", "workspace"}

// AptMirrors are repo_source values passed through by name instead of being
// treated as a path to a sources file.
var AptMirrors = []string{"tuna", "aliyun", "163", "ustc", "cn"}

// UserConfig is the root of user_config.yml.
type UserConfig struct {
	Stage1 *StageConfig `mapstructure:"stage_1"`
	Stage2 *StageConfig `mapstructure:"stage_2"`
}

// StageConfig configures one build stage. SSH and Apt are valid for stage_1
// only, Storage for stage_2 only.
type StageConfig struct {
	Image       *ImageConfig             `mapstructure:"image"`
	SSH         *SSHConfig               `mapstructure:"ssh"`
	Proxy       *ProxyConfig             `mapstructure:"proxy"`
	Apt         *AptConfig               `mapstructure:"apt"`
	Device      *DeviceConfig            `mapstructure:"device"`
	Custom      *CustomScriptConfig      `mapstructure:"custom"`
	Storage     map[string]StorageOption `mapstructure:"storage"`
	Mount       map[string]StorageOption `mapstructure:"mount"`
	Ports       []string                 `mapstructure:"ports"`
	Environment map[string]string        `mapstructure:"environment"`
}

// ImageConfig names the base and output images of a stage.
type ImageConfig struct {
	Base   string `mapstructure:"base"`
	Output string `mapstructure:"output"`
}

// SSHConfig configures the in-container ssh server.
type SSHConfig struct {
	Enable   *bool                    `mapstructure:"enable"`
	Port     int                      `mapstructure:"port"`
	HostPort int                      `mapstructure:"host_port"`
	Users    map[string]SSHUserConfig `mapstructure:"users"`
}

// Enabled reports whether ssh is on. A present ssh section defaults to on.
func (s *SSHConfig) Enabled() bool {
	if s == nil {
		return false
	}
	return s.Enable == nil || *s.Enable
}

// ContainerPort is the port sshd listens on inside the container.
func (s *SSHConfig) ContainerPort() int {
	if s == nil || s.Port == 0 {
		return DefaultSSHPort
	}
	return s.Port
}

// SSHUserConfig holds one ssh user's credentials.
type SSHUserConfig struct {
	Password    string `mapstructure:"password"`
	PubkeyFile  string `mapstructure:"pubkey_file"`
	PubkeyText  string `mapstructure:"pubkey_text"`
	PrivkeyFile string `mapstructure:"privkey_file"`
	PrivkeyText string `mapstructure:"privkey_text"`
	UID         *int   `mapstructure:"uid"`
}

// ProxyConfig points the build at an http proxy.
type ProxyConfig struct {
	Address          string `mapstructure:"address"`
	Port             int    `mapstructure:"port"`
	EnableGlobally   bool   `mapstructure:"enable_globally"`
	RemoveAfterBuild bool   `mapstructure:"remove_after_build"`
	UseHTTPS         bool   `mapstructure:"use_https"`
}

// Host returns the proxy address, defaulting to the docker host.
func (p *ProxyConfig) Host() string {
	if p == nil || p.Address == "" {
		return DefaultProxyAddress
	}
	return p.Address
}

// AptConfig selects the apt mirror used while building stage_1.
type AptConfig struct {
	RepoSource          string `mapstructure:"repo_source"`
	KeepRepoAfterBuild  *bool  `mapstructure:"keep_repo_after_build"`
	UseProxy            bool   `mapstructure:"use_proxy"`
	KeepProxyAfterBuild bool   `mapstructure:"keep_proxy_after_build"`
}

// KeepRepo reports whether the repo source stays in the image. Defaults to true.
func (a *AptConfig) KeepRepo() bool {
	if a == nil || a.KeepRepoAfterBuild == nil {
		return true
	}
	return *a.KeepRepoAfterBuild
}

// IsMirror reports whether repo_source names a built-in mirror.
func (a *AptConfig) IsMirror() bool {
	if a == nil {
		return false
	}
	for _, m := range AptMirrors {
		if a.RepoSource == m {
			return true
		}
	}
	return false
}

// DeviceConfig selects the compute device.
type DeviceConfig struct {
	Type string `mapstructure:"type"`
}

// Kind returns the device type, cpu when unset.
func (d *DeviceConfig) Kind() string {
	if d == nil || d.Type == "" {
		return DeviceCPU
	}
	return d.Type
}

// CustomScriptConfig lists user scripts per lifecycle hook. Each entry is
// "<path relative to installation/> [args...]".
type CustomScriptConfig struct {
	OnBuild     []string `mapstructure:"on_build"`
	OnFirstRun  []string `mapstructure:"on_first_run"`
	OnEveryRun  []string `mapstructure:"on_every_run"`
	OnUserLogin []string `mapstructure:"on_user_login"`
	OnEntry     []string `mapstructure:"on_entry"`
}

// Hook names.
const (
	HookOnBuild     = scripts.HookOnBuild
	HookOnFirstRun  = scripts.HookOnFirstRun
	HookOnEveryRun  = scripts.HookOnEveryRun
	HookOnUserLogin = scripts.HookOnUserLogin
	HookOnEntry     = scripts.HookOnEntry
)

// HookMap returns the entries keyed by hook name.
func (c *CustomScriptConfig) HookMap() map[string][]string {
	out := make(map[string][]string, len(scripts.Hooks))
	for _, hook := range scripts.Hooks {
		out[hook] = c.Entries(hook)
	}
	return out
}

// Entries returns the script entries registered for hook.
func (c *CustomScriptConfig) Entries(hook string) []string {
	if c == nil {
		return nil
	}
	switch hook {
	case HookOnBuild:
		return c.OnBuild
	case HookOnFirstRun:
		return c.OnFirstRun
	case HookOnEveryRun:
		return c.OnEveryRun
	case HookOnUserLogin:
		return c.OnUserLogin
	case HookOnEntry:
		return c.OnEntry
	}
	return nil
}

// StorageOption describes one storage or mount entry.
type StorageOption struct {
	Type       string `mapstructure:"type"`
	HostPath   string `mapstructure:"host_path"`
	VolumeName string `mapstructure:"volume_name"`
	DstPath    string `mapstructure:"dst_path"`
}

// Stages returns the present stages in build order, paired with their keys.
func (c *UserConfig) Stages() []Stage {
	var out []Stage
	if c.Stage1 != nil {
		out = append(out, Stage{Key: Stage1Key, Index: 1, Config: c.Stage1})
	}
	if c.Stage2 != nil {
		out = append(out, Stage{Key: Stage2Key, Index: 2, Config: c.Stage2})
	}
	return out
}

// Stage pairs a stage config with its identity.
type Stage struct {
	Key    string
	Index  int
	Config *StageConfig
}

// Dir is the stage's directory name under installation/, e.g. "stage-1".
func (s Stage) Dir() string {
	if s.Index == 1 {
		return "stage-1"
	}
	return "stage-2"
}

// EffectiveBaseImage returns the stage's base image. A stage_2 without its own
// base builds on top of stage_1's output.
func (c *UserConfig) EffectiveBaseImage(s Stage) string {
	if s.Config.Image != nil && s.Config.Image.Base != "" {
		return s.Config.Image.Base
	}
	if s.Index == 2 && c.Stage1 != nil && c.Stage1.Image != nil {
		return c.Stage1.Image.Output
	}
	return ""
}

// Project layout shared by every generated path.
const (
	// InstallDir is the project subdirectory copied into the image.
	InstallDir = "installation"
	// ContainerInstallRoot is where InstallDir lands inside the container.
	ContainerInstallRoot = "/pei-from-host"
	// GeneratedDir holds artifacts written by the compiler, per stage.
	GeneratedDir = "generated"
)

// HostPath joins a path relative to installation/ onto projectDir.
func HostPath(projectDir, rel string) string {
	return filepath.Join(projectDir, InstallDir, filepath.FromSlash(rel))
}

// ContainerPath maps a path relative to installation/ into the container.
func ContainerPath(rel string) string {
	return path.Join(ContainerInstallRoot, filepath.ToSlash(rel))
}

// GeneratedRel is the installation-relative path of a generated artifact.
func (s Stage) GeneratedRel(name string) string {
	return path.Join(s.Dir(), GeneratedDir, name)
}
