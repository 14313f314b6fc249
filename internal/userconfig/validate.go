package userconfig

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/trly/pei-docker/internal/cfgerr"
	"github.com/trly/pei-docker/internal/ports"
	"github.com/trly/pei-docker/internal/scripts"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_-]*$`)
	envKeyPattern   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

	// Paths and variables that only exist once the container is running.
	runtimePathPattern = regexp.MustCompile(`/soft/|/hard/volume/|\$\{?PEI_SOFT_|\$\{?PEI_PATH_SOFT`)
)

// Validate checks the whole config and returns every violation found, as a
// multierror of *cfgerr.Error values, or nil.
func (c *UserConfig) Validate() error {
	var result *multierror.Error
	if c.Stage1 == nil && c.Stage2 == nil {
		result = multierror.Append(result, cfgerr.Schema(cfgerr.ErrMissingField, "", "",
			"at least one of stage_1 or stage_2 is required"))
		return result.ErrorOrNil()
	}

	for _, st := range c.Stages() {
		if err := c.validateStage(st); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (c *UserConfig) validateStage(st Stage) error {
	var result *multierror.Error
	add := func(err error) {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	cfg := st.Config
	prefix := st.Key

	add(c.validateImage(st))

	if st.Index == 2 {
		if cfg.SSH != nil {
			add(cfgerr.Schema(cfgerr.ErrUnknownKey, prefix+".ssh", "", "ssh is only configurable in stage_1"))
		}
		if cfg.Apt != nil {
			add(cfgerr.Schema(cfgerr.ErrUnknownKey, prefix+".apt", "", "apt is only configurable in stage_1"))
		}
	} else {
		add(cfg.SSH.Validate(prefix + ".ssh"))
		add(validateApt(cfg, prefix))
		if len(cfg.Storage) > 0 {
			add(cfgerr.Schema(cfgerr.ErrUnknownKey, prefix+".storage", "", "storage is only configurable in stage_2, use mount instead"))
		}
	}

	add(cfg.Proxy.Validate(prefix + ".proxy"))

	if cfg.Device != nil {
		switch cfg.Device.Kind() {
		case DeviceCPU, DeviceGPU:
		default:
			add(cfgerr.Schema(cfgerr.ErrInvalidValue, prefix+".device.type", cfg.Device.Type, "must be cpu or gpu"))
		}
	}

	for _, key := range sortedKeys(cfg.Storage) {
		field := prefix + ".storage." + key
		if !isFixedStorageKey(key) {
			add(cfgerr.Schema(cfgerr.ErrInvalidValue, field, key,
				"storage keys are limited to "+strings.Join(FixedStorageKeys, ", ")))
			continue
		}
		add(cfg.Storage[key].Validate(field, false))
	}
	for _, key := range sortedKeys(cfg.Mount) {
		add(cfg.Mount[key].Validate(prefix+".mount."+key, true))
	}

	for i, entry := range cfg.Ports {
		if _, err := ports.Decode([]string{entry}); err != nil {
			add(cfgerr.WithField(err, fmt.Sprintf("%s.ports[%d]", prefix, i)))
		}
	}

	for _, k := range sortedKeys(cfg.Environment) {
		if !envKeyPattern.MatchString(k) {
			add(cfgerr.Schema(cfgerr.ErrInvalidValue, prefix+".environment", k, "not a valid variable name"))
		}
	}

	add(validateCustom(cfg.Custom, st))
	return result.ErrorOrNil()
}

func (c *UserConfig) validateImage(st Stage) error {
	var result *multierror.Error
	field := st.Key + ".image"
	img := st.Config.Image
	if img == nil || img.Output == "" {
		result = multierror.Append(result, cfgerr.Schema(cfgerr.ErrMissingField, field+".output", "", "output image name is required"))
	}
	if c.EffectiveBaseImage(st) == "" {
		msg := "base image is required"
		if st.Index == 2 {
			msg = "base image is required when stage_1 has no output image"
		}
		result = multierror.Append(result, cfgerr.Schema(cfgerr.ErrMissingField, field+".base", "", msg))
	}
	return result.ErrorOrNil()
}

// Validate checks an ssh section located at field. A nil section is valid.
func (s *SSHConfig) Validate(field string) error {
	if s == nil {
		return nil
	}
	var result *multierror.Error
	if s.Port != 0 && !validPort(s.Port) {
		result = multierror.Append(result, cfgerr.Schema(cfgerr.ErrInvalidPort, field+".port", strconv.Itoa(s.Port), "must be between 1 and 65535"))
	}
	if s.HostPort != 0 && !validPort(s.HostPort) {
		result = multierror.Append(result, cfgerr.Schema(cfgerr.ErrInvalidPort, field+".host_port", strconv.Itoa(s.HostPort), "must be between 1 and 65535"))
	}
	if s.Enabled() && len(s.Users) == 0 {
		result = multierror.Append(result, cfgerr.Schema(cfgerr.ErrMissingField, field+".users", "", "ssh is enabled but no users are defined"))
	}
	for _, name := range sortedKeys(s.Users) {
		userField := field + ".users." + name
		if !usernamePattern.MatchString(name) {
			result = multierror.Append(result, cfgerr.Schema(cfgerr.ErrInvalidValue, userField, name, "not a valid user name"))
		}
		if err := s.Users[name].Validate(userField); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Validate checks one ssh user located at field. A user needs a password or
// some key, and each key may come from a file or inline text, not both.
func (u SSHUserConfig) Validate(field string) error {
	var result *multierror.Error
	if u.Password == "" && u.PubkeyFile == "" && u.PubkeyText == "" && u.PrivkeyFile == "" && u.PrivkeyText == "" {
		result = multierror.Append(result, cfgerr.Schema(cfgerr.ErrMissingField, field, "",
			"one of password, pubkey_file, pubkey_text, privkey_file or privkey_text is required"))
	}
	if u.PubkeyFile != "" && u.PubkeyText != "" {
		result = multierror.Append(result, cfgerr.Schema(cfgerr.ErrMutuallyExclusive, field, "",
			"pubkey_file and pubkey_text cannot both be set"))
	}
	if u.PrivkeyFile != "" && u.PrivkeyText != "" {
		result = multierror.Append(result, cfgerr.Schema(cfgerr.ErrMutuallyExclusive, field, "",
			"privkey_file and privkey_text cannot both be set"))
	}
	if strings.ContainsAny(u.Password, " ,") {
		result = multierror.Append(result, cfgerr.Schema(cfgerr.ErrInvalidValue, field+".password", "",
			"password must not contain spaces or commas"))
	}
	if u.UID != nil && *u.UID <= 0 {
		result = multierror.Append(result, cfgerr.Schema(cfgerr.ErrInvalidValue, field+".uid", strconv.Itoa(*u.UID),
			"uid must be positive"))
	}
	return result.ErrorOrNil()
}

// Validate checks a proxy section located at field. A nil section is valid.
func (p *ProxyConfig) Validate(field string) error {
	if p == nil {
		return nil
	}
	if !validPort(p.Port) {
		return cfgerr.Schema(cfgerr.ErrInvalidPort, field+".port", strconv.Itoa(p.Port), "must be between 1 and 65535")
	}
	return nil
}

// Validate checks a storage (isMount false) or mount (isMount true) entry
// located at field.
func (o StorageOption) Validate(field string, isMount bool) error {
	var result *multierror.Error
	switch o.Type {
	case StorageAutoVolume, StorageImage:
	case StorageManualVolume:
		if o.VolumeName == "" {
			result = multierror.Append(result, cfgerr.Schema(cfgerr.ErrMissingField, field+".volume_name", "",
				"manual-volume requires volume_name"))
		}
	case StorageHost:
		if o.HostPath == "" {
			result = multierror.Append(result, cfgerr.Schema(cfgerr.ErrMissingField, field+".host_path", "",
				"host storage requires host_path"))
		}
	case "":
		result = multierror.Append(result, cfgerr.Schema(cfgerr.ErrMissingField, field+".type", "",
			"one of auto-volume, manual-volume, host or image is required"))
	default:
		result = multierror.Append(result, cfgerr.Schema(cfgerr.ErrInvalidValue, field+".type", o.Type,
			"must be one of auto-volume, manual-volume, host or image"))
	}

	if isMount {
		switch {
		case o.DstPath == "":
			result = multierror.Append(result, cfgerr.Schema(cfgerr.ErrMissingField, field+".dst_path", "",
				"mount entries require dst_path"))
		case !path.IsAbs(o.DstPath):
			result = multierror.Append(result, cfgerr.Schema(cfgerr.ErrInvalidValue, field+".dst_path", o.DstPath,
				"dst_path must be an absolute container path"))
		}
	} else if o.DstPath != "" {
		result = multierror.Append(result, cfgerr.Schema(cfgerr.ErrInvalidValue, field+".dst_path", o.DstPath,
			"storage entries mount at a fixed path, use mount for a custom destination"))
	}
	return result.ErrorOrNil()
}

func validateApt(cfg *StageConfig, prefix string) error {
	apt := cfg.Apt
	if apt == nil {
		return nil
	}
	var result *multierror.Error
	field := prefix + ".apt"
	if apt.RepoSource != "" && !apt.IsMirror() {
		if err := scripts.ValidatePath(apt.RepoSource); err != nil {
			result = multierror.Append(result, cfgerr.Schema(cfgerr.ErrInvalidValue, field+".repo_source", apt.RepoSource,
				"must be a mirror name ("+strings.Join(AptMirrors, ", ")+") or a path relative to installation/"))
		}
	}
	if apt.UseProxy && cfg.Proxy == nil {
		result = multierror.Append(result, cfgerr.Schema(cfgerr.ErrMissingField, prefix+".proxy", "",
			"apt.use_proxy requires a proxy section"))
	}
	return result.ErrorOrNil()
}

func validateCustom(custom *CustomScriptConfig, st Stage) error {
	if custom == nil {
		return nil
	}
	var result *multierror.Error
	base := st.Key + ".custom."
	for _, hook := range scripts.Hooks {
		entries := custom.Entries(hook)
		if hook == HookOnEntry && len(entries) > 1 {
			result = multierror.Append(result, cfgerr.Schema(cfgerr.ErrInvalidValue, base+hook, "",
				fmt.Sprintf("at most one on_entry script is allowed, got %d", len(entries))))
		}
		for i, raw := range entries {
			field := fmt.Sprintf("%s%s[%d]", base, hook, i)
			entry, err := scripts.ParseEntry(raw)
			if err != nil {
				result = multierror.Append(result, cfgerr.Formatf(cfgerr.ErrInvalidValue, field, raw, "%v", err))
				continue
			}
			if err := scripts.ValidatePath(entry.Path); err != nil {
				result = multierror.Append(result, cfgerr.Schema(cfgerr.ErrInvalidValue, field, raw, err.Error()))
			}
			if st.Index == 2 && hook == HookOnBuild && runtimePathPattern.MatchString(raw) {
				result = multierror.Append(result, cfgerr.Policy(cfgerr.ErrRuntimePathAtBuild, base+hook, raw,
					"on_build runs while the image is built, before /soft and /hard are mounted"))
			}
		}
	}
	return result.ErrorOrNil()
}

func isFixedStorageKey(key string) bool {
	for _, k := range FixedStorageKeys {
		if k == key {
			return true
		}
	}
	return false
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
