package processor

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/trly/pei-docker/internal/cfgerr"
	"github.com/trly/pei-docker/internal/scripts"
	"github.com/trly/pei-docker/internal/sshkey"
	"github.com/trly/pei-docker/internal/userconfig"
)

// sshUser is one ssh user with its keys resolved to container paths.
type sshUser struct {
	Name   string
	Config userconfig.SSHUserConfig
	Keys   sshkey.Resolved
}

// plan is everything preflight learned from the filesystem.
type plan struct {
	users  []sshUser
	staged []sshkey.StagedFile
}

// preflight checks every file the config references and resolves ssh keys,
// without writing anything. All problems are reported together.
func (p *Processor) preflight(cfg *userconfig.UserConfig) (*plan, error) {
	var result *multierror.Error
	pl := &plan{}

	for _, st := range cfg.Stages() {
		if err := p.checkScripts(st); err != nil {
			result = multierror.Append(result, err)
		}
		if err := p.checkAptSource(st); err != nil {
			result = multierror.Append(result, err)
		}
		if err := p.checkEnvironment(st); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if cfg.Stage1 != nil && cfg.Stage1.SSH.Enabled() {
		users, err := p.resolveUsers(cfg.Stage1.SSH)
		if err != nil {
			result = multierror.Append(result, err)
		}
		pl.users = users
		for _, u := range users {
			pl.staged = append(pl.staged, u.Keys.Staged...)
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return pl, nil
}

func (p *Processor) checkScripts(st userconfig.Stage) error {
	var result *multierror.Error
	for _, hook := range scripts.Hooks {
		for i, raw := range st.Config.Custom.Entries(hook) {
			field := fmt.Sprintf("%s.custom.%s[%d]", st.Key, hook, i)
			entry, err := scripts.ParseEntry(raw)
			if err != nil {
				result = multierror.Append(result, cfgerr.Formatf(cfgerr.ErrInvalidValue, field, raw, "%v", err))
				continue
			}
			host := userconfig.HostPath(p.opts.ProjectDir, entry.Path)
			if err := p.mustExist(cfgerr.ErrScriptNotFound, field, host); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	return result.ErrorOrNil()
}

func (p *Processor) checkAptSource(st userconfig.Stage) error {
	apt := st.Config.Apt
	if apt == nil || apt.RepoSource == "" || apt.IsMirror() {
		return nil
	}
	host := userconfig.HostPath(p.opts.ProjectDir, apt.RepoSource)
	return p.mustExist(cfgerr.ErrRepoSourceNotFound, st.Key+".apt.repo_source", host)
}

// checkEnvironment rejects values that cannot be written to the stage's
// environment file and logs advisories about weak secrets.
func (p *Processor) checkEnvironment(st userconfig.Stage) error {
	env := st.Config.Environment
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var result *multierror.Error
	for _, k := range keys {
		if err := p.secrets.ValidateEnvValue(st.Key, k, env[k]); err != nil {
			result = multierror.Append(result, cfgerr.Schema(cfgerr.ErrInvalidValue, st.Key+".environment."+k, "", err.Error()))
		}
	}
	return result.ErrorOrNil()
}

func (p *Processor) mustExist(reason error, field, host string) error {
	info, err := p.opts.Fs.Stat(host)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return cfgerr.NotFound(reason, field, host, nil)
		}
		return fmt.Errorf("checking %s: %w", host, err)
	}
	if info.IsDir() {
		return cfgerr.NotFound(reason, field, host, fmt.Errorf("%s is a directory", host))
	}
	return nil
}

// resolveUsers resolves every user's keys in username order.
func (p *Processor) resolveUsers(ssh *userconfig.SSHConfig) ([]sshUser, error) {
	names := make([]string, 0, len(ssh.Users))
	for name := range ssh.Users {
		names = append(names, name)
	}
	sort.Strings(names)

	resolver := sshkey.NewResolver(p.opts.Fs, p.opts.ProjectDir, p.opts.HomeDir)
	var result *multierror.Error
	users := make([]sshUser, 0, len(names))
	for _, name := range names {
		u := ssh.Users[name]
		p.secrets.ValidatePassword(userconfig.Stage1Key, name, u.Password)
		keys, err := resolver.ResolveUser(userconfig.Stage1Key+".ssh.users."+name, name, u)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		users = append(users, sshUser{Name: name, Config: u, Keys: keys})
	}
	return users, result.ErrorOrNil()
}
