// Package sshkey resolves the public and private key material configured
// for ssh users into paths the image build can copy, staging inline or
// out-of-project keys under the project's generated directory.
package sshkey

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/trly/pei-docker/internal/cfgerr"
	"github.com/trly/pei-docker/internal/userconfig"
)

// Part selects which half of a key pair is being resolved.
type Part int

// Key pair halves.
const (
	Public Part = iota
	Private
)

func (p Part) String() string {
	if p == Public {
		return "pubkey"
	}
	return "privkey"
}

// SystemKeyNames are the ~/.ssh key files searched, in priority order.
var SystemKeyNames = []string{"id_rsa", "id_dsa", "id_ecdsa", "id_ed25519"}

// SystemKeyMarker requests system key discovery instead of a specific file.
const SystemKeyMarker = "~"

// StagedFile is key material that must be written into the project before
// the build can copy it. HostPath is absolute, ContainerPath is where the
// build finds it.
type StagedFile struct {
	HostPath      string
	ContainerPath string
	Content       []byte
	Mode          os.FileMode
}

// Resolved holds the container paths for one user's keys. An empty path
// means no key of that kind is configured.
type Resolved struct {
	PubkeyPath  string
	PrivkeyPath string
	Staged      []StagedFile
}

// Resolver resolves key references for a project. It only reads; staged
// files are returned for the caller to write.
type Resolver struct {
	fs         afero.Fs
	projectDir string
	homeDir    string
}

// NewResolver creates a Resolver for projectDir. homeDir overrides the
// user's home directory used for "~" discovery; empty means the real one.
func NewResolver(fsys afero.Fs, projectDir, homeDir string) *Resolver {
	return &Resolver{fs: fsys, projectDir: projectDir, homeDir: homeDir}
}

// ResolveUser resolves both keys of user name, configured at field.
func (r *Resolver) ResolveUser(field, name string, u userconfig.SSHUserConfig) (Resolved, error) {
	var res Resolved
	pub, err := r.resolve(field, name, Public, u.PubkeyFile, u.PubkeyText)
	if err != nil {
		return Resolved{}, err
	}
	priv, err := r.resolve(field, name, Private, u.PrivkeyFile, u.PrivkeyText)
	if err != nil {
		return Resolved{}, err
	}
	for _, k := range []*resolvedKey{pub, priv} {
		if k != nil && k.staged != nil {
			res.Staged = append(res.Staged, *k.staged)
		}
	}
	if pub != nil {
		res.PubkeyPath = pub.containerPath
	}
	if priv != nil {
		res.PrivkeyPath = priv.containerPath
	}
	return res, nil
}

type resolvedKey struct {
	containerPath string
	staged        *StagedFile
}

func (r *Resolver) resolve(field, user string, part Part, file, text string) (*resolvedKey, error) {
	switch {
	case file != "":
		return r.resolveFile(field+"."+part.String()+"_file", user, part, file)
	case text != "":
		textField := field + "." + part.String() + "_text"
		if err := validate(part, text); err != nil {
			return nil, cfgerr.Formatf(cfgerr.ErrInvalidKeyFormat, textField, "", "%v", err)
		}
		return r.stage(user, part, []byte(text)), nil
	default:
		return nil, nil
	}
}

func (r *Resolver) resolveFile(field, user string, part Part, ref string) (*resolvedKey, error) {
	if ref == SystemKeyMarker || strings.HasPrefix(ref, "~/") || filepath.IsAbs(ref) {
		hostPath, err := r.hostKeyPath(part, ref)
		if err != nil {
			return nil, cfgerr.NotFound(cfgerr.ErrKeyFileNotFound, field, ref, err)
		}
		content, err := afero.ReadFile(r.fs, hostPath)
		if err != nil {
			return nil, cfgerr.NotFound(cfgerr.ErrKeyFileNotFound, field, hostPath, err)
		}
		if err := validate(part, string(content)); err != nil {
			return nil, cfgerr.Formatf(cfgerr.ErrInvalidKeyFormat, field, hostPath, "%v", err)
		}
		return r.stage(user, part, content), nil
	}

	hostPath := userconfig.HostPath(r.projectDir, ref)
	if _, err := r.fs.Stat(hostPath); err != nil {
		return nil, cfgerr.NotFound(cfgerr.ErrKeyFileNotFound, field, hostPath, err)
	}
	return &resolvedKey{containerPath: userconfig.ContainerPath(ref)}, nil
}

// hostKeyPath turns "~", "~/..." or an absolute path into a readable host
// path.
func (r *Resolver) hostKeyPath(part Part, ref string) (string, error) {
	if ref != SystemKeyMarker && !strings.HasPrefix(ref, "~/") {
		return ref, nil
	}
	home, err := r.home()
	if err != nil {
		return "", err
	}
	if ref != SystemKeyMarker {
		return filepath.Join(home, filepath.FromSlash(strings.TrimPrefix(ref, "~/"))), nil
	}
	return r.discover(home, part)
}

func (r *Resolver) home() (string, error) {
	if r.homeDir != "" {
		return r.homeDir, nil
	}
	return homedir.Dir()
}

// discover finds the first existing system key in ~/.ssh. Public lookups
// use the .pub file, private lookups the bare one.
func (r *Resolver) discover(home string, part Part) (string, error) {
	dir := filepath.Join(home, ".ssh")
	for _, name := range SystemKeyNames {
		candidate := filepath.Join(dir, name)
		if part == Public {
			candidate += ".pub"
		}
		if _, err := r.fs.Stat(candidate); err == nil {
			return candidate, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("no %s found in %s (looked for %s)", part, dir, strings.Join(SystemKeyNames, ", "))
}

// StagedName is the generated file name holding a user's key.
func StagedName(user string, part Part) string {
	if part == Public {
		return "temp-" + user + "-pubkey.pub"
	}
	return "temp-" + user + "-privkey"
}

func (r *Resolver) stage(user string, part Part, content []byte) *resolvedKey {
	rel := path.Join("stage-1", userconfig.GeneratedDir, StagedName(user, part))
	mode := os.FileMode(0o644)
	if part == Private {
		mode = 0o600
	}
	body := []byte(strings.TrimRight(string(content), "\r\n") + "\n")
	return &resolvedKey{
		containerPath: userconfig.ContainerPath(rel),
		staged: &StagedFile{
			HostPath:      userconfig.HostPath(r.projectDir, rel),
			ContainerPath: userconfig.ContainerPath(rel),
			Content:       body,
			Mode:          mode,
		},
	}
}

func validate(part Part, text string) error {
	if part == Public {
		return ValidatePublicKey(text)
	}
	return ValidatePrivateKey(text)
}
