package processor

import (
	"os"

	"github.com/trly/pei-docker/internal/envsubst"
	"github.com/trly/pei-docker/internal/scripts"
	"github.com/trly/pei-docker/internal/userconfig"
)

// writeArtifacts writes staged ssh keys, hook wrappers and the environment
// file of every present stage.
func (p *Processor) writeArtifacts(cfg *userconfig.UserConfig, pl *plan) ([]Artifact, error) {
	var out []Artifact
	write := func(path string, content []byte, mode os.FileMode) error {
		changed, err := p.fs.WriteFile(path, content, mode)
		if err != nil {
			return err
		}
		out = append(out, Artifact{Path: path, Mode: mode, Changed: changed})
		return nil
	}

	for _, f := range pl.staged {
		if err := write(f.HostPath, f.Content, f.Mode); err != nil {
			return out, err
		}
	}

	for _, st := range cfg.Stages() {
		files, err := scripts.Generate(st.Config.Custom.HookMap())
		if err != nil {
			return out, err
		}
		for _, f := range files {
			host := userconfig.HostPath(p.opts.ProjectDir, st.GeneratedRel(f.Name))
			if err := write(host, []byte(f.Content), os.FileMode(f.Mode)); err != nil {
				return out, err
			}
		}

		env := scripts.RenderEnvironment(environmentFile(st.Config.Environment))
		host := userconfig.HostPath(p.opts.ProjectDir, st.GeneratedRel(scripts.EnvironmentFileName))
		if err := write(host, []byte(env), 0o644); err != nil {
			return out, err
		}
	}
	return out, nil
}

// environmentFile returns env with passthrough markers written as ${...},
// matching what the compose document carries.
func environmentFile(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = envsubst.RewritePassthrough(v)
	}
	return out
}
