package processor

import (
	"fmt"
	"sort"

	"dario.cat/mergo"
	"github.com/compose-spec/compose-go/v2/tree"

	"github.com/trly/pei-docker/internal/cfgerr"
	"github.com/trly/pei-docker/internal/composetree"
	"github.com/trly/pei-docker/internal/ports"
	"github.com/trly/pei-docker/internal/storage"
	"github.com/trly/pei-docker/internal/userconfig"
	"github.com/trly/pei-docker/internal/validate"
)

// accumulator carries ports and environment from earlier stages into later
// ones. A later stage wins on collisions.
type accumulator struct {
	Ports ports.Mapping
	Env   map[string]string
}

// add returns a new accumulator holding acc plus the contributions of st.
// acc itself is left untouched.
func (acc accumulator) add(st userconfig.Stage) (accumulator, error) {
	next := accumulator{
		Ports: ports.Clone(acc.Ports),
		Env:   make(map[string]string, len(acc.Env)+len(st.Config.Environment)),
	}
	for k, v := range acc.Env {
		next.Env[k] = v
	}

	for i, entry := range st.Config.Ports {
		m, err := ports.Decode([]string{entry})
		if err != nil {
			return accumulator{}, cfgerr.WithField(err, fmt.Sprintf("%s.ports[%d]", st.Key, i))
		}
		next.Ports = ports.Merge(next.Ports, m)
	}

	if ssh := st.Config.SSH; ssh.Enabled() && ssh.HostPort != 0 {
		next.Ports[ssh.HostPort] = ssh.ContainerPort()
	}

	if len(st.Config.Environment) > 0 {
		if err := mergo.Merge(&next.Env, st.Config.Environment, mergo.WithOverride); err != nil {
			return accumulator{}, fmt.Errorf("merging %s.environment: %w", st.Key, err)
		}
	}
	return next, nil
}

// pass2 writes the values that depend on the resolved template: accumulated
// ports and environment, volumes and device reservations. It returns the
// storage warnings.
func (p *Processor) pass2(doc map[string]any, cfg *userconfig.UserConfig) ([]string, error) {
	var warnings []string
	acc := accumulator{Ports: ports.Mapping{}, Env: map[string]string{}}
	volumes := storage.NewRegistry()

	for _, st := range cfg.Stages() {
		var err error
		acc, err = acc.add(st)
		if err != nil {
			return nil, err
		}

		svc := composetree.P("services", serviceName(st.Index))

		if len(acc.Ports) > 0 {
			if err := composetree.Set(doc, svc.Next("ports"), composetree.StringList(ports.Encode(acc.Ports))); err != nil {
				return nil, fmt.Errorf("writing %s ports: %w", st.Key, err)
			}
		}
		if len(acc.Env) > 0 {
			if err := composetree.Set(doc, svc.Next("environment"), envTree(acc.Env)); err != nil {
				return nil, fmt.Errorf("writing %s environment: %w", st.Key, err)
			}
		}

		res, err := storage.Resolve(st)
		if err != nil {
			return nil, err
		}
		if vols := res.ServiceVolumes(); len(vols) > 0 {
			if err := composetree.Set(doc, svc.Next("volumes"), composetree.StringList(vols)); err != nil {
				return nil, fmt.Errorf("writing %s volumes: %w", st.Key, err)
			}
		}
		if err := volumes.Register(res); err != nil {
			return nil, err
		}
		registered := res.Volumes()
		names := make([]string, 0, len(registered))
		for name := range registered {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := composetree.Set(doc, composetree.P("volumes", name), registered[name]); err != nil {
				return nil, fmt.Errorf("registering volume %s: %w", name, err)
			}
		}
		for _, w := range res.Warnings {
			p.logger.Warn("Duplicate mount destination", "stage", st.Key, "detail", w)
			warnings = append(warnings, fmt.Sprintf("%s: %s", st.Key, w))
		}

		if err := writeDevice(doc, svc.Next("deploy"), st.Config.Device.Kind()); err != nil {
			return nil, fmt.Errorf("writing %s device: %w", st.Key, err)
		}

		p.logger.Debug("Wrote stage service", "stage", st.Key, "ports", len(acc.Ports), "env", len(acc.Env), "volumes", len(res.Entries), "environment", validate.SanitizeEnv(acc.Env))
	}
	return warnings, nil
}

// gpuReservation requests every NVIDIA GPU for a service.
func gpuReservation() map[string]any {
	return map[string]any{
		"resources": map[string]any{
			"reservations": map[string]any{
				"devices": []any{
					map[string]any{
						"driver":       "nvidia",
						"count":        "all",
						"capabilities": []any{"gpu"},
					},
				},
			},
		},
	}
}

// writeDevice reserves GPUs for a gpu stage and drops any deploy block
// inherited from the template for a cpu stage.
func writeDevice(doc map[string]any, deploy tree.Path, kind string) error {
	if kind == userconfig.DeviceGPU {
		return composetree.Set(doc, deploy, gpuReservation())
	}
	composetree.Delete(doc, deploy)
	return nil
}

func envTree(env map[string]string) map[string]any {
	out := make(map[string]any, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}
