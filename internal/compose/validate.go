package compose

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/schema"
	"github.com/compose-spec/compose-go/v2/types"
	"github.com/compose-spec/compose-go/v2/validation"

	"github.com/trly/pei-docker/internal/composetree"
)

// DefaultProjectName is used when the working directory gives no usable name.
const DefaultProjectName = "pei-docker"

// Validate checks a generated compose document against the compose
// specification schema and compose-go's structural checks.
func Validate(ctx context.Context, doc map[string]any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if doc == nil {
		return &validationError{message: "document is not defined"}
	}
	if err := schema.Validate(doc); err != nil {
		return &validationError{message: "schema", cause: err}
	}
	if err := validation.Validate(doc); err != nil {
		return &validationError{message: err.Error(), cause: err}
	}
	return nil
}

// Inspect loads a generated document with compose-go, the same way docker
// compose would, resolving passthrough variables from env.
func Inspect(ctx context.Context, doc map[string]any, workdir string, env map[string]string) (*types.Project, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	absDir, err := filepath.Abs(workdir)
	if err != nil {
		return nil, &loaderError{cause: err}
	}
	projectName := loader.NormalizeProjectName(filepath.Base(absDir))
	if projectName == "" {
		projectName = DefaultProjectName
	}

	details := types.ConfigDetails{
		WorkingDir: absDir,
		ConfigFiles: []types.ConfigFile{{
			Filename: filepath.Join(absDir, "docker-compose.yml"),
			Config:   composetree.DeepCopy(doc),
		}},
		Environment: types.Mapping(env),
	}

	project, err := loader.LoadWithContext(ctx, details, func(o *loader.Options) {
		o.SetProjectName(projectName, true)
		o.SkipConsistencyCheck = true
	})
	if err != nil {
		return nil, &loaderError{cause: err}
	}
	return project, nil
}

// ServiceSummary is a one-line view of a service for display.
type ServiceSummary struct {
	Name    string
	Image   string
	Ports   []string
	Volumes []string
	GPU     bool
}

// Summarize lists the services of a project sorted by name.
func Summarize(project *types.Project) []ServiceSummary {
	names := make([]string, 0, len(project.Services))
	for name := range project.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ServiceSummary, 0, len(names))
	for _, name := range names {
		svc := project.Services[name]
		s := ServiceSummary{Name: name, Image: svc.Image}
		for _, p := range svc.Ports {
			s.Ports = append(s.Ports, fmt.Sprintf("%s:%d", p.Published, p.Target))
		}
		for _, v := range svc.Volumes {
			s.Volumes = append(s.Volumes, strings.TrimPrefix(v.Source+":"+v.Target, ":"))
		}
		if svc.Deploy != nil && svc.Deploy.Resources.Reservations != nil {
			for _, d := range svc.Deploy.Resources.Reservations.Devices {
				for _, c := range d.Capabilities {
					if c == "gpu" {
						s.GPU = true
					}
				}
			}
		}
		out = append(out, s)
	}
	return out
}
