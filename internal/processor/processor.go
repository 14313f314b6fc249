// Package processor compiles a user configuration onto a compose template.
//
// Processing runs in a fixed order: the raw config is substituted, normalized,
// decoded and validated; every referenced file is checked; pass 1 writes the
// x-cfg-stage-N placeholder sections; the template's own references are
// resolved; pass 2 writes ports, environment, volumes and devices into the
// stage services; finally helper sections are stripped and the generated
// shell artifacts are written.
package processor

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"

	"github.com/trly/pei-docker/internal/compose"
	"github.com/trly/pei-docker/internal/composetree"
	"github.com/trly/pei-docker/internal/envsubst"
	"github.com/trly/pei-docker/internal/fs"
	"github.com/trly/pei-docker/internal/log"
	"github.com/trly/pei-docker/internal/userconfig"
	"github.com/trly/pei-docker/internal/validate"
)

// HelperKeyPrefix marks top-level template sections that only carry values
// between passes. They are removed from the output unless KeepHelperKeys is set.
const HelperKeyPrefix = "x-cfg-"

// Options configures a Processor.
type Options struct {
	// ProjectDir is the project root holding installation/.
	ProjectDir string
	// Env is the environment used for ${NAME} substitution in the user
	// config. Nil means an empty environment.
	Env envsubst.Environment
	// Fs is the filesystem scripts and keys are read from and artifacts
	// are written to. Defaults to the OS filesystem.
	Fs afero.Fs
	// Logger defaults to the process-wide logger.
	Logger log.Logger
	// KeepHelperKeys keeps the x-cfg- sections in the output.
	KeepHelperKeys bool
	// SkipArtifacts computes the compose document without writing any file.
	SkipArtifacts bool
	// HomeDir overrides the home directory searched for "~" ssh keys.
	HomeDir string
	// ValidateOutput checks the final document with compose-go.
	ValidateOutput bool
}

// Artifact is one generated file.
type Artifact struct {
	// Path is the host path of the file.
	Path string
	Mode os.FileMode
	// Changed is false when the file already held the same content.
	Changed bool
}

// Result is the outcome of a successful Process call.
type Result struct {
	Compose   map[string]any
	Warnings  []string
	Artifacts []Artifact
}

// Processor compiles user configs for one project.
type Processor struct {
	opts    Options
	fs      *fs.Service
	secrets *validate.SecretValidator
	logger  log.Logger
}

// New creates a Processor, filling in defaults for unset options.
func New(opts Options) *Processor {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	if opts.Env == nil {
		opts.Env = envsubst.Environment{}
	}
	if opts.ProjectDir == "" {
		opts.ProjectDir = "."
	}
	return &Processor{
		opts:    opts,
		fs:      fs.NewServiceWithFs(opts.Fs, opts.Logger),
		secrets: validate.NewSecretValidator(opts.Logger),
		logger:  opts.Logger,
	}
}

// Process is shorthand for New(opts).Process(ctx, raw, template).
func Process(ctx context.Context, raw, template map[string]any, opts Options) (*Result, error) {
	return New(opts).Process(ctx, raw, template)
}

// Process compiles raw, the parsed user_config.yml, onto template. Neither
// argument is modified. Nothing is written unless the whole document is
// produced without error.
func (p *Processor) Process(ctx context.Context, raw, template map[string]any) (*Result, error) {
	cfg, err := userconfig.FromRaw(raw, p.opts.Env)
	if err != nil {
		return nil, err
	}

	pl, err := p.preflight(cfg)
	if err != nil {
		return nil, err
	}

	doc := composetree.DeepCopy(template)
	if doc == nil {
		doc = map[string]any{}
	}

	if err := p.pass1(doc, cfg, pl); err != nil {
		return nil, err
	}

	doc, err = composetree.Resolve(doc)
	if err != nil {
		return nil, err
	}

	warnings, err := p.pass2(doc, cfg)
	if err != nil {
		return nil, err
	}

	if err := p.finalize(doc, cfg); err != nil {
		return nil, err
	}

	if p.opts.ValidateOutput {
		if err := compose.Validate(ctx, doc); err != nil {
			return nil, fmt.Errorf("generated compose document is invalid: %w", err)
		}
	}

	res := &Result{Compose: doc, Warnings: warnings}
	if p.opts.SkipArtifacts {
		p.logger.Debug("Skipping artifact generation")
		return res, nil
	}

	res.Artifacts, err = p.writeArtifacts(cfg, pl)
	if err != nil {
		return res, err
	}

	p.logger.Info("Processed user config", "stages", len(cfg.Stages()), "artifacts", len(res.Artifacts), "warnings", len(warnings))
	return res, nil
}

// finalize strips helper sections, drops the service of an absent stage,
// rejects leftover ${...} sequences and turns passthrough markers into
// compose variables.
func (p *Processor) finalize(doc map[string]any, cfg *userconfig.UserConfig) error {
	if !p.opts.KeepHelperKeys {
		for key := range doc {
			if strings.HasPrefix(key, HelperKeyPrefix) {
				delete(doc, key)
			}
		}
	}

	present := make(map[int]bool, 2)
	for _, st := range cfg.Stages() {
		present[st.Index] = true
	}
	for _, idx := range []int{1, 2} {
		if !present[idx] && composetree.Delete(doc, composetree.P("services", serviceName(idx))) {
			p.logger.Debug("Removed service of absent stage", "service", serviceName(idx))
		}
	}

	if err := envsubst.CheckLeftovers(doc); err != nil {
		return err
	}
	envsubst.RewritePassthroughTree(doc)
	return nil
}

// serviceName is the compose service built by stage idx.
func serviceName(idx int) string {
	return fmt.Sprintf("stage-%d", idx)
}

// helperSection is the placeholder section of stage idx.
func helperSection(idx int) string {
	return fmt.Sprintf("%sstage-%d", HelperKeyPrefix, idx)
}
