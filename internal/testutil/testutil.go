// Package testutil provides common test utilities and helpers to reduce boilerplate in test files.
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/trly/pei-docker/internal/config"
	"github.com/trly/pei-docker/internal/log"
)

// NewTestLogger creates a logger that writes to t.Logf for testing.
// This ensures test output is properly captured by the test framework.
func NewTestLogger(t testing.TB) log.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}

	handler := &testHandler{t: t, opts: opts}
	return log.NewSlogAdapter(slog.New(handler))
}

// ConfigOption allows customization of test config settings.
type ConfigOption func(*config.Settings)

// WithProjectDir sets a custom project directory.
func WithProjectDir(dir string) ConfigOption {
	return func(cfg *config.Settings) {
		cfg.ProjectDir = dir
	}
}

// WithVerbose sets verbose logging.
func WithVerbose(verbose bool) ConfigOption {
	return func(cfg *config.Settings) {
		cfg.Verbose = verbose
	}
}

// WithOutputFile sets the compose output file.
func WithOutputFile(name string) ConfigOption {
	return func(cfg *config.Settings) {
		cfg.OutputFile = name
	}
}

// WithKeepHelperKeys keeps x-cfg sections in the output.
func WithKeepHelperKeys(keep bool) ConfigOption {
	return func(cfg *config.Settings) {
		cfg.KeepHelperKeys = keep
	}
}

// NewMockConfig creates a config provider for testing with optional customizations.
// The project directory defaults to a fresh temp directory.
func NewMockConfig(t testing.TB, opts ...ConfigOption) config.Provider {
	cfg := config.DefaultSettings()
	cfg.ProjectDir = t.TempDir()
	cfg.Verbose = true

	for _, opt := range opts {
		opt(cfg)
	}

	provider := config.NewConfigProvider()
	provider.SetConfig(cfg)
	return provider
}

// Project is a pei-docker project directory fixture.
type Project struct {
	t   testing.TB
	Fs  afero.Fs
	Dir string
}

// NewMemProject returns a project rooted at /proj on an in-memory filesystem.
func NewMemProject(t testing.TB) *Project {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/proj/installation", 0o750))
	return &Project{t: t, Fs: fsys, Dir: "/proj"}
}

// NewDiskProject returns a project in a temp directory on the OS filesystem.
func NewDiskProject(t testing.TB) *Project {
	dir := t.TempDir()
	fsys := afero.NewOsFs()
	require.NoError(t, fsys.MkdirAll(filepath.Join(dir, "installation"), 0o750))
	return &Project{t: t, Fs: fsys, Dir: dir}
}

// Path joins rel onto the project directory.
func (p *Project) Path(rel string) string {
	return filepath.Join(p.Dir, filepath.FromSlash(rel))
}

// WriteFile writes content at rel inside the project.
func (p *Project) WriteFile(rel, content string) string {
	p.t.Helper()
	path := p.Path(rel)
	require.NoError(p.t, p.Fs.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(p.t, afero.WriteFile(p.Fs, path, []byte(content), 0o644))
	return path
}

// WriteInstallFile writes content at rel inside installation/.
func (p *Project) WriteInstallFile(rel, content string) string {
	p.t.Helper()
	return p.WriteFile(filepath.Join("installation", rel), content)
}

// WriteConfig writes user_config.yml, dedenting tab-indented literals.
func (p *Project) WriteConfig(yaml string) string {
	p.t.Helper()
	return p.WriteFile(config.DefaultConfigFile, Dedent(yaml))
}

// Read returns the content of rel, failing the test if it is missing.
func (p *Project) Read(rel string) string {
	p.t.Helper()
	data, err := afero.ReadFile(p.Fs, p.Path(rel))
	require.NoError(p.t, err)
	return string(data)
}

// Exists reports whether rel exists.
func (p *Project) Exists(rel string) bool {
	ok, err := afero.Exists(p.Fs, p.Path(rel))
	require.NoError(p.t, err)
	return ok
}

// Files lists every regular file under the project, relative and slash separated.
func (p *Project) Files() []string {
	p.t.Helper()
	var out []string
	err := afero.Walk(p.Fs, p.Dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(p.Dir, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	require.NoError(p.t, err)
	return out
}

// Dedent strips the common leading tabs from a raw string literal so YAML
// fixtures can be indented with the surrounding code.
func Dedent(s string) string {
	lines := strings.Split(strings.TrimPrefix(s, "\n"), "\n")
	prefix := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		n := len(line) - len(strings.TrimLeft(line, "\t"))
		if prefix < 0 || n < prefix {
			prefix = n
		}
	}
	if prefix <= 0 {
		return strings.Join(lines, "\n")
	}
	for i, line := range lines {
		if len(line) >= prefix {
			lines[i] = line[prefix:]
		} else {
			lines[i] = strings.TrimLeft(line, "\t")
		}
	}
	return strings.Join(lines, "\n")
}

// testHandler implements slog.Handler to write to testing.TB.
type testHandler struct {
	t     testing.TB
	opts  *slog.HandlerOptions
	attrs []slog.Attr
}

func (h *testHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *testHandler) Handle(_ context.Context, record slog.Record) error {
	var b strings.Builder
	for _, a := range h.attrs {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
	}
	record.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		return true
	})
	h.t.Logf("[%s] %s%s", record.Level.String(), record.Message, b.String())
	return nil
}

func (h *testHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &testHandler{t: h.t, opts: h.opts, attrs: append(append([]slog.Attr{}, h.attrs...), attrs...)}
}

func (h *testHandler) WithGroup(_ string) slog.Handler {
	return &testHandler{t: h.t, opts: h.opts, attrs: h.attrs}
}
