// Package compose loads the compose template the configuration is projected
// onto, and validates, inspects and renders the generated compose document.
package compose

import (
	"bytes"
	"embed"
	"errors"
	"io"
	"io/fs"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// DefaultTemplateName is the embedded template used when none is given.
const DefaultTemplateName = "base-image-gen.yml"

//go:embed templates/*.yml
var templates embed.FS

// DefaultTemplate returns the raw bytes of the embedded template.
func DefaultTemplate() []byte {
	data, err := templates.ReadFile("templates/" + DefaultTemplateName)
	if err != nil {
		panic("embedded compose template missing: " + err.Error())
	}
	return data
}

// LoadTemplate reads a compose template from path, or the embedded default
// when path is empty.
func LoadTemplate(fsys afero.Fs, path string) (map[string]any, error) {
	if path == "" {
		return ParseTemplate(DefaultTemplate())
	}

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &fileNotFoundError{path: path, cause: err}
		}
		return nil, err
	}
	return ParseTemplate(data)
}

// ParseTemplate parses YAML into a generic compose tree.
func ParseTemplate(data []byte) (map[string]any, error) {
	var doc map[string]any
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, &invalidYAMLError{cause: err}
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}
