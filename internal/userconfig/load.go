package userconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/trly/pei-docker/internal/cfgerr"
	"github.com/trly/pei-docker/internal/envsubst"
)

// ReadFile reads and parses a user config file into a raw tree.
func ReadFile(fsys afero.Fs, path string) (map[string]any, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("reading user config %s: %w", path, err)
	}
	return ParseYAML(data)
}

// ParseYAML parses YAML into a raw tree of map[string]any, []any and scalars.
// Duplicate mapping keys at any depth are reported as DuplicateKey format
// errors carrying the key path and source line.
func ParseYAML(data []byte) (map[string]any, error) {
	var doc yaml.Node
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, cfgerr.Formatf(cfgerr.ErrInvalidValue, "", "", "invalid YAML: %v", err)
	}

	if err := checkDuplicateKeys(&doc, ""); err != nil {
		return nil, err
	}

	var raw any
	if err := doc.Decode(&raw); err != nil {
		return nil, cfgerr.Formatf(cfgerr.ErrInvalidValue, "", "", "invalid YAML: %v", err)
	}
	if raw == nil {
		return map[string]any{}, nil
	}
	tree, ok := normalizeKeys(raw).(map[string]any)
	if !ok {
		return nil, cfgerr.Schema(cfgerr.ErrInvalidValue, "", "", "user config must be a mapping with stage_1 and/or stage_2")
	}
	return tree, nil
}

func checkDuplicateKeys(node *yaml.Node, path string) error {
	var result *multierror.Error
	switch node.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for i, child := range node.Content {
			childPath := path
			if node.Kind == yaml.SequenceNode {
				childPath = fmt.Sprintf("%s[%d]", path, i)
			}
			if err := checkDuplicateKeys(child, childPath); err != nil {
				result = multierror.Append(result, err)
			}
		}
	case yaml.MappingNode:
		seen := make(map[string]*yaml.Node, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i], node.Content[i+1]
			childPath := joinField(path, key.Value)
			if first, dup := seen[key.Value]; dup {
				result = multierror.Append(result, cfgerr.Formatf(cfgerr.ErrDuplicateKey, childPath, key.Value,
					"line %d column %d, first defined at line %d", key.Line, key.Column, first.Line))
				continue
			}
			seen[key.Value] = key
			if err := checkDuplicateKeys(value, childPath); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	return result.ErrorOrNil()
}

// normalizeKeys converts any map[any]any produced by the YAML decoder into
// map[string]any so the rest of the pipeline sees one map type.
func normalizeKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = normalizeKeys(child)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[fmt.Sprint(k)] = normalizeKeys(child)
		}
		return out
	case []any:
		for i, child := range t {
			t[i] = normalizeKeys(child)
		}
		return t
	default:
		return v
	}
}

// Normalize returns a copy of raw with environment lists converted to maps
// and a bare on_entry string wrapped into a list. Environment values are
// rendered as strings.
func Normalize(raw map[string]any) map[string]any {
	if raw == nil {
		return map[string]any{}
	}
	out := deepCopy(raw).(map[string]any)
	for _, key := range []string{Stage1Key, Stage2Key} {
		stage, ok := out[key].(map[string]any)
		if !ok {
			continue
		}
		if env, present := stage["environment"]; present {
			stage["environment"] = normalizeEnvironment(env)
		}
		if custom, ok := stage["custom"].(map[string]any); ok {
			if entry, ok := custom[HookOnEntry].(string); ok {
				custom[HookOnEntry] = []any{entry}
			}
		}
	}
	return out
}

func normalizeEnvironment(env any) any {
	switch v := env.(type) {
	case nil:
		return map[string]any{}
	case []any:
		m := make(map[string]any, len(v))
		for _, item := range v {
			k, val, _ := strings.Cut(fmt.Sprint(item), "=")
			m[strings.TrimSpace(k)] = val
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(v))
		for k, val := range v {
			if val == nil {
				m[k] = ""
				continue
			}
			m[k] = fmt.Sprint(val)
		}
		return m
	default:
		return env
	}
}

// Decode decodes a normalized raw tree into a UserConfig. Unknown keys are
// reported as schema errors; values are weakly typed because substitution
// turns every resolved scalar into a string.
func Decode(normalized map[string]any) (*UserConfig, error) {
	var cfg UserConfig
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		Metadata:         &md,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, fmt.Errorf("creating config decoder: %w", err)
	}

	var result *multierror.Error
	if err := dec.Decode(normalized); err != nil {
		result = multierror.Append(result, cfgerr.Schema(cfgerr.ErrInvalidValue, "", "", err.Error()))
	}
	sort.Strings(md.Unused)
	for _, key := range md.Unused {
		result = multierror.Append(result, cfgerr.Schema(cfgerr.ErrUnknownKey, key, "", "not a recognized option"))
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromRaw runs the front half of the pipeline: environment substitution on
// the raw tree, normalization, decoding and validation.
func FromRaw(raw map[string]any, env envsubst.Environment) (*UserConfig, error) {
	substituted, err := envsubst.SubstituteTree(raw, env)
	if err != nil {
		return nil, err
	}
	if substituted == nil {
		substituted = map[string]any{}
	}
	cfg, err := Decode(Normalize(substituted))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = deepCopy(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = deepCopy(child)
		}
		return out
	default:
		return v
	}
}

func joinField(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
