// Package envsubst resolves ${NAME} and ${NAME:-DEFAULT} references in user
// configuration against an explicit environment snapshot.
//
// The grammar is deliberately narrow: only the two forms above are recognized.
// A second marker form, {{NAME}} and {{NAME:-DEFAULT}}, passes through untouched
// and is rewritten to ${...} at the very end so docker compose resolves it.
package envsubst

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/compose-spec/compose-go/v2/interpolation"
	"github.com/compose-spec/compose-go/v2/template"

	"github.com/trly/pei-docker/internal/cfgerr"
)

var (
	refPattern         = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)
	passthroughPattern = regexp.MustCompile(`\{\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}\}`)
	leftoverPattern    = regexp.MustCompile(`\$\{[^}]*\}`)
)

// Environment is a snapshot of variable name to value.
type Environment map[string]string

// FromOS snapshots the process environment.
func FromOS() Environment {
	env := Environment{}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			env[k] = v
		}
	}
	return env
}

// Lookup distinguishes unset from empty.
func (e Environment) Lookup(name string) (string, bool) {
	v, ok := e[name]
	return v, ok
}

// Substitute resolves every ${NAME} and ${NAME:-DEFAULT} in text.
//
// ${NAME} is left verbatim when NAME is unset. ${NAME:-DEFAULT} falls back to
// DEFAULT only when NAME is unset; an empty value is still a value. DEFAULT is
// inserted as-is without further substitution.
func Substitute(text string, env Environment) string {
	if !strings.Contains(text, "${") {
		return text
	}
	return refPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := refPattern.FindStringSubmatch(match)
		if v, ok := env.Lookup(groups[1]); ok {
			return v
		}
		if groups[2] != "" {
			return groups[3]
		}
		return match
	})
}

// SubstituteTree applies Substitute to every string leaf of tree and returns a
// new tree. Non-string scalars and the shape of maps and sequences are kept.
// The input is not modified.
func SubstituteTree(tree map[string]any, env Environment) (map[string]any, error) {
	if tree == nil {
		return nil, nil
	}
	out, err := interpolation.Interpolate(tree, interpolation.Options{
		LookupValue: env.Lookup,
		Substitute: func(s string, _ template.Mapping) (string, error) {
			return Substitute(s, env), nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("substituting environment: %w", err)
	}
	return out, nil
}

// RewritePassthrough turns {{NAME}} and {{NAME:-DEFAULT}} markers into
// ${NAME} and ${NAME:-DEFAULT} so they survive into the compose output.
func RewritePassthrough(text string) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	return passthroughPattern.ReplaceAllString(text, "$${$1$2}")
}

// RewritePassthroughTree applies RewritePassthrough to every string leaf, in place.
func RewritePassthroughTree(node any) any {
	switch v := node.(type) {
	case string:
		return RewritePassthrough(v)
	case map[string]any:
		for k, child := range v {
			v[k] = RewritePassthroughTree(child)
		}
		return v
	case []any:
		for i, child := range v {
			v[i] = RewritePassthroughTree(child)
		}
		return v
	default:
		return node
	}
}

// Leftover is one unresolved ${...} occurrence found in a tree.
type Leftover struct {
	Path  string
	Value string
}

// FindLeftovers reports every string leaf still containing a ${...} sequence,
// sorted by path.
func FindLeftovers(node any) []Leftover {
	var found []Leftover
	var walk func(path string, n any)
	walk = func(path string, n any) {
		switch v := n.(type) {
		case string:
			if m := leftoverPattern.FindString(v); m != "" {
				found = append(found, Leftover{Path: path, Value: m})
			}
		case map[string]any:
			for k, child := range v {
				walk(joinPath(path, k), child)
			}
		case []any:
			for i, child := range v {
				walk(fmt.Sprintf("%s[%d]", path, i), child)
			}
		}
	}
	walk("", node)
	sort.Slice(found, func(i, j int) bool { return found[i].Path < found[j].Path })
	return found
}

// CheckLeftovers fails with a LeftoverSubstitution policy error naming the
// first unresolved sequence.
func CheckLeftovers(node any) error {
	left := FindLeftovers(node)
	if len(left) == 0 {
		return nil
	}
	return cfgerr.Policy(cfgerr.ErrLeftoverSubstitution, left[0].Path, left[0].Value,
		fmt.Sprintf("%d unresolved substitution(s) remain in the compose output; use {{NAME}} for values docker compose should resolve", len(left)))
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
