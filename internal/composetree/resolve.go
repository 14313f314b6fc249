package composetree

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/compose-spec/compose-go/v2/tree"

	"github.com/trly/pei-docker/internal/cfgerr"
)

// refPattern matches ${a.b.c} references into the tree itself. At least one
// dot is required so plain ${NAME} variables are never mistaken for one.
var refPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_-]+(?:\.[A-Za-z0-9_-]+)+)\}`)

// Resolve returns a copy of root with every ${a.b.c} reference replaced by
// the value at that path. A reference that makes up a whole string takes on
// the referenced value and its type; embedded references are rendered as
// text. References whose first segment is not a top-level key are left as
// they are. Missing paths and cycles are errors. root is not modified.
func Resolve(root map[string]any) (map[string]any, error) {
	r := &resolver{
		root:   DeepCopy(root),
		done:   map[string]any{},
		active: map[string]bool{},
	}
	out, err := r.walk(r.root, "")
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

type resolver struct {
	root   map[string]any
	done   map[string]any
	active map[string]bool
}

func (r *resolver) walk(node any, at string) (any, error) {
	switch t := node.(type) {
	case map[string]any:
		for k, child := range t {
			v, err := r.walk(child, joinPath(at, k))
			if err != nil {
				return nil, err
			}
			t[k] = v
		}
		return t, nil
	case []any:
		for i, child := range t {
			v, err := r.walk(child, fmt.Sprintf("%s[%d]", at, i))
			if err != nil {
				return nil, err
			}
			t[i] = v
		}
		return t, nil
	case string:
		return r.expand(t, at)
	default:
		return node, nil
	}
}

func (r *resolver) expand(s, at string) (any, error) {
	matches := refPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		ref := s[matches[0][2]:matches[0][3]]
		if !r.known(ref) {
			return s, nil
		}
		return r.lookup(ref, at)
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		ref := s[m[2]:m[3]]
		b.WriteString(s[last:m[0]])
		last = m[1]
		if !r.known(ref) {
			b.WriteString(s[m[0]:m[1]])
			continue
		}
		v, err := r.lookup(ref, at)
		if err != nil {
			return nil, err
		}
		switch v.(type) {
		case map[string]any, []any:
			return nil, cfgerr.Formatf(cfgerr.ErrTemplateReference, at, ref,
				"a mapping or sequence cannot be embedded in a string")
		case nil:
		default:
			fmt.Fprint(&b, v)
		}
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

func (r *resolver) known(ref string) bool {
	head, _, _ := strings.Cut(ref, ".")
	_, ok := r.root[head]
	return ok
}

func (r *resolver) lookup(ref, at string) (any, error) {
	if v, ok := r.done[ref]; ok {
		return deepCopy(v), nil
	}
	if r.active[ref] {
		return nil, cfgerr.Formatf(cfgerr.ErrTemplateReference, at, ref, "reference cycle")
	}
	r.active[ref] = true
	defer delete(r.active, ref)

	raw, err := Get(r.root, refPath(ref))
	if err != nil {
		return nil, cfgerr.Formatf(cfgerr.ErrTemplateReference, at, ref, "%v", err)
	}
	v, err := r.walk(deepCopy(raw), ref)
	if err != nil {
		return nil, err
	}
	r.done[ref] = v
	return deepCopy(v), nil
}

func refPath(ref string) tree.Path {
	return P(strings.Split(ref, ".")...)
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
