// Package composetree is a small typed accessor layer over the generic
// compose document tree (map[string]any, []any and scalars) produced by the
// YAML decoder.
package composetree

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/compose-spec/compose-go/v2/tree"
)

// ErrPathNotFound is returned when a path does not exist in the tree.
var ErrPathNotFound = errors.New("path not found")

// ErrNotContainer is returned when a path walks through a scalar.
var ErrNotContainer = errors.New("not a mapping or sequence")

// PathError reports the path being accessed and the segment that failed.
type PathError struct {
	Path    tree.Path
	Segment string
	Err     error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s: segment %q: %v", e.Path, e.Segment, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a missing path error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPathNotFound)
}

// escapedDot is how tree.Path.Next escapes dots inside a segment.
const escapedDot = "👻"

// P builds a path from segments. Segments may contain dots; they are kept
// as a single segment.
func P(segments ...string) tree.Path {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = strings.ReplaceAll(s, ".", escapedDot)
	}
	return tree.NewPath(escaped...)
}

// Segments splits p into its unescaped segments.
func Segments(p tree.Path) []string {
	if p == "" {
		return nil
	}
	parts := p.Parts()
	for i, part := range parts {
		parts[i] = strings.ReplaceAll(part, escapedDot, ".")
	}
	return parts
}

// Get returns the value at p. Integer segments index into sequences.
func Get(root map[string]any, p tree.Path) (any, error) {
	var node any = root
	for _, seg := range Segments(p) {
		next, err := child(node, seg)
		if err != nil {
			return nil, &PathError{Path: p, Segment: seg, Err: err}
		}
		node = next
	}
	return node, nil
}

// GetMap returns the mapping at p.
func GetMap(root map[string]any, p tree.Path) (map[string]any, error) {
	v, err := Get(root, p)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &PathError{Path: p, Segment: p.Last(), Err: fmt.Errorf("expected a mapping, got %T", v)}
	}
	return m, nil
}

// Has reports whether p exists.
func Has(root map[string]any, p tree.Path) bool {
	_, err := Get(root, p)
	return err == nil
}

// Set stores value at p, creating missing intermediate mappings. It fails
// when an intermediate value exists but is not a container.
func Set(root map[string]any, p tree.Path, value any) error {
	segs := Segments(p)
	if len(segs) == 0 {
		return &PathError{Path: p, Err: errors.New("empty path")}
	}

	var node any = root
	for _, seg := range segs[:len(segs)-1] {
		next, err := child(node, seg)
		if m, ok := node.(map[string]any); ok && (errors.Is(err, ErrPathNotFound) || (err == nil && next == nil)) {
			created := map[string]any{}
			m[seg] = created
			node = created
			continue
		}
		if err != nil {
			return &PathError{Path: p, Segment: seg, Err: err}
		}
		node = next
	}

	last := segs[len(segs)-1]
	switch t := node.(type) {
	case map[string]any:
		t[last] = value
		return nil
	case []any:
		i, err := index(t, last)
		if err != nil {
			return &PathError{Path: p, Segment: last, Err: err}
		}
		t[i] = value
		return nil
	default:
		return &PathError{Path: p, Segment: last, Err: ErrNotContainer}
	}
}

// Delete removes the mapping key at p. It reports whether anything was
// removed; sequence elements cannot be deleted.
func Delete(root map[string]any, p tree.Path) bool {
	segs := Segments(p)
	if len(segs) == 0 {
		return false
	}
	parent, err := Get(root, P(segs[:len(segs)-1]...))
	if err != nil {
		return false
	}
	m, ok := parent.(map[string]any)
	if !ok {
		return false
	}
	if _, exists := m[segs[len(segs)-1]]; !exists {
		return false
	}
	delete(m, segs[len(segs)-1])
	return true
}

func child(node any, seg string) (any, error) {
	switch t := node.(type) {
	case map[string]any:
		v, ok := t[seg]
		if !ok {
			return nil, ErrPathNotFound
		}
		return v, nil
	case []any:
		i, err := index(t, seg)
		if err != nil {
			return nil, err
		}
		return t[i], nil
	default:
		return nil, ErrNotContainer
	}
}

func index(list []any, seg string) (int, error) {
	i, err := strconv.Atoi(seg)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a sequence index", ErrPathNotFound, seg)
	}
	if i < 0 || i >= len(list) {
		return 0, fmt.Errorf("%w: index %d out of range (len %d)", ErrPathNotFound, i, len(list))
	}
	return i, nil
}

// DeepCopy copies every mapping and sequence of root. Scalars are shared.
func DeepCopy(root map[string]any) map[string]any {
	if root == nil {
		return nil
	}
	return deepCopy(root).(map[string]any)
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

// StringList converts a string slice into a sequence node.
func StringList(items []string) []any {
	out := make([]any, len(items))
	for i, s := range items {
		out[i] = s
	}
	return out
}
