package compose

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Marshal renders a compose document as YAML with two-space indentation.
// Mapping keys are emitted in sorted order so output is stable.
func Marshal(doc map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encoding compose document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding compose document: %w", err)
	}
	return buf.Bytes(), nil
}
