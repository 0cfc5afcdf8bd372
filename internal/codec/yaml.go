package codec

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"

	"tabularium/internal/domain"
)

// YAMLCodec handles YAML import/export
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// Parse imports a document from YAML. The top level must be a mapping.
func (c *YAMLCodec) Parse(r io.Reader) (domain.Document, error) {
	decoder := yaml.NewDecoder(r)

	var value map[string]any
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return domain.AsDocument(value)
}

// Export exports a document to YAML
func (c *YAMLCodec) Export(doc domain.Document, w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(yamlValue(doc)); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}

// yamlValue rewrites JSON number literals into native numbers so the
// emitted YAML reads as numerics rather than quoted strings.
func yamlValue(v any) any {
	switch val := v.(type) {
	case domain.Document:
		return yamlValue(map[string]any(val))
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = yamlValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = yamlValue(item)
		}
		return out
	case json.Number:
		if n, err := strconv.ParseInt(string(val), 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(string(val), 64); err == nil {
			return f
		}
		return string(val)
	}
	return v
}
