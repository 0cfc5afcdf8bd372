package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"tabularium/internal/domain"
)

// JSONCodec handles JSON import/export
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// Parse imports a document from JSON. Numbers stay literal so values
// round-trip without float drift, and the top level must be an object.
func (c *JSONCodec) Parse(r io.Reader) (domain.Document, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if decoder.More() {
		return nil, fmt.Errorf("failed to parse JSON: trailing data after document")
	}

	return domain.AsDocument(value)
}

// Export exports a document to JSON
func (c *JSONCodec) Export(doc domain.Document, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
