package codec

import (
	"io"
	"path/filepath"
	"strings"

	"tabularium/internal/domain"
)

// Importer interface for parsing documents from an external format
type Importer interface {
	Parse(r io.Reader) (domain.Document, error)
	Format() string
}

// Exporter interface for writing documents to an external format
type Exporter interface {
	Export(doc domain.Document, w io.Writer) error
	Format() string
}

// ForExtension picks the importer for a file name by its extension
func ForExtension(path string) (Importer, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return NewJSONCodec(), true
	case ".yaml", ".yml":
		return NewYAMLCodec(), true
	}
	return nil, false
}
