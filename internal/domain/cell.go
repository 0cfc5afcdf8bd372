package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ObjectSentinel is the cell text recorded for an object-valued key.
// The object's content lives in the child structure named after the key.
const ObjectSentinel = "OBJECT"

// CellKind identifies the JSON shape a cell was decomposed from
type CellKind string

const (
	CellNull         CellKind = "null"
	CellBool         CellKind = "bool"
	CellNumber       CellKind = "number"
	CellString       CellKind = "string"
	CellArray        CellKind = "array"
	CellObjectMarker CellKind = "object" // content lives in a child structure
)

// Cell is one decomposed document value in its canonical text form.
// Physical columns are always TEXT; Kind records what the text encodes.
type Cell struct {
	Kind CellKind
	Text string
}

// IsObjectMarker reports whether the cell stands in for a nested object
func (c Cell) IsObjectMarker() bool {
	return c.Kind == CellObjectMarker
}

// CellFromValue classifies a decoded JSON value and renders its canonical
// text: null and booleans as their JSON literals, numbers as their digits,
// strings verbatim, arrays as their JSON serialization, objects as the
// sentinel marker. Decomposing the object's content is the caller's concern.
func CellFromValue(v any) (Cell, error) {
	switch val := v.(type) {
	case nil:
		return Cell{Kind: CellNull, Text: "null"}, nil
	case bool:
		return Cell{Kind: CellBool, Text: strconv.FormatBool(val)}, nil
	case string:
		return Cell{Kind: CellString, Text: val}, nil
	case json.Number:
		return Cell{Kind: CellNumber, Text: val.String()}, nil
	case int:
		return Cell{Kind: CellNumber, Text: strconv.Itoa(val)}, nil
	case int64:
		return Cell{Kind: CellNumber, Text: strconv.FormatInt(val, 10)}, nil
	case uint64:
		return Cell{Kind: CellNumber, Text: strconv.FormatUint(val, 10)}, nil
	case float64:
		text, err := json.Marshal(val)
		if err != nil {
			return Cell{}, fmt.Errorf("failed to encode number: %w", err)
		}
		return Cell{Kind: CellNumber, Text: string(text)}, nil
	case Document:
		return Cell{Kind: CellObjectMarker, Text: ObjectSentinel}, nil
	case map[string]any:
		return Cell{Kind: CellObjectMarker, Text: ObjectSentinel}, nil
	case []any:
		text, err := json.Marshal(val)
		if err != nil {
			return Cell{}, fmt.Errorf("failed to encode array: %w", err)
		}
		return Cell{Kind: CellArray, Text: string(text)}, nil
	default:
		return Cell{}, fmt.Errorf("unsupported value type %T", v)
	}
}

// ParseCellText decodes stored cell text back into a JSON value. Text that
// parses as one complete JSON value becomes that value; anything else falls
// back to a plain string. Strings that happen to look like JSON are coerced
// on the way back, which is the store's declared lossiness.
func ParseCellText(text string) any {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return text
	}
	if dec.More() {
		return text
	}
	return v
}
