package notebook

import (
	"encoding/json"
	"fmt"
)

// MetadataKey is the per-cell metadata slot where window layout is kept so a
// reopened notebook restores its floating windows where the user left them.
const MetadataKey = "floatlab"

// Geometry is the persisted layout of one floating window.
type Geometry struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Z         int     `json:"z"`
	Minimized bool    `json:"minimized"`
	Title     string  `json:"title,omitempty"`
}

// GeometryFromMetadata reads a stored layout from cell metadata. The second
// return is false when the cell carries none or the stored shape is
// unreadable.
func GeometryFromMetadata(meta map[string]any) (Geometry, bool) {
	v, ok := meta[MetadataKey]
	if !ok {
		return Geometry{}, false
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return Geometry{}, false
	}
	var g Geometry
	if err := json.Unmarshal(encoded, &g); err != nil {
		return Geometry{}, false
	}
	return g, true
}

// StoreGeometry writes a layout into cell metadata, returning the map so it
// can be used inline when assembling cells.
func StoreGeometry(meta map[string]any, g Geometry) map[string]any {
	if meta == nil {
		meta = map[string]any{}
	}
	meta[MetadataKey] = g
	return meta
}

type serializedCodeCell struct {
	CellType       string          `json:"cell_type"`
	Source         MultilineString `json:"source"`
	Metadata       map[string]any  `json:"metadata"`
	ExecutionCount *int            `json:"execution_count"`
	Outputs        []Output        `json:"outputs"`
}

type serializedMarkdownCell struct {
	CellType string          `json:"cell_type"`
	Source   MultilineString `json:"source"`
	Metadata map[string]any  `json:"metadata"`
}

type serializedDocument struct {
	Cells         []any          `json:"cells"`
	Metadata      map[string]any `json:"metadata"`
	NBFormat      int            `json:"nbformat"`
	NBFormatMinor int            `json:"nbformat_minor"`
}

// Serialize encodes a document back into notebook JSON. Cell sources are
// written in the line-sequence form. Raw cells pass through untouched; any
// other cell type is written as markdown rather than dropped.
func Serialize(doc Document) ([]byte, error) {
	out := serializedDocument{
		Cells:         make([]any, 0, len(doc.Cells)),
		Metadata:      doc.Metadata,
		NBFormat:      doc.NBFormat,
		NBFormatMinor: doc.NBFormatMinor,
	}
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}
	if out.NBFormat == 0 {
		out.NBFormat = DefaultNBFormat
		out.NBFormatMinor = DefaultNBFormatMinor
	}

	for _, cell := range doc.Cells {
		meta := cell.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		switch cell.Type {
		case CellTypeCode:
			outputs := cell.Outputs
			if outputs == nil {
				outputs = []Output{}
			}
			out.Cells = append(out.Cells, serializedCodeCell{
				CellType:       CellTypeCode,
				Source:         MultilineString(cell.Source),
				Metadata:       meta,
				ExecutionCount: cell.ExecutionCount,
				Outputs:        outputs,
			})
		default:
			out.Cells = append(out.Cells, serializedMarkdownCell{
				CellType: cell.Type,
				Source:   MultilineString(cell.Source),
				Metadata: meta,
			})
		}
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize notebook: %w", err)
	}
	return encoded, nil
}

// EmptyDocument is the minimal notebook written for a freshly created
// document before any cells exist.
func EmptyDocument() Document {
	return Document{
		Cells: []Cell{},
		Metadata: map[string]any{
			"kernelspec": map[string]any{
				"display_name": "Python 3",
				"language":     "python",
				"name":         "python3",
			},
		},
		NBFormat:      DefaultNBFormat,
		NBFormatMinor: DefaultNBFormatMinor,
	}
}
