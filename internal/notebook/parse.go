package notebook

import (
	"encoding/json"
	"log/slog"
)

// Document is a parsed notebook: the cell list plus the document-level fields
// that must survive a save round-trip.
type Document struct {
	Cells         []Cell
	Metadata      map[string]any
	NBFormat      int
	NBFormatMinor int
}

const (
	DefaultNBFormat      = 4
	DefaultNBFormatMinor = 5
)

type rawDocument struct {
	Cells         json.RawMessage `json:"cells"`
	Metadata      map[string]any  `json:"metadata"`
	NBFormat      int             `json:"nbformat"`
	NBFormatMinor int             `json:"nbformat_minor"`
}

type rawCell struct {
	CellType       string          `json:"cell_type"`
	Source         MultilineString `json:"source"`
	Outputs        []Output        `json:"outputs"`
	Metadata       map[string]any  `json:"metadata"`
	ExecutionCount *int            `json:"execution_count"`
}

// Parse decodes a notebook document. Malformed input is never an error: a
// document without a cells array yields an empty cell list with a logged
// warning, and individual cells that fail to decode or carry an unknown
// cell_type are skipped.
func Parse(data []byte) Document {
	doc := Document{
		Cells:         []Cell{},
		Metadata:      map[string]any{},
		NBFormat:      DefaultNBFormat,
		NBFormatMinor: DefaultNBFormatMinor,
	}

	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		slog.Warn("notebook document is not valid JSON", "error", err)
		return doc
	}
	if raw.Metadata != nil {
		doc.Metadata = raw.Metadata
	}
	if raw.NBFormat > 0 {
		doc.NBFormat = raw.NBFormat
		doc.NBFormatMinor = raw.NBFormatMinor
	}

	var cells []json.RawMessage
	if err := json.Unmarshal(raw.Cells, &cells); err != nil {
		slog.Warn("notebook document has no cells array")
		return doc
	}

	for _, data := range cells {
		var rc rawCell
		if err := json.Unmarshal(data, &rc); err != nil {
			slog.Warn("skipping undecodable cell", "error", err)
			continue
		}
		switch rc.CellType {
		case CellTypeCode, CellTypeMarkdown, CellTypeRaw:
		default:
			continue
		}

		cell := Cell{
			Type:           rc.CellType,
			Source:         string(rc.Source),
			Outputs:        rc.Outputs,
			Metadata:       rc.Metadata,
			ExecutionCount: rc.ExecutionCount,
		}
		if cell.Outputs == nil {
			cell.Outputs = []Output{}
		}
		if cell.Metadata == nil {
			cell.Metadata = map[string]any{}
		}
		doc.Cells = append(doc.Cells, cell)
	}
	return doc
}

// Categorize splits cells into code and markdown groups, preserving the
// original relative order within each. Raw cells belong to neither.
func Categorize(cells []Cell) (codeCells, markdownCells []Cell) {
	codeCells = []Cell{}
	markdownCells = []Cell{}
	for _, c := range cells {
		switch c.Type {
		case CellTypeCode:
			codeCells = append(codeCells, c)
		case CellTypeMarkdown:
			markdownCells = append(markdownCells, c)
		}
	}
	return codeCells, markdownCells
}
