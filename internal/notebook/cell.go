package notebook

import (
	"encoding/json"
	"strings"
)

const (
	CellTypeCode     = "code"
	CellTypeMarkdown = "markdown"
	CellTypeRaw      = "raw"
)

// Cell is one unit of a notebook document with its source normalized to a
// single string. Outputs and metadata are defaulted to empty rather than nil
// checks at every call site.
type Cell struct {
	Type           string
	Source         string
	Outputs        []Output
	Metadata       map[string]any
	ExecutionCount *int
}

// Output is a raw nbformat output record. Only the fields used by the three
// supported output families are modeled; anything else rides along in Data.
type Output struct {
	OutputType     string                     `json:"output_type"`
	Name           string                     `json:"name,omitempty"`
	Text           MultilineString            `json:"text,omitempty"`
	Data           map[string]MultilineString `json:"data,omitempty"`
	Metadata       map[string]any             `json:"metadata,omitempty"`
	ExecutionCount *int                       `json:"execution_count,omitempty"`
	EName          string                     `json:"ename,omitempty"`
	EValue         string                     `json:"evalue,omitempty"`
	Traceback      []string                   `json:"traceback,omitempty"`
}

// MultilineString is nbformat's string-or-list-of-strings text shape. Both
// forms represent the same logical text; list elements carry their own line
// terminators, so joining uses no separator.
type MultilineString string

func (m *MultilineString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*m = MultilineString(s)
		return nil
	}
	var lines []string
	if err := json.Unmarshal(data, &lines); err == nil {
		*m = MultilineString(strings.Join(lines, ""))
		return nil
	}
	// Unrecognized shape degrades to empty.
	*m = ""
	return nil
}

func (m MultilineString) MarshalJSON() ([]byte, error) {
	return json.Marshal(SplitLines(string(m)))
}

// SplitLines breaks text into nbformat's line-sequence form, keeping the
// terminator on each line: "a\nb\n" -> ["a\n", "b\n"], "a\nb" -> ["a\n", "b"].
func SplitLines(text string) []string {
	if text == "" {
		return []string{}
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
