package notebook

import (
	"encoding/json"
	"strings"
)

// Display item types.
const (
	ItemStream        = "stream"
	ItemExecuteResult = "execute_result"
	ItemDisplayData   = "display_data"
	ItemError         = "error"
)

// OutputItem is the normalized display form of one notebook output, reduced
// to a type tag and a single text payload the UI can show directly.
type OutputItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ConvertOutputs maps host output records to display items, dropping any
// record with an unsupported output_type.
func ConvertOutputs(outputs []Output) []OutputItem {
	items := []OutputItem{}
	for _, out := range outputs {
		if item, ok := ConvertOutput(out); ok {
			items = append(items, item)
		}
	}
	return items
}

// ConvertOutput maps one output record. The second return is false for
// output types this layer does not display (widget state and the like).
func ConvertOutput(out Output) (OutputItem, bool) {
	switch out.OutputType {
	case ItemStream:
		return OutputItem{Type: ItemStream, Text: string(out.Text)}, true
	case ItemExecuteResult, ItemDisplayData:
		return OutputItem{Type: out.OutputType, Text: displayText(out.Data)}, true
	case ItemError:
		return OutputItem{Type: ItemError, Text: formatError(out)}, true
	}
	return OutputItem{}, false
}

// displayText picks the richest representation available in a data bundle:
// html over plain text over an inline image reference, with a JSON dump of
// the whole bundle as the last resort.
func displayText(data map[string]MultilineString) string {
	if v, ok := data["text/html"]; ok {
		return string(v)
	}
	if v, ok := data["text/plain"]; ok {
		return string(v)
	}
	for _, mime := range []string{"image/png", "image/jpeg"} {
		if v, ok := data[mime]; ok {
			return "data:" + mime + ";base64," + strings.TrimRight(string(v), "\n")
		}
	}
	plain := make(map[string]string, len(data))
	for k, v := range data {
		plain[k] = string(v)
	}
	encoded, err := json.Marshal(plain)
	if err != nil {
		return ""
	}
	return string(encoded)
}

func formatError(out Output) string {
	name := out.EName
	if name == "" {
		name = "Error"
	}
	return name + ": " + out.EValue + "\n" + strings.Join(out.Traceback, "\n")
}

// EncodeItem inverts ConvertOutput for one display item, producing the
// nbformat record written back on save. The inversion is best-effort: rich
// payloads that are not recognizable image references are stored as plain
// text.
func EncodeItem(item OutputItem) Output {
	switch item.Type {
	case ItemStream:
		return Output{OutputType: ItemStream, Name: "stdout", Text: MultilineString(item.Text)}
	case ItemExecuteResult, ItemDisplayData:
		out := Output{OutputType: item.Type, Data: encodeData(item.Text), Metadata: map[string]any{}}
		return out
	case ItemError:
		name, value, traceback := splitError(item.Text)
		return Output{OutputType: ItemError, EName: name, EValue: value, Traceback: traceback}
	}
	return Output{OutputType: item.Type}
}

func encodeData(text string) map[string]MultilineString {
	for _, mime := range []string{"image/png", "image/jpeg"} {
		prefix := "data:" + mime + ";base64,"
		if strings.HasPrefix(text, prefix) {
			return map[string]MultilineString{mime: MultilineString(strings.TrimPrefix(text, prefix))}
		}
	}
	return map[string]MultilineString{"text/plain": MultilineString(text)}
}

func splitError(text string) (name, value string, traceback []string) {
	lines := strings.Split(text, "\n")
	head := lines[0]
	if idx := strings.Index(head, ": "); idx >= 0 {
		name, value = head[:idx], head[idx+2:]
	} else {
		name = head
	}
	if name == "" {
		name = "Error"
	}
	return name, value, lines[1:]
}
