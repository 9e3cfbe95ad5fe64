package session

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/user/floatlab/internal/kernel"
	"github.com/user/floatlab/internal/notebook"
	"github.com/user/floatlab/internal/windows"
)

// executor abstracts the kernel client so session logic is testable without
// a live gateway.
type executor interface {
	Start(ctx context.Context) error
	OnStatus(fn func(state string))
	Execute(ctx context.Context, code string, onItem func(notebook.OutputItem)) (int, error)
	Interrupt(ctx context.Context) error
	Restart(ctx context.Context) error
	Shutdown(ctx context.Context) error
	State() string
}

// Session is one open notebook: its window registry, its kernel connection
// and the identity of the stored document. Sessions are created by the
// Manager and torn down by an explicit Close; nothing here is a package
// global.
type Session struct {
	ID         string
	NotebookID string

	Registry *windows.Registry

	kernel      executor
	meta        notebook.Document
	dirty       atomic.Bool
	unsubscribe func()
}

// Info is the API-facing view of a session.
type Info struct {
	ID          string `json:"id"`
	NotebookID  string `json:"notebook_id"`
	KernelState string `json:"kernel_state"`
	Dirty       bool   `json:"dirty"`
	Windows     int    `json:"windows"`
}

func (s *Session) Info() Info {
	state := kernel.StateDead
	if s.kernel != nil {
		state = s.kernel.State()
	}
	return Info{
		ID:          s.ID,
		NotebookID:  s.NotebookID,
		KernelState: state,
		Dirty:       s.dirty.Load(),
		Windows:     len(s.Registry.List()),
	}
}

// buildWindows populates the registry from a parsed document. Code cells
// become editor windows; their stored outputs become linked output windows;
// markdown cells become markdown windows. Saved geometry wins over the
// cascade default.
func (s *Session) buildWindows(doc notebook.Document) {
	s.meta = doc

	for _, cell := range doc.Cells {
		switch cell.Type {
		case notebook.CellTypeCode:
			title := cellTitle(cell, "Cell")
			editorID := s.restoreOrCreate(windows.KindEditor, title, cell.Source, "", cell.Metadata)

			items := notebook.ConvertOutputs(cell.Outputs)
			if len(items) > 0 {
				outputID := s.restoreOrCreate(windows.KindOutput, title+" output", "", editorID, nil)
				for _, item := range items {
					s.Registry.AppendItem(outputID, item)
				}
			}
		case notebook.CellTypeMarkdown:
			s.restoreOrCreate(windows.KindMarkdown, cellTitle(cell, "Markdown"), cell.Source, "", cell.Metadata)
		}
	}
}

func (s *Session) restoreOrCreate(kind windows.Kind, title, content, linkedID string, meta map[string]any) string {
	if g, ok := notebook.GeometryFromMetadata(meta); ok {
		if g.Title != "" {
			title = g.Title
		}
		return s.Registry.Restore(windows.Record{
			Kind:      kind,
			Title:     title,
			X:         g.X,
			Y:         g.Y,
			Width:     g.Width,
			Height:    g.Height,
			ZOrder:    g.Z,
			Minimized: g.Minimized,
			Content:   content,
			LinkedID:  linkedID,
		})
	}
	return s.Registry.Create(kind, title, content, linkedID)
}

// buildDocument is the inverse mapping used on save: editor windows become
// code cells carrying their linked output window's items, markdown windows
// become markdown cells. Output windows only contribute outputs. Document
// metadata is carried over from the original document.
func (s *Session) buildDocument() notebook.Document {
	doc := notebook.Document{
		Cells:         []notebook.Cell{},
		Metadata:      s.meta.Metadata,
		NBFormat:      s.meta.NBFormat,
		NBFormatMinor: s.meta.NBFormatMinor,
	}

	for _, rec := range s.Registry.List() {
		switch rec.Kind {
		case windows.KindEditor:
			cell := notebook.Cell{
				Type:     notebook.CellTypeCode,
				Source:   rec.Content,
				Outputs:  []notebook.Output{},
				Metadata: notebook.StoreGeometry(nil, recordGeometry(rec)),
			}
			if out, ok := s.Registry.LinkedOutput(rec.ID); ok {
				for _, item := range out.Items {
					cell.Outputs = append(cell.Outputs, notebook.EncodeItem(item))
				}
			}
			doc.Cells = append(doc.Cells, cell)
		case windows.KindMarkdown:
			doc.Cells = append(doc.Cells, notebook.Cell{
				Type:     notebook.CellTypeMarkdown,
				Source:   rec.Content,
				Metadata: notebook.StoreGeometry(nil, recordGeometry(rec)),
			})
		}
	}
	return doc
}

func recordGeometry(rec windows.Record) notebook.Geometry {
	return notebook.Geometry{
		X:         rec.X,
		Y:         rec.Y,
		Width:     rec.Width,
		Height:    rec.Height,
		Z:         rec.ZOrder,
		Minimized: rec.Minimized,
		Title:     rec.Title,
	}
}

// cellTitle derives a window title from the first line of a cell's source.
func cellTitle(cell notebook.Cell, fallback string) string {
	for _, line := range notebook.SplitLines(cell.Source) {
		trimmed := trimTitle(line)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func trimTitle(line string) string {
	const maxTitle = 40
	line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
	runes := []rune(line)
	if len(runes) > maxTitle {
		runes = runes[:maxTitle]
	}
	return string(runes)
}
