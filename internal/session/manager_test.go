package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/floatlab/internal/db"
	"github.com/user/floatlab/internal/hub"
	"github.com/user/floatlab/internal/kernel"
	"github.com/user/floatlab/internal/notebook"
	"github.com/user/floatlab/internal/windows"
)

type fakeKernel struct {
	state    string
	onStatus func(string)
	executed []string
	emit     []notebook.OutputItem
	startErr error
	execErr  error
	shutdown bool
}

func (f *fakeKernel) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.state = kernel.StateIdle
	return nil
}

func (f *fakeKernel) OnStatus(fn func(string)) { f.onStatus = fn }

func (f *fakeKernel) Execute(ctx context.Context, code string, onItem func(notebook.OutputItem)) (int, error) {
	f.executed = append(f.executed, code)
	if f.execErr != nil {
		return 0, f.execErr
	}
	for _, item := range f.emit {
		onItem(item)
	}
	return len(f.executed), nil
}

func (f *fakeKernel) Interrupt(ctx context.Context) error { return nil }
func (f *fakeKernel) Restart(ctx context.Context) error   { return nil }
func (f *fakeKernel) Shutdown(ctx context.Context) error {
	f.shutdown = true
	f.state = kernel.StateDead
	return nil
}
func (f *fakeKernel) State() string {
	if f.state == "" {
		return kernel.StateStarting
	}
	return f.state
}

func newTestManager(t *testing.T) (*Manager, *db.NotebookRepo, *fakeKernel) {
	t.Helper()
	database, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db open failed: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	fk := &fakeKernel{}
	m := NewManager(database.SQL(), hub.New("token"), "http://localhost:8888", "python3", "")
	if m == nil {
		t.Fatal("NewManager returned nil")
	}
	m.newKernel = func() executor { return fk }
	return m, db.NewNotebookRepo(database.SQL()), fk
}

func storeNotebook(t *testing.T, repo *db.NotebookRepo, content string) string {
	t.Helper()
	nb := &db.Notebook{Name: "test", Content: content}
	if err := repo.Create(context.Background(), nb); err != nil {
		t.Fatalf("failed to store notebook: %v", err)
	}
	return nb.ID
}

const sampleNotebook = `{
  "cells": [
    {
      "cell_type": "code",
      "source": ["import math\n", "print(math.pi)\n"],
      "outputs": [{"output_type": "stream", "name": "stdout", "text": "3.141592653589793\n"}],
      "metadata": {"floatlab": {"x": 100, "y": 120, "width": 500, "height": 300, "z": 3, "minimized": false, "title": "pi"}}
    },
    {"cell_type": "markdown", "source": "# Notes"},
    {"cell_type": "raw", "source": "ignored"}
  ],
  "metadata": {"language_info": {"name": "python"}},
  "nbformat": 4,
  "nbformat_minor": 5
}`

func TestOpenBuildsWindowsFromDocument(t *testing.T) {
	m, repo, _ := newTestManager(t)
	id := storeNotebook(t, repo, sampleNotebook)

	s, err := m.Open(context.Background(), id)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	list := s.Registry.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 windows (editor, output, markdown), got %d", len(list))
	}

	editor := list[0]
	if editor.Kind != windows.KindEditor {
		t.Fatalf("first window kind: %q", editor.Kind)
	}
	if editor.Content != "import math\nprint(math.pi)\n" {
		t.Errorf("editor content: %q", editor.Content)
	}
	if editor.X != 100 || editor.Y != 120 || editor.Width != 500 || editor.Height != 300 {
		t.Errorf("saved geometry not restored: %+v", editor)
	}
	if editor.Title != "pi" {
		t.Errorf("saved title not restored: %q", editor.Title)
	}

	output := list[1]
	if output.Kind != windows.KindOutput || output.LinkedID != editor.ID {
		t.Fatalf("second window should be the linked output: %+v", output)
	}
	if len(output.Items) != 1 || output.Items[0].Text != "3.141592653589793\n" {
		t.Errorf("stored outputs not converted: %#v", output.Items)
	}

	md := list[2]
	if md.Kind != windows.KindMarkdown || md.Content != "# Notes" {
		t.Errorf("markdown window: %+v", md)
	}

	// Raw cells are dropped and a fresh session is not dirty.
	if s.Info().Dirty {
		t.Error("freshly opened session must not be dirty")
	}
}

func TestOpenMissingNotebook(t *testing.T) {
	m, _, _ := newTestManager(t)
	if _, err := m.Open(context.Background(), "missing"); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestOpenSurfacesKernelStartFailure(t *testing.T) {
	m, repo, fk := newTestManager(t)
	fk.startErr = errors.New("gateway unreachable")
	id := storeNotebook(t, repo, `{"cells":[]}`)

	if _, err := m.Open(context.Background(), id); err == nil {
		t.Fatal("expected open to fail when the kernel cannot start")
	}
	if len(m.List()) != 0 {
		t.Error("failed open must not leave a session behind")
	}
}

func TestExecuteRoutesItemsToLinkedOutput(t *testing.T) {
	m, repo, fk := newTestManager(t)
	id := storeNotebook(t, repo, `{"cells":[{"cell_type":"code","source":"print('hi')"}]}`)
	s, err := m.Open(context.Background(), id)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	editor := s.Registry.List()[0]
	fk.emit = []notebook.OutputItem{{Type: notebook.ItemStream, Text: "hi\n"}}

	if err := m.Execute(context.Background(), s.ID, editor.ID); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if len(fk.executed) != 1 || fk.executed[0] != "print('hi')" {
		t.Fatalf("kernel saw: %#v", fk.executed)
	}

	out, ok := s.Registry.LinkedOutput(editor.ID)
	if !ok {
		t.Fatal("no output window created")
	}
	if len(out.Items) != 1 || out.Items[0].Text != "hi\n" {
		t.Fatalf("output items: %#v", out.Items)
	}

	// A second run reuses the window and replaces its items.
	fk.emit = []notebook.OutputItem{{Type: notebook.ItemError, Text: "NameError: x\n"}}
	if err := m.Execute(context.Background(), s.ID, editor.ID); err != nil {
		t.Fatalf("second execute failed: %v", err)
	}
	again, _ := s.Registry.LinkedOutput(editor.ID)
	if again.ID != out.ID {
		t.Error("second execution created a new output window")
	}
	if len(again.Items) != 1 || again.Items[0].Type != notebook.ItemError {
		t.Errorf("items not replaced: %#v", again.Items)
	}
}

func TestExecuteValidation(t *testing.T) {
	m, repo, _ := newTestManager(t)
	id := storeNotebook(t, repo, `{"cells":[{"cell_type":"markdown","source":"# t"}]}`)
	s, err := m.Open(context.Background(), id)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	md := s.Registry.List()[0]

	if err := m.Execute(context.Background(), "missing", md.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("unknown session: got %v", err)
	}
	if err := m.Execute(context.Background(), s.ID, "missing"); !errors.Is(err, ErrWindowNotFound) {
		t.Errorf("unknown window: got %v", err)
	}
	if err := m.Execute(context.Background(), s.ID, md.ID); !errors.Is(err, ErrNotExecutable) {
		t.Errorf("markdown window: got %v", err)
	}
}

func TestSavePersistsRoundTrip(t *testing.T) {
	m, repo, fk := newTestManager(t)
	id := storeNotebook(t, repo, sampleNotebook)
	s, err := m.Open(context.Background(), id)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	editor := s.Registry.List()[0]
	s.Registry.SetPosition(editor.ID, 400, 50)
	s.Registry.SetContent(editor.ID, "x = 1\n")
	fk.emit = []notebook.OutputItem{{Type: notebook.ItemStream, Text: "done\n"}}
	if err := m.Execute(context.Background(), s.ID, editor.ID); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if !s.Info().Dirty {
		t.Fatal("mutations should mark the session dirty")
	}
	if err := m.Save(context.Background(), s.ID); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if s.Info().Dirty {
		t.Error("save should clear the dirty flag")
	}

	stored, err := repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	doc := notebook.Parse([]byte(stored.Content))
	if len(doc.Cells) != 2 {
		t.Fatalf("expected 2 cells after save (output windows are derived), got %d", len(doc.Cells))
	}

	code := doc.Cells[0]
	if code.Type != notebook.CellTypeCode || code.Source != "x = 1\n" {
		t.Fatalf("code cell: %+v", code)
	}
	items := notebook.ConvertOutputs(code.Outputs)
	if len(items) != 1 || items[0].Text != "done\n" {
		t.Errorf("outputs not persisted: %#v", items)
	}
	g, ok := notebook.GeometryFromMetadata(code.Metadata)
	if !ok || g.X != 400 || g.Y != 50 {
		t.Errorf("geometry not persisted: %+v ok=%v", g, ok)
	}
	if _, ok := doc.Metadata["language_info"]; !ok {
		t.Error("document metadata lost on save")
	}
	if doc.Cells[1].Type != notebook.CellTypeMarkdown {
		t.Errorf("markdown cell lost: %+v", doc.Cells[1])
	}
}

func TestHandleActionMutatesWindows(t *testing.T) {
	m, repo, _ := newTestManager(t)
	id := storeNotebook(t, repo, `{"cells":[{"cell_type":"code","source":"a"}]}`)
	s, err := m.Open(context.Background(), id)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	win := s.Registry.List()[0]

	m.HandleAction(s.ID, hub.ClientMessage{Type: hub.MsgMove, Window: win.ID, X: 7, Y: 8})
	m.HandleAction(s.ID, hub.ClientMessage{Type: hub.MsgSetTitle, Window: win.ID, Title: "renamed"})
	m.HandleAction(s.ID, hub.ClientMessage{Type: hub.MsgNewWindow, Kind: "markdown", Title: "notes", Content: "# n"})
	m.HandleAction(s.ID, hub.ClientMessage{Type: hub.MsgNewWindow, Kind: "output", Title: "nope"})
	m.HandleAction("missing", hub.ClientMessage{Type: hub.MsgMove, Window: win.ID, X: 1, Y: 1})

	got, _ := s.Registry.Get(win.ID)
	if got.X != 7 || got.Y != 8 || got.Title != "renamed" {
		t.Errorf("window after actions: %+v", got)
	}
	list := s.Registry.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 windows (output kind must be rejected), got %d", len(list))
	}
	if list[1].Kind != windows.KindMarkdown || list[1].Content != "# n" {
		t.Errorf("new markdown window: %+v", list[1])
	}

	m.HandleAction(s.ID, hub.ClientMessage{Type: hub.MsgCloseWin, Window: win.ID})
	if _, ok := s.Registry.Get(win.ID); ok {
		t.Error("close action did not remove the window")
	}
}

func TestCloseShutsDownKernel(t *testing.T) {
	m, repo, fk := newTestManager(t)
	id := storeNotebook(t, repo, `{"cells":[]}`)
	s, err := m.Open(context.Background(), id)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	if err := m.Close(context.Background(), s.ID); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if !fk.shutdown {
		t.Error("kernel was not shut down")
	}
	if err := m.Close(context.Background(), s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second close: got %v", err)
	}
	if len(m.List()) != 0 {
		t.Error("session still listed after close")
	}
}

func TestCloseAll(t *testing.T) {
	m, repo, _ := newTestManager(t)
	for i := 0; i < 3; i++ {
		id := storeNotebook(t, repo, `{"cells":[]}`)
		if _, err := m.Open(context.Background(), id); err != nil {
			t.Fatalf("open failed: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		m.CloseAll(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("CloseAll hung")
	}
	if len(m.List()) != 0 {
		t.Errorf("sessions remain: %v", m.List())
	}
}
