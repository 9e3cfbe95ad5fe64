package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/user/floatlab/internal/db"
	"github.com/user/floatlab/internal/hub"
	"github.com/user/floatlab/internal/kernel"
	"github.com/user/floatlab/internal/notebook"
	"github.com/user/floatlab/internal/windows"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrWindowNotFound  = errors.New("window not found")
	ErrNotExecutable   = errors.New("window is not an editor")
)

// Manager owns every open notebook session. It is the single writer of each
// session's window registry: browser requests arrive through HandleAction,
// REST requests through the exported methods.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	repo     *db.NotebookRepo
	hub      *hub.Hub
	runCtx   context.Context

	// newKernel is swapped out in tests.
	newKernel func() executor
}

func NewManager(conn *sql.DB, hubInst *hub.Hub, gatewayURL, kernelName, gatewayToken string) *Manager {
	if conn == nil || hubInst == nil {
		return nil
	}
	m := &Manager{
		sessions: make(map[string]*Session),
		repo:     db.NewNotebookRepo(conn),
		hub:      hubInst,
		runCtx:   context.Background(),
		newKernel: func() executor {
			return kernel.NewClient(gatewayURL, kernelName, gatewayToken)
		},
	}
	hubInst.SetOnAction(m.HandleAction)
	return m
}

// Start pins the context used for work triggered over the websocket.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	m.runCtx = ctx
	m.mu.Unlock()
}

// Open loads a stored notebook, builds its windows and starts a kernel for
// it. A gateway that stays unreachable after the bounded retries fails the
// open; the stored document is untouched.
func (m *Manager) Open(ctx context.Context, notebookID string) (*Session, error) {
	nb, err := m.repo.Get(ctx, notebookID)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:         db.NewID(),
		NotebookID: nb.ID,
		Registry:   windows.NewRegistry(),
		kernel:     m.newKernel(),
	}
	s.buildWindows(notebook.Parse([]byte(nb.Content)))

	s.kernel.OnStatus(func(state string) {
		m.hub.BroadcastStatus(s.ID, state)
	})
	if err := s.kernel.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start kernel for notebook %q: %w", notebookID, err)
	}

	// Mutations from here on mark the session dirty and fan out to clients.
	s.unsubscribe = s.Registry.Subscribe(func(records []windows.Record) {
		m.hub.BroadcastWindows(s.ID, records)
		if !s.dirty.Swap(true) {
			m.hub.BroadcastDirty(s.ID, true)
		}
	})

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.hub.BroadcastWindows(s.ID, s.Registry.List())
	m.hub.BroadcastStatus(s.ID, s.kernel.State())
	slog.Info("session opened", "session_id", s.ID, "notebook_id", nb.ID)
	return s, nil
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Execute runs an editor window's content on the session kernel. Display
// items land in the linked output window (created on first run) and stream
// out through the hub.
func (m *Manager) Execute(ctx context.Context, sessionID, windowID string) error {
	s, ok := m.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	rec, ok := s.Registry.Get(windowID)
	if !ok {
		return ErrWindowNotFound
	}
	if rec.Kind != windows.KindEditor {
		return ErrNotExecutable
	}

	out, ok := s.Registry.LinkedOutput(rec.ID)
	outputID := out.ID
	if !ok {
		outputID = s.Registry.Create(windows.KindOutput, rec.Title+" output", "", rec.ID)
	} else {
		s.Registry.ClearItems(outputID)
	}

	_, err := s.kernel.Execute(ctx, rec.Content, func(item notebook.OutputItem) {
		s.Registry.AppendItem(outputID, item)
		m.hub.BroadcastOutput(sessionID, outputID, item)
	})
	m.hub.FlushPendingOutput()
	if err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}
	return nil
}

// Save maps the windows back to notebook JSON and writes it through the
// document store.
func (m *Manager) Save(ctx context.Context, sessionID string) error {
	s, ok := m.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	data, err := notebook.Serialize(s.buildDocument())
	if err != nil {
		return err
	}
	if err := m.repo.UpdateContent(ctx, s.NotebookID, string(data)); err != nil {
		return err
	}
	s.dirty.Store(false)
	m.hub.BroadcastDirty(sessionID, false)
	return nil
}

func (m *Manager) InterruptKernel(ctx context.Context, sessionID string) error {
	s, ok := m.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	return s.kernel.Interrupt(ctx)
}

func (m *Manager) RestartKernel(ctx context.Context, sessionID string) error {
	s, ok := m.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	return s.kernel.Restart(ctx)
}

// Close shuts the session's kernel down and forgets the session. Unsaved
// window state is discarded; Save is an explicit, separate call.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if err := s.kernel.Shutdown(ctx); err != nil {
		slog.Warn("kernel shutdown failed", "session_id", sessionID, "error", err)
	}
	m.hub.DropSession(sessionID)
	slog.Info("session closed", "session_id", sessionID)
	return nil
}

// CloseAll tears down every session, used on server shutdown.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.Close(ctx, id); err != nil {
			slog.Warn("failed to close session", "session_id", id, "error", err)
		}
	}
}

// HandleAction services one websocket request. Window mutations map straight
// onto registry operations and inherit their silent no-op semantics for
// unknown ids; execute and save run in the background so the client's read
// loop is never blocked on the kernel.
func (m *Manager) HandleAction(sessionID string, msg hub.ClientMessage) {
	s, ok := m.Get(sessionID)
	if !ok {
		return
	}

	switch msg.Type {
	case hub.MsgMove:
		s.Registry.SetPosition(msg.Window, msg.X, msg.Y)
	case hub.MsgResize:
		s.Registry.SetSize(msg.Window, msg.Width, msg.Height)
	case hub.MsgFront:
		s.Registry.BringToFront(msg.Window)
	case hub.MsgMinimize:
		s.Registry.ToggleMinimize(msg.Window)
	case hub.MsgCloseWin:
		s.Registry.Close(msg.Window)
	case hub.MsgSetContent:
		s.Registry.SetContent(msg.Window, msg.Content)
	case hub.MsgSetTitle:
		s.Registry.SetTitle(msg.Window, msg.Title)
	case hub.MsgNewWindow:
		kind := windows.Kind(msg.Kind)
		switch kind {
		case windows.KindEditor, windows.KindMarkdown:
			s.Registry.Create(kind, msg.Title, msg.Content, "")
		default:
			slog.Warn("rejected new window of invalid kind", "kind", msg.Kind)
		}
	case hub.MsgExecute:
		ctx := m.backgroundContext()
		go func() {
			if err := m.Execute(ctx, sessionID, msg.Window); err != nil {
				slog.Warn("execute failed", "session_id", sessionID, "window_id", msg.Window, "error", err)
			}
		}()
	case hub.MsgSave:
		ctx := m.backgroundContext()
		go func() {
			if err := m.Save(ctx, sessionID); err != nil {
				slog.Warn("save failed", "session_id", sessionID, "error", err)
			}
		}()
	}
}

func (m *Manager) backgroundContext() context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runCtx
}
