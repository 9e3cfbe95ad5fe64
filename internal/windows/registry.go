package windows

import (
	"sync"

	"github.com/google/uuid"

	"github.com/user/floatlab/internal/notebook"
)

type Kind string

const (
	KindEditor   Kind = "editor"
	KindOutput   Kind = "output"
	KindMarkdown Kind = "markdown"
)

// Successive windows cascade diagonally from the origin instead of stacking
// exactly on top of each other.
const (
	cascadeStep   = 32.0
	cascadeBaseX  = 60.0
	cascadeBaseY  = 60.0
	defaultWidth  = 480.0
	defaultHeight = 320.0
)

// Record is one floating window. Output-kind records accumulate the display
// items produced by executing their linked editor window.
type Record struct {
	ID        string                `json:"id"`
	Kind      Kind                  `json:"kind"`
	Title     string                `json:"title"`
	X         float64               `json:"x"`
	Y         float64               `json:"y"`
	Width     float64               `json:"width"`
	Height    float64               `json:"height"`
	ZOrder    int                   `json:"z_order"`
	Minimized bool                  `json:"minimized"`
	Content   string                `json:"content"`
	LinkedID  string                `json:"linked_id,omitempty"`
	Items     []notebook.OutputItem `json:"items,omitempty"`
}

// Observer receives the full current window list after every mutation.
type Observer func(records []Record)

// Registry holds the authoritative window set. Mutations on unknown ids are
// silent no-ops across the board; nothing in this component fails.
type Registry struct {
	mu        sync.RWMutex
	records   map[string]*Record
	order     []string
	zCounter  int
	observers map[int]Observer
	nextObs   int
}

func NewRegistry() *Registry {
	return &Registry{
		records:   make(map[string]*Record),
		observers: make(map[int]Observer),
	}
}

// Subscribe registers an observer and returns its unsubscribe handle. The
// observer is not called for the current state; only mutations notify.
func (r *Registry) Subscribe(fn Observer) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextObs
	r.nextObs++
	r.observers[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.observers, id)
		r.mu.Unlock()
	}
}

// Create allocates a new window and returns its id. The initial position is
// offset by the live window count, and the new window lands on top.
func (r *Registry) Create(kind Kind, title, content, linkedID string) string {
	r.mu.Lock()
	n := float64(len(r.order))
	r.zCounter++
	rec := &Record{
		ID:       uuid.NewString(),
		Kind:     kind,
		Title:    title,
		X:        cascadeBaseX + cascadeStep*n,
		Y:        cascadeBaseY + cascadeStep*n,
		Width:    defaultWidth,
		Height:   defaultHeight,
		ZOrder:   r.zCounter,
		Content:  content,
		LinkedID: linkedID,
	}
	r.records[rec.ID] = rec
	r.order = append(r.order, rec.ID)
	r.mu.Unlock()

	r.notify()
	return rec.ID
}

// Restore inserts a window with explicit geometry, used when reopening a
// saved notebook. The z counter advances past the restored z so later
// bring-to-front calls stay strictly above it.
func (r *Registry) Restore(rec Record) string {
	r.mu.Lock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.ZOrder <= r.zCounter {
		r.zCounter++
		rec.ZOrder = r.zCounter
	} else {
		r.zCounter = rec.ZOrder
	}
	stored := rec
	r.records[stored.ID] = &stored
	r.order = append(r.order, stored.ID)
	r.mu.Unlock()

	r.notify()
	return stored.ID
}

// Close removes a window. Closing an editor cascades to every window linked
// to it. One notification per call regardless of cascade size.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	removed := map[string]struct{}{id: {}}
	delete(r.records, id)
	if rec.Kind == KindEditor {
		for wid, w := range r.records {
			if w.LinkedID == id {
				removed[wid] = struct{}{}
				delete(r.records, wid)
			}
		}
	}
	kept := r.order[:0]
	for _, wid := range r.order {
		if _, gone := removed[wid]; !gone {
			kept = append(kept, wid)
		}
	}
	r.order = kept
	r.mu.Unlock()

	r.notify()
}

// Clear removes every window with a single notification.
func (r *Registry) Clear() {
	r.mu.Lock()
	empty := len(r.order) == 0
	r.records = make(map[string]*Record)
	r.order = nil
	r.mu.Unlock()

	if !empty {
		r.notify()
	}
}

func (r *Registry) BringToFront(id string) {
	r.mutate(id, func(rec *Record) {
		r.zCounter++
		rec.ZOrder = r.zCounter
	})
}

func (r *Registry) ToggleMinimize(id string) {
	r.mutate(id, func(rec *Record) {
		rec.Minimized = !rec.Minimized
	})
}

func (r *Registry) SetPosition(id string, x, y float64) {
	r.mutate(id, func(rec *Record) {
		rec.X, rec.Y = x, y
	})
}

func (r *Registry) SetSize(id string, width, height float64) {
	r.mutate(id, func(rec *Record) {
		rec.Width, rec.Height = width, height
	})
}

func (r *Registry) SetContent(id, content string) {
	r.mutate(id, func(rec *Record) {
		rec.Content = content
	})
}

func (r *Registry) SetTitle(id, title string) {
	r.mutate(id, func(rec *Record) {
		rec.Title = title
	})
}

// AppendItem adds a display item to an output window.
func (r *Registry) AppendItem(id string, item notebook.OutputItem) {
	r.mutate(id, func(rec *Record) {
		rec.Items = append(rec.Items, item)
	})
}

// ClearItems drops an output window's accumulated items, done before
// re-executing its linked editor.
func (r *Registry) ClearItems(id string) {
	r.mutate(id, func(rec *Record) {
		rec.Items = nil
	})
}

func (r *Registry) mutate(id string, fn func(rec *Record)) {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	fn(rec)
	r.mu.Unlock()

	r.notify()
}

// Get returns a copy of the window, with ok false when the id is unknown.
func (r *Registry) Get(id string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return Record{}, false
	}
	return cloneRecord(rec), true
}

// List returns copies of all windows in insertion order.
func (r *Registry) List() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// LinkedOutput finds the output window whose LinkedID points at the given
// editor, if one exists.
func (r *Registry) LinkedOutput(editorID string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		rec := r.records[id]
		if rec.Kind == KindOutput && rec.LinkedID == editorID {
			return cloneRecord(rec), true
		}
	}
	return Record{}, false
}

func (r *Registry) snapshotLocked() []Record {
	out := make([]Record, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, cloneRecord(r.records[id]))
	}
	return out
}

func cloneRecord(rec *Record) Record {
	c := *rec
	if rec.Items != nil {
		c.Items = make([]notebook.OutputItem, len(rec.Items))
		copy(c.Items, rec.Items)
	}
	return c
}

// notify snapshots outside the write path so observers can call back into
// the registry without deadlocking.
func (r *Registry) notify() {
	r.mu.RLock()
	records := r.snapshotLocked()
	observers := make([]Observer, 0, len(r.observers))
	for _, fn := range r.observers {
		observers = append(observers, fn)
	}
	r.mu.RUnlock()

	for _, fn := range observers {
		fn(records)
	}
}
