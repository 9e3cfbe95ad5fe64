package hub

import (
	"sync"
	"time"

	"github.com/user/floatlab/internal/notebook"
)

// OutputBatcher coalesces kernel display items per output window so a chatty
// execution does not produce one websocket frame per stream write. Adjacent
// stream items merge into one; everything else is kept as-is in order.
type OutputBatcher struct {
	mu       sync.Mutex
	pending  map[batchKey]*pendingItems
	interval time.Duration
	onFlush  func(sessionID, windowID string, items []notebook.OutputItem)
}

type batchKey struct {
	sessionID string
	windowID  string
}

type pendingItems struct {
	items []notebook.OutputItem
	timer *time.Timer
}

func NewOutputBatcher(interval time.Duration, onFlush func(sessionID, windowID string, items []notebook.OutputItem)) *OutputBatcher {
	return &OutputBatcher{
		pending:  make(map[batchKey]*pendingItems),
		interval: interval,
		onFlush:  onFlush,
	}
}

func (b *OutputBatcher) Add(sessionID, windowID string, item notebook.OutputItem) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := batchKey{sessionID: sessionID, windowID: windowID}
	p, exists := b.pending[key]
	if !exists {
		p = &pendingItems{}
		b.pending[key] = p
	}

	if n := len(p.items); n > 0 && item.Type == notebook.ItemStream && p.items[n-1].Type == notebook.ItemStream {
		p.items[n-1].Text += item.Text
	} else {
		p.items = append(p.items, item)
	}

	if p.timer == nil {
		p.timer = time.AfterFunc(b.interval, func() {
			b.flush(key)
		})
	}
}

func (b *OutputBatcher) flush(key batchKey) {
	b.mu.Lock()
	p, exists := b.pending[key]
	if !exists {
		b.mu.Unlock()
		return
	}
	delete(b.pending, key)
	b.mu.Unlock()

	if b.onFlush != nil && len(p.items) > 0 {
		b.onFlush(key.sessionID, key.windowID, p.items)
	}
}

func (b *OutputBatcher) FlushAll() {
	b.mu.Lock()
	keys := make([]batchKey, 0, len(b.pending))
	for key := range b.pending {
		keys = append(keys, key)
	}
	b.mu.Unlock()

	for _, key := range keys {
		b.flush(key)
	}
}
