// Package changefeed delivers table change notifications across API instances.
package changefeed

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/firststep/core"
)

var errUnknownTable = errors.New("unknown table")

type subscriber struct {
	id uint64
	fn func()
}

// hub dispatches a notification to the local subscribers of its table.
// Every driver feeds the notifications it receives into one.
type hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscriber
}

func newHub() *hub {
	return &hub{subs: make(map[string][]subscriber)}
}

func (h *hub) subscribe(ctx context.Context, table string, fn func()) (func(), error) {
	if !core.IsFeedTable(table) {
		return nil, errors.Wrap(errUnknownTable, table)
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[table] = append(h.subs[table], subscriber{id: id, fn: fn})
	h.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() { h.remove(table, id) })
	}
	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			unsubscribe()
		}()
	}
	return unsubscribe, nil
}

func (h *hub) remove(table string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subs[table]
	for i, s := range subs {
		if s.id == id {
			h.subs[table] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// dispatch calls, in subscription order, every callback registered for table.
func (h *hub) dispatch(table string) {
	h.mu.RLock()
	subs := make([]subscriber, len(h.subs[table]))
	copy(subs, h.subs[table])
	h.mu.RUnlock()

	for _, s := range subs {
		s.fn()
	}
}

// dispatchAll notifies every subscriber, used when notifications may have been missed.
func (h *hub) dispatchAll() {
	for _, table := range core.FeedTables {
		h.dispatch(table)
	}
}

func (h *hub) clear() {
	h.mu.Lock()
	h.subs = make(map[string][]subscriber)
	h.mu.Unlock()
}

func (h *hub) count(table string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[table])
}
