package filtering

import (
	"sort"
	"sync"
)

// Holder owns the current filter configuration and notifies subscribers
// whenever it is replaced.
type Holder struct {
	mu     sync.RWMutex
	info   *Info
	nextID int
	subs   map[int]func(*Info)
}

func NewHolder() *Holder {
	return &Holder{info: &Info{}, subs: make(map[int]func(*Info))}
}

// Info returns the current configuration. Callers must not modify it.
func (h *Holder) Info() *Info {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.info
}

// Set validates info and replaces the current configuration wholesale.
// Invalid input leaves the previous configuration in place.
func (h *Holder) Set(info Info) error {
	if err := info.Validate(); err != nil {
		return err
	}
	next := info.Clone()

	h.mu.Lock()
	h.info = next
	ids := make([]int, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(*Info), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, h.subs[id])
	}
	h.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return nil
}

// Subscribe registers fn to be called with each new configuration, in
// registration order, on the goroutine calling Set. The returned function
// removes the subscription.
func (h *Holder) Subscribe(fn func(*Info)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}
