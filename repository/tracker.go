package repository

import (
	"bytes"
	"slices"
	"sync"

	"github.com/goccy/go-json"
)

// tracker is the identity map of one repository instance together with the
// dirty-check snapshots of documents loaded from the store.
//
// Every identity in snapshots is also in items. Documents registered as new
// have no snapshot until their first save.
type tracker[P Document] struct {
	mu        sync.Mutex
	order     []string
	items     map[string]P
	snapshots map[string][]byte
}

func newTracker[P Document]() *tracker[P] {
	return &tracker[P]{
		items:     make(map[string]P),
		snapshots: make(map[string][]byte),
	}
}

// encode is the dirty-check serialization. Struct fields are written
// in declaration order and map keys sorted, so equal states encode equally.
func encode(doc Document) ([]byte, error) {
	return json.Marshal(doc)
}

// register upserts doc by identity. Existing loads get a snapshot unless one
// is already held for that identity.
func (t *tracker[P]) register(doc P, existing bool) {
	id := doc.GetID()

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.items[id]; !ok {
		t.order = append(t.order, id)
	}
	t.items[id] = doc

	if !existing {
		return
	}
	if _, ok := t.snapshots[id]; ok {
		return
	}
	// An unencodable document gets no snapshot and is therefore always dirty.
	if data, err := encode(doc); err == nil {
		t.snapshots[id] = data
	}
}

// remove drops id from the identity map together with its snapshot.
func (t *tracker[P]) remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.items[id]; !ok {
		return
	}
	delete(t.items, id)
	delete(t.snapshots, id)
	if i := slices.Index(t.order, id); i >= 0 {
		t.order = slices.Delete(t.order, i, i+1)
	}
}

// get returns the tracked instance for id.
func (t *tracker[P]) get(id string) (P, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	doc, ok := t.items[id]
	return doc, ok
}

// list returns the tracked documents in registration order. The slice is a
// copy; later map mutations do not affect it.
func (t *tracker[P]) list() []P {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]P, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.items[id])
	}
	return out
}

// changed reports whether doc differs from its snapshot. Documents without a
// snapshot are always changed.
func (t *tracker[P]) changed(doc P) bool {
	t.mu.Lock()
	snap, ok := t.snapshots[doc.GetID()]
	t.mu.Unlock()
	if !ok {
		return true
	}
	current, err := encode(doc)
	if err != nil {
		return true
	}
	return !bytes.Equal(current, snap)
}

// capture replaces the snapshot of a tracked document with its current state.
func (t *tracker[P]) capture(doc P) error {
	data, err := encode(doc)
	if err != nil {
		return err
	}
	id := doc.GetID()

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.items[id]; ok {
		t.snapshots[id] = data
	}
	return nil
}

// hasSnapshot reports whether id has a dirty-check baseline.
func (t *tracker[P]) hasSnapshot(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.snapshots[id]
	return ok
}

// clearSnapshots drops every baseline so all tracked documents are dirty.
func (t *tracker[P]) clearSnapshots() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.snapshots)
}

// reset empties the identity map.
func (t *tracker[P]) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.order = nil
	clear(t.items)
	clear(t.snapshots)
}

// counts returns the number of tracked documents and snapshots.
func (t *tracker[P]) counts() (items, snapshots int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items), len(t.snapshots)
}
