package services

import "sync"

// dedupSet is the bounded processed-message window: a map for O(1)
// membership plus an insertion-ordered slice for eviction. When the
// set grows past its cap the oldest half is evicted, which bounds
// memory under sustained traffic while still absorbing the brief
// re-delivery duplicates mail servers produce.
type dedupSet struct {
	mu      sync.Mutex
	max     int
	members map[string]struct{}
	order   []string
}

func newDedupSet(max int) *dedupSet {
	return &dedupSet{
		max:     max,
		members: make(map[string]struct{}),
	}
}

func (d *dedupSet) Contains(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.members[id]
	return ok
}

func (d *dedupSet) Add(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.members[id]; ok {
		return
	}
	d.members[id] = struct{}{}
	d.order = append(d.order, id)

	if len(d.order) > d.max {
		cut := len(d.order) / 2
		for _, old := range d.order[:cut] {
			delete(d.members, old)
		}
		d.order = append([]string(nil), d.order[cut:]...)
	}
}

func (d *dedupSet) Remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.members[id]; !ok {
		return
	}
	delete(d.members, id)
	for i, v := range d.order {
		if v == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

func (d *dedupSet) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.order)
}
