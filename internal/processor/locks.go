package processor

import "sync"

// docLocks hands out one mutex per document id so a document is owned by a
// single pipeline run at a time. Entries are never evicted; the table is
// bounded by the number of documents seen by this process.
type docLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newDocLocks() *docLocks {
	return &docLocks{locks: make(map[string]*sync.Mutex)}
}

func (d *docLocks) get(id string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l, ok := d.locks[id]; ok {
		return l
	}
	l := &sync.Mutex{}
	d.locks[id] = l
	return l
}
