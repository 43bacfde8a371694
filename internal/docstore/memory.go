package docstore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// journal persists committed writes. A journal error aborts the write.
type journal interface {
	put(collection string, seq uint64, doc Document) error
	remove(collection, id string) error
}

// entry is a stored document with its creation sequence number.
type entry struct {
	seq uint64
	doc Document
}

// collection holds the documents of one collection in creation order.
type collection struct {
	entries map[string]entry
	order   []string
}

// MemoryStore is an in-process implementation of [Service].
//
// Every write rebuilds the full snapshot of the affected collection and hands
// it to each open listener. Listeners run on their own goroutine, so a slow
// listener never blocks writers: if it falls behind, intermediate snapshots
// are replaced by the newest one before delivery. Snapshot order for a single
// listener always follows write order.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]*collection
	listeners   map[string]map[*listener]struct{}
	seq         uint64
	closed      bool
	journal     journal
	now         func() time.Time
}

// NewMemoryStore creates an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*collection),
		listeners:   make(map[string]map[*listener]struct{}),
		now:         time.Now,
	}
}

// OpenListener implements [Service].
func (m *MemoryStore) OpenListener(name string, onSnapshot func([]Document), onError func(error)) (func(), error) {
	if err := ValidateCollection(name); err != nil {
		return nil, err
	}
	if onSnapshot == nil {
		return nil, fmt.Errorf("docstore: listener for %q needs a snapshot callback", name)
	}

	l := newListener(onSnapshot, onError)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	set, ok := m.listeners[name]
	if !ok {
		set = make(map[*listener]struct{})
		m.listeners[name] = set
	}
	set[l] = struct{}{}
	l.push(m.snapshotLocked(name))
	m.mu.Unlock()

	go l.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if set, ok := m.listeners[name]; ok {
				delete(set, l)
				if len(set) == 0 {
					delete(m.listeners, name)
				}
			}
			m.mu.Unlock()
			l.stop()
		})
	}, nil
}

// WriteDocument implements [Service].
func (m *MemoryStore) WriteDocument(ctx context.Context, name, id string, patch map[string]any, merge bool) error {
	if err := ValidateCollection(name); err != nil {
		return err
	}
	if err := ValidateDocumentID(id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	c := m.collectionLocked(name)
	stamp := m.now().UTC().Format(time.RFC3339Nano)

	prev, exists := c.entries[id]
	var fields map[string]any
	if merge && exists {
		fields = mergeFields(prev.doc.Fields, patch, stamp)
	} else {
		fields = mergeFields(nil, patch, stamp)
	}

	e := entry{seq: prev.seq, doc: Document{ID: id, Fields: fields}}
	if !exists {
		m.seq++
		e.seq = m.seq
	}

	if m.journal != nil {
		if err := m.journal.put(name, e.seq, e.doc); err != nil {
			return fmt.Errorf("persist %s/%s: %w", name, id, err)
		}
	}

	c.entries[id] = e
	if !exists {
		c.order = append(c.order, id)
	}
	m.publishLocked(name)
	return nil
}

// DeleteDocument removes one document. Deleting a missing document is a no-op.
func (m *MemoryStore) DeleteDocument(ctx context.Context, name, id string) error {
	if err := ValidateCollection(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	c, ok := m.collections[name]
	if !ok {
		return nil
	}
	if _, ok := c.entries[id]; !ok {
		return nil
	}

	if m.journal != nil {
		if err := m.journal.remove(name, id); err != nil {
			return fmt.Errorf("persist delete %s/%s: %w", name, id, err)
		}
	}

	delete(c.entries, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			break
		}
	}
	m.publishLocked(name)
	return nil
}

// Get returns one document.
func (m *MemoryStore) Get(name, id string) (Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[name]
	if !ok {
		return Document{}, false
	}
	e, ok := c.entries[id]
	return e.doc, ok
}

// Close fails every open listener with [ErrClosed] and rejects further use.
// Safe to call multiple times.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	for name, set := range m.listeners {
		for l := range set {
			l.fail(ErrClosed)
		}
		delete(m.listeners, name)
	}
	return nil
}

// load inserts a persisted document without publishing or journaling.
func (m *MemoryStore) load(name string, seq uint64, doc Document) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.collectionLocked(name)
	if _, exists := c.entries[doc.ID]; !exists {
		c.order = append(c.order, doc.ID)
	}
	c.entries[doc.ID] = entry{seq: seq, doc: doc}
	if seq > m.seq {
		m.seq = seq
	}
}

func (m *MemoryStore) collectionLocked(name string) *collection {
	c, ok := m.collections[name]
	if !ok {
		c = &collection{entries: make(map[string]entry)}
		m.collections[name] = c
	}
	return c
}

// snapshotLocked builds a fresh slice; document maps are shared because
// they are never mutated after a write commits.
func (m *MemoryStore) snapshotLocked(name string) []Document {
	c, ok := m.collections[name]
	if !ok {
		return []Document{}
	}
	docs := make([]Document, 0, len(c.order))
	for _, id := range c.order {
		docs = append(docs, c.entries[id].doc)
	}
	return docs
}

// publishLocked must run under m.mu so concurrent writes reach every
// listener in commit order.
func (m *MemoryStore) publishLocked(name string) {
	set := m.listeners[name]
	if len(set) == 0 {
		return
	}
	snap := m.snapshotLocked(name)
	for l := range set {
		l.push(snap)
	}
}

// listener delivers snapshots for one OpenListener call on its own goroutine.
type listener struct {
	onSnapshot func([]Document)
	onError    func(error)

	mu      sync.Mutex
	pending []Document
	hasSnap bool
	err     error
	stopped bool

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func newListener(onSnapshot func([]Document), onError func(error)) *listener {
	return &listener{
		onSnapshot: onSnapshot,
		onError:    onError,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// push replaces any undelivered snapshot with snap.
func (l *listener) push(snap []Document) {
	l.mu.Lock()
	l.pending = snap
	l.hasSnap = true
	l.mu.Unlock()
	l.signal()
}

// fail queues a terminal error after any pending snapshot.
func (l *listener) fail(err error) {
	l.mu.Lock()
	if l.err == nil {
		l.err = err
	}
	l.mu.Unlock()
	l.signal()
}

func (l *listener) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// stop ends delivery. It does not wait for the goroutine, so it is safe to
// call from inside a callback.
func (l *listener) stop() {
	l.once.Do(func() {
		l.mu.Lock()
		l.stopped = true
		l.mu.Unlock()
		close(l.done)
	})
}

func (l *listener) run() {
	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
		}

		l.mu.Lock()
		if l.stopped {
			l.mu.Unlock()
			return
		}
		snap, hasSnap, err := l.pending, l.hasSnap, l.err
		l.pending, l.hasSnap = nil, false
		l.mu.Unlock()

		if hasSnap {
			l.onSnapshot(snap)
		}
		if err != nil {
			if l.onError != nil {
				l.onError(err)
			}
			l.stop()
			return
		}
	}
}
