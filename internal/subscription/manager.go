package subscription

import (
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/jpalmerr/missioncontrol/internal/docstore"
)

// Manager shares remote listeners between handles.
//
// There is one channel per collection name. The first handle to ask for a
// name opens the remote listener; later handles join it and are primed with
// the latest snapshot. When the last handle leaves, the listener is closed.
// A channel whose listener failed is retired: it delivers nothing more and
// the next acquire for that name opens a fresh listener.
type Manager struct {
	service docstore.Service
	logger  *slog.Logger

	mu        sync.Mutex
	channels  map[string]*channel
	listening int
}

// channel is the shared state behind one remote listener. All fields are
// guarded by Manager.mu.
type channel struct {
	name     string
	handles  map[*Handle]struct{}
	closeFn  func()
	retired  bool
	version  uint64
	received bool
	docs     []docstore.Document
}

// update is one state change pushed to a handle. Versions increase per
// channel so a handle can drop an update it has already moved past.
type update struct {
	version uint64
	docs    []docstore.Document
	err     error
}

// ManagerOption configures a [Manager].
type ManagerOption func(*Manager)

// WithLogger sets the manager's logger. Handles created through the
// manager's stores log callback panics here too.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a manager on top of a document service.
func NewManager(service docstore.Service, opts ...ManagerOption) *Manager {
	m := &Manager{
		service:  service,
		logger:   slog.Default(),
		channels: make(map[string]*channel),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Listening returns the number of remote listeners currently open.
func (m *Manager) Listening() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listening
}

// Collections returns the names with a live channel, sorted.
func (m *Manager) Collections() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// acquire attaches h to the channel for name, opening the remote listener
// if none is live.
func (m *Manager) acquire(name string, h *Handle) {
	m.mu.Lock()
	if ch, ok := m.channels[name]; ok && !ch.retired {
		ch.handles[h] = struct{}{}
		h.ch = ch
		var prime *update
		if ch.received {
			prime = &update{version: ch.version, docs: ch.docs}
		}
		m.mu.Unlock()

		if prime != nil {
			go h.deliver(*prime)
		}
		return
	}

	ch := &channel{
		name:    name,
		handles: map[*Handle]struct{}{h: {}},
	}
	h.ch = ch
	m.channels[name] = ch
	m.mu.Unlock()

	// opening may dial the network, so it happens outside the lock
	closeFn, err := m.service.OpenListener(name,
		func(docs []docstore.Document) { m.onSnapshot(ch, docs) },
		func(err error) { m.onError(ch, err) },
	)

	m.mu.Lock()
	if err != nil {
		m.logger.Warn("failed to open listener", "collection", name, "error", err)
		u := m.failLocked(ch, err)
		handles := handleList(ch)
		m.mu.Unlock()
		for _, h := range handles {
			go h.deliver(u)
		}
		return
	}

	m.listening++
	var once sync.Once
	ch.closeFn = func() {
		once.Do(func() {
			closeFn()
			m.mu.Lock()
			m.listening--
			m.mu.Unlock()
			m.logger.Debug("listener closed", "collection", name)
		})
	}
	// everyone left, or the listener failed, while it was opening
	orphaned := ch.retired || len(ch.handles) == 0
	if orphaned {
		m.retireLocked(ch)
	}
	m.mu.Unlock()

	if orphaned {
		ch.closeFn()
		return
	}
	m.logger.Debug("listener opened", "collection", name)
}

// release detaches h. The last handle out closes the listener.
func (m *Manager) release(h *Handle) {
	m.mu.Lock()
	ch := h.ch
	if ch == nil {
		m.mu.Unlock()
		return
	}
	if _, ok := ch.handles[h]; !ok {
		m.mu.Unlock()
		return
	}
	delete(ch.handles, h)
	if len(ch.handles) > 0 || ch.retired {
		m.mu.Unlock()
		return
	}
	m.retireLocked(ch)
	closeFn := ch.closeFn
	m.mu.Unlock()

	// nil while the listener is still opening; acquire closes it then
	if closeFn != nil {
		closeFn()
	}
}

func (m *Manager) onSnapshot(ch *channel, docs []docstore.Document) {
	if docs == nil {
		docs = []docstore.Document{}
	} else {
		docs = slices.Clip(slices.Clone(docs))
	}

	m.mu.Lock()
	if ch.retired {
		m.mu.Unlock()
		return
	}
	ch.version++
	ch.docs = docs
	ch.received = true
	u := update{version: ch.version, docs: docs}
	handles := handleList(ch)
	m.mu.Unlock()

	m.logger.Debug("snapshot received", "collection", ch.name, "documents", len(docs), "handles", len(handles))
	for _, h := range handles {
		h.deliver(u)
	}
}

func (m *Manager) onError(ch *channel, err error) {
	m.mu.Lock()
	if ch.retired {
		m.mu.Unlock()
		return
	}
	u := m.failLocked(ch, err)
	closeFn := ch.closeFn
	handles := handleList(ch)
	m.mu.Unlock()

	m.logger.Warn("listener failed", "collection", ch.name, "error", err)
	if closeFn != nil {
		closeFn()
	}
	for _, h := range handles {
		h.deliver(u)
	}
}

// failLocked retires ch and builds the error update for its handles.
func (m *Manager) failLocked(ch *channel, err error) update {
	m.retireLocked(ch)
	ch.version++
	return update{
		version: ch.version,
		err:     &TransportError{Collection: ch.name, Err: err},
	}
}

func (m *Manager) retireLocked(ch *channel) {
	ch.retired = true
	if cur, ok := m.channels[ch.name]; ok && cur == ch {
		delete(m.channels, ch.name)
	}
}

func handleList(ch *channel) []*Handle {
	handles := make([]*Handle, 0, len(ch.handles))
	for h := range ch.handles {
		handles = append(handles, h)
	}
	return handles
}
