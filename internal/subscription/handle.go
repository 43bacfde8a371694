package subscription

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/jpalmerr/missioncontrol/internal/docstore"
)

// State is the lifecycle state of a [Handle].
type State int

const (
	// Loading means no snapshot and no error has arrived yet.
	Loading State = iota
	// Ready means at least one snapshot arrived and the listener is healthy.
	Ready
	// Errored means the listener failed. Documents received before the
	// failure are kept.
	Errored
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Errored:
		return "errored"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// View is a consistent copy of a handle's state.
//
// Documents is the handle's own copy of the latest snapshot list, never nil
// and never modified after it is handed out. Document fields are shared
// between handles and must be treated as read-only.
type View struct {
	Collection string
	State      State
	Documents  []docstore.Document
	Err        error
	// Received reports whether any snapshot arrived.
	Received bool
}

// Stale reports errored-with-data: the documents may be out of date.
func (v View) Stale() bool {
	return v.State == Errored && v.Received
}

// Unavailable reports errored-without-data.
func (v View) Unavailable() bool {
	return v.State == Errored && !v.Received
}

// Handle is one caller's subscription to a collection.
type Handle struct {
	name     string
	store    *Store
	onChange func(View)
	logger   *slog.Logger

	// ch is set by Manager.acquire and read under Manager.mu.
	ch *channel

	// deliverMu serializes change callbacks for this handle.
	deliverMu sync.Mutex

	mu       sync.Mutex
	state    State
	docs     []docstore.Document
	err      error
	received bool
	version  uint64
	closed   bool

	settled    chan struct{}
	settleOnce sync.Once
	done       chan struct{}
}

func newHandle(name string, s *Store, onChange func(View), logger *slog.Logger) *Handle {
	return &Handle{
		name:     name,
		store:    s,
		onChange: onChange,
		logger:   logger,
		docs:     []docstore.Document{},
		settled:  make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Collection returns the subscribed collection name. It stays valid after
// unsubscribe.
func (h *Handle) Collection() string {
	return h.name
}

// View returns the current state, or [ErrInvalidHandle] after unsubscribe.
func (h *Handle) View() (View, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return View{}, invalidHandle("View")
	}
	return h.viewLocked(), nil
}

// Current returns the latest document list, empty while loading.
// It panics after unsubscribe.
func (h *Handle) Current() []docstore.Document {
	return h.mustView("Current").Documents
}

// IsLoading reports whether the handle is still waiting for its first
// snapshot or error. It panics after unsubscribe.
func (h *Handle) IsLoading() bool {
	return h.mustView("IsLoading").State == Loading
}

// LastError returns the transport error, if any. It panics after unsubscribe.
func (h *Handle) LastError() error {
	return h.mustView("LastError").Err
}

// State returns the lifecycle state. It panics after unsubscribe.
func (h *Handle) State() State {
	return h.mustView("State").State
}

// Unsubscribe detaches the handle. It is idempotent and may be called from
// inside the change callback. After it returns no new change callback starts
// (one already running may finish) and every accessor except Collection
// panics.
func (h *Handle) Unsubscribe() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.done)
	h.mu.Unlock()

	h.store.manager.release(h)
	h.store.forget(h)
}

func (h *Handle) mustView(method string) View {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		panic(invalidHandle(method))
	}
	return h.viewLocked()
}

func (h *Handle) viewLocked() View {
	return View{
		Collection: h.name,
		State:      h.state,
		Documents:  h.docs,
		Err:        h.err,
		Received:   h.received,
	}
}

// deliver applies u and runs the change callback.
func (h *Handle) deliver(u update) {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()

	h.mu.Lock()
	if h.closed || u.version <= h.version {
		h.mu.Unlock()
		return
	}
	h.version = u.version
	if u.err != nil {
		h.state = Errored
		h.err = u.err
	} else {
		h.state = Ready
		// each handle owns its list so a caller writing to one cannot
		// reach another handle on the same listener
		h.docs = slices.Clone(u.docs)
		if h.docs == nil {
			h.docs = []docstore.Document{}
		}
		h.received = true
	}
	v := h.viewLocked()
	h.mu.Unlock()

	h.settleOnce.Do(func() { close(h.settled) })

	if h.onChange != nil {
		h.notify(v)
	}
}

// notify runs the callback with panic recovery so one broken view cannot
// take down the listener goroutine shared with other handles.
func (h *Handle) notify(v View) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			h.logger.Error("change callback panic",
				"correlation_id", correlationID,
				"collection", h.name,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	h.onChange(v)
}
