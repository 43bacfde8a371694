package board

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jpalmerr/missioncontrol/internal/dispatch"
	"github.com/jpalmerr/missioncontrol/internal/docstore"
	"github.com/jpalmerr/missioncontrol/internal/subscription"
	"github.com/jpalmerr/missioncontrol/internal/view"
)

// Collections the board follows besides System_Status and config.
const (
	LedgerCollection = "ledger"
	AgentsCollection = "Active_Agents"
)

// DefaultDailyLimit is the burn limit used when none is configured.
const DefaultDailyLimit = 10.00

// subscriberBuffer is the per-subscriber channel size. A subscriber whose
// buffer is full misses updates until it catches up.
const subscriberBuffer = 100

// ErrClosed is returned by [Board.Open] after [Board.Close].
var ErrClosed = errors.New("board: closed")

// Summary is every dashboard widget computed from one set of views.
type Summary struct {
	Title        string                       `json:"title"`
	Burn         view.Burn                    `json:"burn"`
	Systems      []view.System                `json:"systems"`
	Agents       []view.Agent                 `json:"agents"`
	Thermal      view.Temperature             `json:"thermal"`
	Frozen       bool                         `json:"frozen"`
	ScrapeActive bool                         `json:"scrape_active"`
	Protocol     dispatch.Protocol            `json:"protocol"`
	NextCycle    time.Time                    `json:"next_cycle"`
	Countdown    string                       `json:"countdown"`
	Availability map[string]view.Availability `json:"availability"`
	Errors       map[string]string            `json:"errors,omitempty"`
	UpdatedAt    time.Time                    `json:"updated_at"`
}

// Board holds the dashboard's subscriptions and recomputes a [Summary]
// whenever one of them changes.
//
// Summaries are fanned out to subscribers on buffered channels. Sends are
// non-blocking, so a slow subscriber never holds up the listeners.
type Board struct {
	store      *subscription.Store
	title      string
	dailyLimit float64
	systems    []string
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.RWMutex
	views   map[string]subscription.View
	summary Summary
	closed  bool

	subMu       sync.RWMutex
	subscribers map[chan Summary]struct{}
}

// Option configures a [Board].
type Option func(*Board)

// WithTitle sets the title carried in every summary.
func WithTitle(title string) Option {
	return func(b *Board) {
		b.title = title
	}
}

// WithDailyLimit sets the burn limit. Non-positive values are ignored.
func WithDailyLimit(limit float64) Option {
	return func(b *Board) {
		if limit > 0 {
			b.dailyLimit = limit
		}
	}
}

// WithSystems sets the status cards shown, in order.
func WithSystems(ids ...string) Option {
	return func(b *Board) {
		if len(ids) > 0 {
			b.systems = append([]string(nil), ids...)
		}
	}
}

// WithLogger sets the board's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Board) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Board) {
		if now != nil {
			b.now = now
		}
	}
}

// New creates a board that subscribes through its own store on m.
// Nothing is subscribed until [Board.Open].
func New(m *subscription.Manager, opts ...Option) *Board {
	b := &Board{
		store:       m.NewStore(),
		title:       "Mission Control",
		dailyLimit:  DefaultDailyLimit,
		systems:     append([]string(nil), view.DefaultSystems...),
		logger:      slog.Default(),
		now:         time.Now,
		views:       make(map[string]subscription.View),
		subscribers: make(map[chan Summary]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.summary = b.compute()
	return b
}

// Collections lists what the board subscribes to.
func Collections() []string {
	return []string{dispatch.StatusCollection, LedgerCollection, AgentsCollection, dispatch.ConfigCollection}
}

// Open subscribes to every board collection. Calling it again resubscribes,
// which reuses the shared listeners.
func (b *Board) Open() error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	for _, name := range Collections() {
		if _, err := b.store.Subscribe(name, b.onChange); err != nil {
			return fmt.Errorf("subscribe %s: %w", name, err)
		}
	}
	b.logger.Info("board subscribed", "collections", Collections())
	return nil
}

// Close unsubscribes everything and closes all subscriber channels.
// Safe to call multiple times.
func (b *Board) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.store.Close()

	b.subMu.Lock()
	for ch := range b.subscribers {
		delete(b.subscribers, ch)
		close(ch)
	}
	b.subMu.Unlock()
}

// Summary returns the latest summary with a fresh countdown.
func (b *Board) Summary() Summary {
	b.mu.RLock()
	s := b.summary
	b.mu.RUnlock()
	s.Countdown = view.FormatCountdown(s.NextCycle.Sub(b.now()))
	return s
}

// View returns the latest view of one board collection.
func (b *Board) View(collection string) (subscription.View, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.views[collection]
	return v, ok
}

// Protocol returns the current orange protocol switches.
func (b *Board) Protocol() dispatch.Protocol {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(dispatch.Protocol, len(b.summary.Protocol))
	for k, v := range b.summary.Protocol {
		out[k] = v
	}
	return out
}

// Subscribe returns a channel receiving every new summary.
//
// Caller must call [Board.Unsubscribe] when done.
func (b *Board) Subscribe() <-chan Summary {
	ch := make(chan Summary, subscriberBuffer)

	b.subMu.Lock()
	b.subscribers[ch] = struct{}{}
	b.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// multiple times or with an unknown channel.
func (b *Board) Unsubscribe(ch <-chan Summary) {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	for subCh := range b.subscribers {
		if subCh == ch {
			delete(b.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

func (b *Board) onChange(v subscription.View) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.views[v.Collection] = v
	s := b.compute()
	b.summary = s
	b.mu.Unlock()

	b.logger.Debug("board updated",
		"collection", v.Collection,
		"state", v.State.String(),
		"documents", len(v.Documents),
	)

	s.Countdown = view.FormatCountdown(s.NextCycle.Sub(s.UpdatedAt))
	b.notifySubscribers(s)
}

// compute derives every widget from the current views. Collections with
// no view yet count as loading and empty. Callers hold b.mu, except New.
func (b *Board) compute() Summary {
	now := b.now()
	docs := func(name string) []docstore.Document {
		return b.views[name].Documents
	}
	status := docs(dispatch.StatusCollection)
	reduceOpts := []view.Option{view.WithLogger(b.logger)}

	s := Summary{
		Title:        b.title,
		Burn:         view.DailyBurn(docs(LedgerCollection), b.dailyLimit, reduceOpts...),
		Systems:      view.Systems(status, b.systems),
		Agents:       view.Agents(docs(AgentsCollection)),
		Thermal:      view.Thermal(status),
		Frozen:       view.Frozen(status),
		ScrapeActive: view.ScrapeActive(status),
		Protocol:     dispatch.DefaultProtocol(),
		NextCycle:    view.NextCycle(status, now),
		Availability: make(map[string]view.Availability, len(Collections())),
		UpdatedAt:    now,
	}
	if d, ok := view.FindByID(docs(dispatch.ConfigCollection), dispatch.ProtocolDocument); ok {
		s.Protocol = dispatch.ProtocolFrom(d.Fields)
	}

	for _, name := range Collections() {
		v, ok := b.views[name]
		if !ok {
			s.Availability[name] = view.AvailabilityLoading
			continue
		}
		s.Availability[name] = view.AvailabilityOf(v)
		if v.Err != nil {
			if s.Errors == nil {
				s.Errors = make(map[string]string)
			}
			s.Errors[name] = v.Err.Error()
		}
	}
	return s
}

// notifySubscribers is non-blocking: a full subscriber buffer drops the
// summary for that subscriber.
func (b *Board) notifySubscribers(s Summary) {
	b.subMu.RLock()
	defer b.subMu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- s:
		default:
		}
	}
}
