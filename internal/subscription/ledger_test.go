package subscription_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpalmerr/missioncontrol/internal/dispatch"
	"github.com/jpalmerr/missioncontrol/internal/docstore"
	"github.com/jpalmerr/missioncontrol/internal/subscription"
	"github.com/jpalmerr/missioncontrol/internal/view"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sum(docs []docstore.Document) float64 {
	return view.Reduce(docs, 0, view.SumField("amount"), view.WithLogger(discard())).Value
}

// TestLedgerScenario follows one ledger subscription through two snapshots
// and an unsubscribe against the in-process store.
func TestLedgerScenario(t *testing.T) {
	ms := docstore.NewMemoryStore()
	defer ms.Close()
	ctx := context.Background()

	m := subscription.NewManager(ms, subscription.WithLogger(discard()))
	s := m.NewStore()
	defer s.Close()

	views := make(chan subscription.View, 16)
	h, err := s.Subscribe("ledger", func(v subscription.View) { views <- v })
	require.NoError(t, err)

	waitFor := func(n int) subscription.View {
		t.Helper()
		for {
			select {
			case v := <-views:
				if len(v.Documents) == n {
					return v
				}
			case <-time.After(time.Second):
				t.Fatalf("timed out waiting for %d documents", n)
			}
		}
	}

	require.NoError(t, ms.WriteDocument(ctx, "ledger", "a", map[string]any{"amount": 3.5}, true))
	waitFor(1)
	assert.Equal(t, 3.5, sum(h.Current()))

	require.NoError(t, ms.WriteDocument(ctx, "ledger", "b", map[string]any{"amount": 4.0}, true))
	waitFor(2)
	kept := h.Current()
	assert.Equal(t, 7.5, sum(kept))

	h.Unsubscribe()
	require.NoError(t, ms.WriteDocument(ctx, "ledger", "c", map[string]any{"amount": 100.0}, true))
	time.Sleep(20 * time.Millisecond)

	assert.Len(t, kept, 2)
	assert.Equal(t, 7.5, sum(kept), "a stored list is frozen at unsubscribe")
	assert.Empty(t, views, "no view delivered after unsubscribe")
	assert.Equal(t, 0, m.Listening())
}

// TestDispatchDoesNotTouchHandles checks that an acknowledged write changes
// nothing on a handle until the listener delivers it.
func TestDispatchDoesNotTouchHandles(t *testing.T) {
	ms := docstore.NewMemoryStore()
	defer ms.Close()
	ctx := context.Background()

	m := subscription.NewManager(ms, subscription.WithLogger(discard()))
	s := m.NewStore()
	defer s.Close()

	h, err := s.Subscribe("System_Status", nil)
	require.NoError(t, err)
	_, err = subscription.Await(ctx, h)
	require.NoError(t, err)
	before := h.Current()

	// a writer that acknowledges without committing anything
	d := dispatch.New(dispatch.WriterFunc(func(context.Context, string, string, map[string]any, bool) error {
		return nil
	}), dispatch.WithLogger(discard()))

	ack := d.Dispatch(ctx, "System_Status", "control", map[string]any{"RCIA_SCRAPE": true})
	require.True(t, ack.OK())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, h.Current())
	assert.Empty(t, h.Current())

	// the real store write reaches the handle only through the listener
	ack = dispatch.New(ms, dispatch.WithLogger(discard())).ForceScrape(ctx)
	require.True(t, ack.OK())
	require.Eventually(t, func() bool {
		return view.ScrapeActive(h.Current())
	}, time.Second, 5*time.Millisecond)
}
