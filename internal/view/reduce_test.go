package view

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpalmerr/missioncontrol/internal/docstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ledger(amounts ...any) []docstore.Document {
	docs := make([]docstore.Document, len(amounts))
	for i, a := range amounts {
		docs[i] = docstore.Document{
			ID:     string(rune('a' + i)),
			Fields: map[string]any{"amount": a},
		}
	}
	return docs
}

func TestReduce_SkipsMalformedDocument(t *testing.T) {
	docs := ledger(1.0, 2.0, "not-a-number", 4.0, 5.0)

	res := Reduce(docs, 0, SumField("amount"), WithLogger(testLogger()))

	assert.Equal(t, 12.0, res.Value)
	require.Len(t, res.Faults, 1)
	assert.Equal(t, "c", res.Faults[0].DocumentID)
	assert.False(t, res.OK())
	assert.Error(t, res.Err())
}

func TestReduce_PanickingFoldIsIsolated(t *testing.T) {
	docs := ledger(1.0, 2.0, 3.0, 4.0, 5.0)

	// panics on the third document only
	fold := func(acc float64, d docstore.Document) (float64, error) {
		if d.ID == "c" {
			var m map[string]int
			m["boom"]++
		}
		return acc + d.Fields["amount"].(float64), nil
	}

	var res Result[float64]
	require.NotPanics(t, func() {
		res = Reduce(docs, 0, fold, WithLogger(testLogger()))
	})
	assert.Equal(t, 12.0, res.Value)
	require.Len(t, res.Faults, 1)
	assert.Equal(t, "c", res.Faults[0].DocumentID)
	assert.Contains(t, res.Faults[0].Error(), "correlation_id")
}

func TestReduce_FaultUnwraps(t *testing.T) {
	cause := errors.New("bad row")
	res := Reduce(ledger(1.0), 0, func(float64, docstore.Document) (float64, error) {
		return 0, cause
	}, WithLogger(testLogger()))

	assert.Equal(t, 0.0, res.Value)
	assert.ErrorIs(t, res.Err(), cause)

	var fault *ReducerFault
	require.ErrorAs(t, res.Err(), &fault)
	assert.Equal(t, "a", fault.DocumentID)
}

func TestReduce_EmptyList(t *testing.T) {
	res := Reduce(nil, 7, func(acc int, _ docstore.Document) (int, error) { return acc + 1, nil })
	assert.Equal(t, 7, res.Value)
	assert.True(t, res.OK())
	assert.NoError(t, res.Err())
}

func TestDerive(t *testing.T) {
	docs := ledger(1.0)

	n, ok := Derive(docs, func(d []docstore.Document) int { return len(d) }, WithLogger(testLogger()))
	assert.True(t, ok)
	assert.Equal(t, 1, n)

	n, ok = Derive(docs, func(d []docstore.Document) int { return d[5].Fields["x"].(int) }, WithLogger(testLogger()))
	assert.False(t, ok, "panic means value unavailable")
	assert.Equal(t, 0, n)
}

func TestSumField(t *testing.T) {
	tests := []struct {
		name    string
		docs    []docstore.Document
		want    float64
		faulted int
	}{
		{name: "floats", docs: ledger(3.5, 4.0), want: 7.5},
		{name: "cbor integers", docs: ledger(uint64(2), int64(-1)), want: 1},
		{name: "numeric strings", docs: ledger("1.25", " 2 "), want: 3.25},
		{name: "nil amount counts as zero", docs: ledger(nil, 1.0), want: 1},
		{name: "boolean is a fault", docs: ledger(true, 1.0), want: 1, faulted: 1},
		{name: "nested map is a fault", docs: ledger(map[string]any{}, 2.0), want: 2, faulted: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Reduce(tt.docs, 0, SumField("amount"), WithLogger(testLogger()))
			assert.InDelta(t, tt.want, res.Value, 1e-9)
			assert.Len(t, res.Faults, tt.faulted)
		})
	}

	t.Run("missing field", func(t *testing.T) {
		docs := []docstore.Document{{ID: "x", Fields: map[string]any{"other": 9.0}}}
		res := Reduce(docs, 0, SumField("amount"))
		assert.Equal(t, 0.0, res.Value)
		assert.True(t, res.OK())
	})
}

func TestFindByID(t *testing.T) {
	docs := ledger(1.0, 2.0)

	d, ok := FindByID(docs, "b")
	require.True(t, ok)
	assert.Equal(t, 2.0, d.Fields["amount"])

	_, ok = FindByID(docs, "zz")
	assert.False(t, ok)
}

func TestCountWhere(t *testing.T) {
	docs := ledger(1.0, 20.0, 30.0)
	n := CountWhere(docs, func(d docstore.Document) bool {
		v, _ := Number(d.Fields["amount"])
		return v > 10
	})
	assert.Equal(t, 2, n)
}

func TestExceeds(t *testing.T) {
	assert.True(t, Exceeds(8.01, 10, 0.8))
	assert.False(t, Exceeds(8, 10, 0.8))
	assert.False(t, Exceeds(100, 0, 0.8))
}
