package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/jpalmerr/missioncontrol/internal/docstore"
	"github.com/jpalmerr/missioncontrol/internal/subscription"
)

func TestRenderView_Errored(t *testing.T) {
	v := subscription.View{
		Collection: "ledger",
		State:      subscription.Errored,
		Documents:  []docstore.Document{},
		Err:        errors.New("permission denied"),
	}

	out := renderView(v, "")
	for _, phrase := range []string{"ledger", "[UNAVAILABLE]", "0 docs", "error: permission denied"} {
		if !strings.Contains(out, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, out)
		}
	}
}

func TestRenderView_SkippedSum(t *testing.T) {
	v := subscription.View{
		Collection: "ledger",
		State:      subscription.Ready,
		Received:   true,
		Documents: []docstore.Document{
			{ID: "a", Fields: map[string]any{"cost": 2.0}},
			{ID: "b", Fields: map[string]any{"cost": "lots"}},
		},
	}

	out := renderView(v, "cost")
	if !strings.Contains(out, "sum(cost)=2.00") {
		t.Errorf("output missing sum\nGot: %s", out)
	}
	if !strings.Contains(out, "(1 skipped)") {
		t.Errorf("output missing skipped count\nGot: %s", out)
	}
}

func TestRenderDocument_SortsFields(t *testing.T) {
	doc := docstore.Document{ID: "run-1", Fields: map[string]any{"model": "opus", "cost": 3.5}}

	got := renderDocument(doc)
	if !strings.HasSuffix(got, "cost=3.5 model=opus") {
		t.Errorf("renderDocument() = %q", got)
	}
}
