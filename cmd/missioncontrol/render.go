package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jpalmerr/missioncontrol/internal/docstore"
	"github.com/jpalmerr/missioncontrol/internal/subscription"
	"github.com/jpalmerr/missioncontrol/internal/view"
)

var (
	accent      = lipgloss.Color("#FF9800")
	success     = lipgloss.Color("#8BC34A")
	warning     = lipgloss.Color("#FFC107")
	destructive = lipgloss.Color("#E53935")
	muted       = lipgloss.Color("#78909C")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	idStyle    = lipgloss.NewStyle().Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(muted)
	errorStyle = lipgloss.NewStyle().Foreground(destructive)

	availabilityStyles = map[view.Availability]lipgloss.Style{
		view.AvailabilityLive:        lipgloss.NewStyle().Bold(true).Foreground(success),
		view.AvailabilityStale:       lipgloss.NewStyle().Bold(true).Foreground(warning),
		view.AvailabilityLoading:     lipgloss.NewStyle().Foreground(muted),
		view.AvailabilityUnavailable: lipgloss.NewStyle().Bold(true).Foreground(destructive),
	}
)

// renderView formats one view: a header with availability and document
// count, the optional sum of sumField, then one line per document.
func renderView(v subscription.View, sumField string) string {
	availability := view.AvailabilityOf(v)
	badge := availabilityStyles[availability].Render("[" + strings.ToUpper(string(availability)) + "]")

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s", titleStyle.Render(v.Collection), badge,
		mutedStyle.Render(fmt.Sprintf("%d docs", len(v.Documents))))

	if sumField != "" {
		res := view.Reduce(v.Documents, 0, view.SumField(sumField))
		fmt.Fprintf(&b, "  sum(%s)=%.2f", sumField, res.Value)
		if !res.OK() {
			fmt.Fprintf(&b, " %s", mutedStyle.Render(fmt.Sprintf("(%d skipped)", len(res.Faults))))
		}
	}
	b.WriteString("\n")

	if v.Err != nil {
		b.WriteString("  " + errorStyle.Render("error: "+v.Err.Error()) + "\n")
	}
	for _, doc := range v.Documents {
		b.WriteString("  " + renderDocument(doc) + "\n")
	}
	return b.String()
}

// renderDocument prints id followed by its fields in key order.
func renderDocument(doc docstore.Document) string {
	keys := make([]string, 0, len(doc.Fields))
	for k := range doc.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	parts = append(parts, idStyle.Render(doc.ID))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, doc.Fields[k]))
	}
	return strings.Join(parts, " ")
}
