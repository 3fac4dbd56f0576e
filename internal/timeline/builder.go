// Package timeline transforms the event collection into the two
// renderable figure descriptors: the compact view (only tactics present
// in the data) and the full view (all canonical tactics, absent ones
// flagged). Both builders are pure; callers own caching and re-rendering.
package timeline

import (
	"fmt"
	"sort"
	"time"

	"github.com/chainsmoker-project/chainsmoker/internal/store"
	"github.com/chainsmoker-project/chainsmoker/internal/tactic"
)

// View names the two figure variants.
type View string

const (
	ViewCompact View = "compact"
	ViewFull    View = "full"
)

// Point is one plotted event. EventID is carried as point identity so a
// click in the rendering layer resolves back to the stored record.
type Point struct {
	Time    time.Time `json:"time"`
	Tactic  string    `json:"tactic"`
	EventID int64     `json:"event_id"`
	Hover   string    `json:"hover,omitempty"`
}

// Trace is one chain's polyline. Points ends with a nil sentinel so the
// rendering layer never joins consecutive chains into one line. A trace
// with a single real point renders as a lone marker.
type Trace struct {
	ChainID   string   `json:"chain_id"`
	Points    []*Point `json:"points"`
	Invisible bool     `json:"invisible,omitempty"`
}

// Figure is one renderable view descriptor. Categories is the explicit
// y-axis array, index 0 at the bottom of the chart; it is never inferred
// from trace insertion order.
type Figure struct {
	View        View     `json:"view"`
	Categories  []string `json:"categories"`
	Traces      []Trace  `json:"traces"`
	AbsentBands []string `json:"absent_bands,omitempty"`
}

// Figures bundles both views with the category lists the viewport
// translator needs when the analyst toggles.
type Figures struct {
	Compact Figure   `json:"compact"`
	Full    Figure   `json:"full"`
	Visible []string `json:"visible_tactics"`
	Missing []string `json:"missing_tactics"`
	All     []string `json:"all_tactics"`
}

// CategoryList returns the y-axis category array for the requested view.
func (f *Figures) CategoryList(v View) []string {
	if v == ViewFull {
		return f.Full.Categories
	}
	return f.Compact.Categories
}

// hoverText mirrors the node tooltip: details, notes, operator, chain.
func hoverText(ev store.Event) string {
	return fmt.Sprintf("Details: %s | Notes: %s | Found By: %s | Attack Chain: %s",
		ev.Details, ev.Notes, ev.Operator, ev.ChainID)
}

// Build constructs both figure descriptors from the full event
// collection. Events with no chain id or no parseable timestamp are
// excluded from polylines but still claim a y-slot for their tactic.
func Build(events []store.Event) Figures {
	present := map[string]bool{}
	for _, ev := range events {
		present[ev.Tactic] = true
	}
	visible := tactic.Visible(present)
	missing := tactic.Missing(present)
	all := tactic.All()

	traces := buildChainTraces(events)

	compact := Figure{
		View:       ViewCompact,
		Categories: visible,
		Traces:     traces,
	}

	// The full view clones the compact traces, then pins a y-slot for
	// every canonical tactic with an invisible reference trace at the
	// dataset's minimum timestamp. Tactics without data get a band.
	full := Figure{
		View:        ViewFull,
		Categories:  all,
		Traces:      make([]Trace, len(traces), len(traces)+1),
		AbsentBands: missing,
	}
	copy(full.Traces, traces)

	if minTime, ok := minPlotTime(events); ok {
		anchor := Trace{Invisible: true, Points: make([]*Point, 0, len(all))}
		for _, t := range all {
			anchor.Points = append(anchor.Points, &Point{Time: minTime, Tactic: t})
		}
		full.Traces = append(full.Traces, anchor)
	}

	return Figures{
		Compact: compact,
		Full:    full,
		Visible: visible,
		Missing: missing,
		All:     all,
	}
}

// buildChainTraces groups plottable events by chain, ordering chains by
// first appearance and points by timestamp (input order breaks ties).
func buildChainTraces(events []store.Event) []Trace {
	var order []string
	byChain := map[string][]store.Event{}
	for _, ev := range events {
		if ev.ChainID == "" || !ev.Plottable {
			continue
		}
		if _, seen := byChain[ev.ChainID]; !seen {
			order = append(order, ev.ChainID)
		}
		byChain[ev.ChainID] = append(byChain[ev.ChainID], ev)
	}

	traces := make([]Trace, 0, len(order))
	for _, chainID := range order {
		chain := byChain[chainID]
		sort.SliceStable(chain, func(i, j int) bool {
			return chain[i].PlotTime.Before(chain[j].PlotTime)
		})

		points := make([]*Point, 0, len(chain)+1)
		for _, ev := range chain {
			points = append(points, &Point{
				Time:    ev.PlotTime,
				Tactic:  ev.Tactic,
				EventID: ev.ID,
				Hover:   hoverText(ev),
			})
		}
		// Sentinel gap terminating the polyline.
		points = append(points, nil)

		traces = append(traces, Trace{ChainID: chainID, Points: points})
	}
	return traces
}

func minPlotTime(events []store.Event) (time.Time, bool) {
	var min time.Time
	found := false
	for _, ev := range events {
		if !ev.Plottable {
			continue
		}
		if !found || ev.PlotTime.Before(min) {
			min = ev.PlotTime
			found = true
		}
	}
	return min, found
}
