package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsmoker-project/chainsmoker/internal/store"
	"github.com/chainsmoker-project/chainsmoker/internal/tactic"
)

func mkEvent(id int64, tacticName, chainID string, t time.Time) store.Event {
	return store.Event{
		ID:         id,
		Tactic:     tacticName,
		ChainID:    chainID,
		PlotTime:   t,
		Plottable:  !t.IsZero(),
		SourceHost: "src",
		DestHost:   "dst",
		Operator:   "analyst1",
	}
}

func TestBuildScenario(t *testing.T) {
	base := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	events := []store.Event{
		mkEvent(1, "Execution", "A", base),
		mkEvent(2, "C2", "A", base.Add(time.Hour)),
	}

	figs := Build(events)

	assert.Equal(t, []string{"Execution", "C2"}, figs.Compact.Categories)
	require.Len(t, figs.Full.Categories, 11)
	assert.Equal(t, tactic.All(), figs.Full.Categories)
	assert.Len(t, figs.Full.AbsentBands, 9)
	assert.NotContains(t, figs.Full.AbsentBands, "Execution")
	assert.NotContains(t, figs.Full.AbsentBands, "C2")
}

func TestBuildChainOrderingAndSentinel(t *testing.T) {
	base := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	// Chain points arrive out of time order.
	events := []store.Event{
		mkEvent(3, "C2", "A", base.Add(2*time.Hour)),
		mkEvent(1, "Initial Access", "A", base),
		mkEvent(2, "Execution", "A", base.Add(time.Hour)),
		mkEvent(4, "Discovery", "B", base.Add(30*time.Minute)),
	}

	figs := Build(events)
	require.Len(t, figs.Compact.Traces, 2)

	// Chains appear in first-appearance order.
	a := figs.Compact.Traces[0]
	assert.Equal(t, "A", a.ChainID)

	// Points sorted by timestamp, nil sentinel terminates the line.
	require.Len(t, a.Points, 4)
	assert.Equal(t, int64(1), a.Points[0].EventID)
	assert.Equal(t, int64(2), a.Points[1].EventID)
	assert.Equal(t, int64(3), a.Points[2].EventID)
	assert.Nil(t, a.Points[3])

	// Single-event chain still gets a (point, sentinel) trace.
	b := figs.Compact.Traces[1]
	require.Len(t, b.Points, 2)
	assert.Equal(t, int64(4), b.Points[0].EventID)
	assert.Nil(t, b.Points[1])
}

func TestBuildFullViewAnchor(t *testing.T) {
	base := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	events := []store.Event{
		mkEvent(1, "Execution", "A", base.Add(time.Hour)),
		mkEvent(2, "C2", "A", base),
	}

	figs := Build(events)

	// One invisible anchor trace pinning every tactic at the minimum
	// timestamp of the dataset.
	anchor := figs.Full.Traces[len(figs.Full.Traces)-1]
	require.True(t, anchor.Invisible)
	require.Len(t, anchor.Points, 11)
	for _, p := range anchor.Points {
		assert.Equal(t, base, p.Time)
	}
}

func TestBuildExcludesChainlessAndUnplottable(t *testing.T) {
	base := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	events := []store.Event{
		mkEvent(1, "Execution", "A", base),
		mkEvent(2, "Persistence", "", base),          // no chain
		mkEvent(3, "Discovery", "A", time.Time{}),    // unparseable timestamp
	}

	figs := Build(events)

	require.Len(t, figs.Compact.Traces, 1)
	require.Len(t, figs.Compact.Traces[0].Points, 2) // one point + sentinel

	// Both excluded events still claim a y-slot.
	assert.Equal(t, []string{"Execution", "Persistence", "Discovery"}, figs.Compact.Categories)
}

func TestBuildEmpty(t *testing.T) {
	figs := Build(nil)

	assert.Empty(t, figs.Compact.Categories)
	assert.Empty(t, figs.Compact.Traces)
	require.Len(t, figs.Full.Categories, 11)
	assert.Len(t, figs.Full.AbsentBands, 11)
	assert.Empty(t, figs.Full.Traces, "no anchor without a minimum timestamp")
}

func TestBuildIdempotent(t *testing.T) {
	base := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	events := []store.Event{
		mkEvent(1, "Execution", "A", base),
		mkEvent(2, "C2", "A", base.Add(time.Hour)),
		mkEvent(3, "Exfiltration", "B", base.Add(2*time.Hour)),
	}

	first := Build(events)
	second := Build(events)

	assert.Equal(t, first.Compact.Categories, second.Compact.Categories)
	assert.Equal(t, first.Full.Categories, second.Full.Categories)
	require.Equal(t, len(first.Compact.Traces), len(second.Compact.Traces))
	for i := range first.Compact.Traces {
		assert.Equal(t, len(first.Compact.Traces[i].Points), len(second.Compact.Traces[i].Points))
	}
}

func TestCategoryList(t *testing.T) {
	figs := Build([]store.Event{
		mkEvent(1, "Execution", "A", time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)),
	})
	assert.Equal(t, figs.Compact.Categories, figs.CategoryList(ViewCompact))
	assert.Equal(t, figs.Full.Categories, figs.CategoryList(ViewFull))
}
