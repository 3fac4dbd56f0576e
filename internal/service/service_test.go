package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsmoker-project/chainsmoker/internal/store"
	"github.com/chainsmoker-project/chainsmoker/internal/timeline"
	"github.com/chainsmoker-project/chainsmoker/internal/viewport"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := store.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	svc, err := New(context.Background(), st, nil, nil)
	require.NoError(t, err)
	return svc
}

func addEvent(t *testing.T, svc *Service, ts, tacticName, chain string) *store.Event {
	t.Helper()
	ev, err := svc.AddEvent(context.Background(), store.EventFields{
		Timestamp:  ts,
		Tactic:     tacticName,
		SourceHost: "10.0.0.1",
		DestHost:   "srv01",
		Operator:   "analyst1",
		ChainID:    chain,
	}, "analyst1")
	require.NoError(t, err)
	return ev
}

func TestAddEventRebuildsBeforeAck(t *testing.T) {
	svc := newTestService(t)

	assert.Empty(t, svc.TimelineFigures().Compact.Categories)

	addEvent(t, svc, "04/01/2025, 1000", "Execution", "A")

	// The figures visible immediately after the write include the event.
	figs := svc.TimelineFigures()
	assert.Equal(t, []string{"Execution"}, figs.Compact.Categories)
	require.Len(t, figs.Compact.Traces, 1)
}

func TestDeleteEventRebuilds(t *testing.T) {
	svc := newTestService(t)
	ev := addEvent(t, svc, "04/01/2025, 1000", "Execution", "A")

	require.NoError(t, svc.DeleteEvent(context.Background(), ev.ID, "analyst1"))
	assert.Empty(t, svc.TimelineFigures().Compact.Categories)

	var nferr *store.NotFoundError
	err := svc.DeleteEvent(context.Background(), ev.ID, "analyst1")
	require.ErrorAs(t, err, &nferr)
}

func TestToggleWithoutZoom(t *testing.T) {
	svc := newTestService(t)
	session := svc.NewSession()

	next, win := svc.ToggleView(session, timeline.ViewFull)
	assert.Equal(t, timeline.ViewCompact, next)
	assert.Nil(t, win, "no stored zoom means default extent")

	next, win = svc.ToggleView(session, timeline.ViewCompact)
	assert.Equal(t, timeline.ViewFull, next)
	assert.Nil(t, win)
}

func TestToggleTranslatesStoredZoom(t *testing.T) {
	svc := newTestService(t)
	addEvent(t, svc, "04/01/2025, 1000", "Execution", "A")
	addEvent(t, svc, "04/01/2025, 1100", "C2", "A")
	addEvent(t, svc, "04/01/2025, 1200", "Exfiltration", "B")

	session := svc.NewSession()
	svc.SetZoomWindow(session, timeline.ViewCompact, viewport.Window{
		Y: [2]float64{1.2, 2.8},
	})

	next, win := svc.ToggleView(session, timeline.ViewCompact)
	require.Equal(t, timeline.ViewFull, next)
	require.NotNil(t, win)

	// Compact categories are [Execution C2 Exfiltration]; both anchors
	// resolve to Exfiltration at full index 10.
	assert.InDelta(t, 10-0.2, win.Y[0], 1e-9)
	assert.InDelta(t, 10+0.8, win.Y[1], 1e-9)

	// The stored zoom now lives in the full view's space; toggling back
	// recovers the original window.
	back, win2 := svc.ToggleView(session, next)
	require.Equal(t, timeline.ViewCompact, back)
	require.NotNil(t, win2)
	assert.InDelta(t, 1.2, win2.Y[0], 1e-9)
	assert.InDelta(t, 2.8, win2.Y[1], 1e-9)
}

func TestToggleDropsZoomWhenNoSharedRows(t *testing.T) {
	svc := newTestService(t)
	// Empty store: compact has zero categories.
	session := svc.NewSession()
	svc.SetZoomWindow(session, timeline.ViewCompact, viewport.Window{Y: [2]float64{0, 1}})

	next, win := svc.ToggleView(session, timeline.ViewCompact)
	assert.Equal(t, timeline.ViewFull, next)
	assert.Nil(t, win)

	_, _, ok := svc.ZoomWindow(session)
	assert.False(t, ok, "untranslatable zoom is forgotten")
}

func TestAnnotationsRoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	ev := addEvent(t, svc, "04/01/2025, 1000", "Discovery", "A")

	notes, err := svc.AddAnnotation(ctx, ev.ID, store.AnnotationFields{
		Author: "analyst2",
		Body:   "lateral movement staging observed",
	})
	require.NoError(t, err)
	require.Len(t, notes, 1)

	listed, err := svc.ListAnnotations(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, notes, listed)

	// Cascade through the service: delete wipes annotations.
	require.NoError(t, svc.DeleteEvent(ctx, ev.ID, "analyst1"))
	listed, err = svc.ListAnnotations(ctx, ev.ID)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestImportRecordsSkipsInvalid(t *testing.T) {
	svc := newTestService(t)

	records := []store.EventFields{
		{Timestamp: "04/01/2025, 1000", Tactic: "Execution", SourceHost: "a", DestHost: "b", ChainID: "A"},
		{Timestamp: "No Data", Tactic: "C2", SourceHost: "a", DestHost: "b", ChainID: "A"},
		{Timestamp: "04/01/2025, 1100", Tactic: "Bogus", SourceHost: "a", DestHost: "b", ChainID: "A"},
	}

	result, err := svc.ImportRecords(context.Background(), records, "importer")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Added, "unparseable timestamp is kept on import")
	assert.Equal(t, 1, result.Skipped, "unknown tactic is rejected")
	require.Len(t, result.Errors, 1)

	figs := svc.TimelineFigures()
	assert.Contains(t, figs.Compact.Categories, "C2")
}
