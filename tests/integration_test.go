package main

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsmoker-project/chainsmoker/internal/ingest"
	"github.com/chainsmoker-project/chainsmoker/internal/service"
	"github.com/chainsmoker-project/chainsmoker/internal/store"
	"github.com/chainsmoker-project/chainsmoker/internal/timeline"
	"github.com/chainsmoker-project/chainsmoker/internal/viewport"
)

// TestOperationalWorkflow drives the full path an operator takes: seed a
// chain by hand, bulk-import a workbook export, zoom, toggle views, and
// annotate, checking the figures and audit trail along the way.
func TestOperationalWorkflow(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "integration.db")
	st, err := store.NewStore(dbPath)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	logger := log.New(io.Discard, "", 0)
	svc, err := service.New(ctx, st, nil, logger)
	require.NoError(t, err)

	// Manual entry: the first two links of a chain.
	_, err = svc.AddEvent(ctx, store.EventFields{
		Timestamp:  "04/01/2025, 0830",
		Tactic:     "Initial Access",
		SourceHost: "203.0.113.44",
		DestHost:   "web-dmz-01",
		Details:    "Phish landed",
		Operator:   "alice",
		ChainID:    "Chain Alpha",
	}, "alice")
	require.NoError(t, err)

	second, err := svc.AddEvent(ctx, store.EventFields{
		Timestamp:  "04/01/2025, 0915",
		Tactic:     "Execution",
		SourceHost: "web-dmz-01",
		DestHost:   "web-dmz-01",
		Details:    "Loader executed",
		Operator:   "alice",
		ChainID:    "Chain Alpha",
	}, "alice")
	require.NoError(t, err)

	t.Run("FiguresAfterManualEntry", func(t *testing.T) {
		figs := svc.TimelineFigures()
		assert.Equal(t, []string{"Initial Access", "Execution"}, figs.Compact.Categories)
		assert.Len(t, figs.Full.Categories, 11)
		require.Len(t, figs.Compact.Traces, 1)
		assert.Equal(t, "Chain Alpha", figs.Compact.Traces[0].ChainID)
	})

	t.Run("WorkbookImport", func(t *testing.T) {
		csvPath := filepath.Join(t.TempDir(), "export.csv")
		content := `Date/Time MPNET,MITRE Tactic,Source Hostname/IP,Target Hostname/IP,Details,Notes,Operator,Attack Chain
"04/01/2025, 1040",Lateral Movement,web-dmz-01,fs-internal-02,SMB with harvested creds,,bob,Chain Alpha
"04/01/2025, 1315",C2,fs-internal-02,203.0.113.44,Long-haul channel,,bob,Chain Alpha
"04/02/2025, 0800",Bad Tactic,x,y,should be rejected,,bob,Chain Alpha
`
		require.NoError(t, os.WriteFile(csvPath, []byte(content), 0o644))

		result, err := ingest.ReadRecords(csvPath)
		require.NoError(t, err)
		require.Len(t, result.Records, 3)

		imported, err := svc.ImportRecords(ctx, result.Records, "import-cli")
		require.NoError(t, err)
		assert.Equal(t, 2, imported.Added)
		assert.Equal(t, 1, imported.Skipped)

		figs := svc.TimelineFigures()
		assert.Equal(t, []string{"Initial Access", "Execution", "Lateral Movement", "C2"}, figs.Visible)
	})

	t.Run("ZoomSurvivesToggle", func(t *testing.T) {
		session := svc.NewSession()
		svc.SetZoomWindow(session, timeline.ViewCompact, viewport.Window{
			X: [2]string{"2025-04-01T08:00:00Z", "2025-04-01T14:00:00Z"},
			Y: [2]float64{0.5, 2.5},
		})

		next, win := svc.ToggleView(session, timeline.ViewCompact)
		assert.Equal(t, timeline.ViewFull, next)
		require.NotNil(t, win)
		// Rows map into the 11-tactic space; the x range is untouched.
		assert.Equal(t, "2025-04-01T08:00:00Z", win.X[0])

		back, win := svc.ToggleView(session, timeline.ViewFull)
		assert.Equal(t, timeline.ViewCompact, back)
		require.NotNil(t, win)
	})

	t.Run("AnnotateAndAudit", func(t *testing.T) {
		notes, err := svc.AddAnnotation(ctx, second.ID, store.AnnotationFields{
			Body:   "confirmed via EDR telemetry",
			Author: "bob",
		})
		require.NoError(t, err)
		require.Len(t, notes, 1)

		entries, err := st.ListAudit(ctx, 50)
		require.NoError(t, err)

		actions := make(map[string]int)
		for _, e := range entries {
			actions[e.Action]++
		}
		assert.Equal(t, 2, actions["add_event"])
		assert.Equal(t, 1, actions["import"])
		assert.Equal(t, 1, actions["add_annotation"])
	})

	t.Run("DeleteCascades", func(t *testing.T) {
		require.NoError(t, svc.DeleteEvent(ctx, second.ID, "alice"))

		figs := svc.TimelineFigures()
		assert.NotContains(t, figs.Visible, "Execution")

		notes, err := svc.ListAnnotations(ctx, second.ID)
		require.NoError(t, err)
		assert.Empty(t, notes)
	})
}
