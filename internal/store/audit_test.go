package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndListAudit(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.RecordAudit(ctx, AuditEntry{
		EventID: 1,
		Action:  "add_event",
		Actor:   "analyst1",
		Details: map[string]string{"tactic": "Execution", "chain": "A"},
	}))
	require.NoError(t, st.RecordAudit(ctx, AuditEntry{
		Action: "import",
		Actor:  "system",
	}))

	entries, err := st.ListAudit(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, "import", entries[0].Action)
	assert.Equal(t, "add_event", entries[1].Action)
	assert.Equal(t, int64(1), entries[1].EventID)
	assert.Equal(t, "Execution", entries[1].Details["tactic"])
}

func TestListAuditLimit(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, st.RecordAudit(ctx, AuditEntry{Action: "add_event", Actor: "a"}))
	}

	entries, err := st.ListAudit(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestAuditSurvivesEventDeletion(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	ev, err := st.AddEvent(ctx, validFields())
	require.NoError(t, err)
	require.NoError(t, st.RecordAudit(ctx, AuditEntry{EventID: ev.ID, Action: "add_event", Actor: "analyst1"}))
	require.NoError(t, st.DeleteEvent(ctx, ev.ID))

	entries, err := st.ListAudit(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ev.ID, entries[0].EventID)
}
