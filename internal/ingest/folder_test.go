package ingest

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsmoker-project/chainsmoker/internal/store"
)

func TestFolderIngestorOneShot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "export.csv"), []byte(sampleExport), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a csv"), 0o644))

	var got []store.EventFields
	fi := NewFolderIngestor(func(ctx context.Context, records []store.EventFields) (int, int, error) {
		got = append(got, records...)
		return len(records), 0, nil
	}, FolderOptions{
		Dir:    dir,
		Logger: log.New(io.Discard, "", 0),
	})

	require.NoError(t, fi.Run(context.Background()))
	require.Len(t, got, 3)
	assert.Equal(t, "Initial Access", got[0].Tactic)

	// Imported files are renamed so a restart does not re-import them.
	_, err := os.Stat(filepath.Join(dir, "export.csv.done"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "export.csv"))
	assert.True(t, os.IsNotExist(err))
}

func TestFolderIngestorSkipsBadFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.csv"), []byte("wrong,header\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.csv"), []byte(sampleExport), 0o644))

	calls := 0
	fi := NewFolderIngestor(func(ctx context.Context, records []store.EventFields) (int, int, error) {
		calls++
		return len(records), 0, nil
	}, FolderOptions{
		Dir:    dir,
		Logger: log.New(io.Discard, "", 0),
	})

	require.NoError(t, fi.Run(context.Background()))
	assert.Equal(t, 1, calls, "unreadable file is logged and skipped")

	// The bad file stays put for the operator to fix.
	_, err := os.Stat(filepath.Join(dir, "bad.csv"))
	assert.NoError(t, err)
}
