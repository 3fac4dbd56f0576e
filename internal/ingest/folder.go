package ingest

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/chainsmoker-project/chainsmoker/internal/store"
)

// ImportFunc receives parsed records and returns how many were added and
// skipped. The service supplies this; ingest stays store-agnostic.
type ImportFunc func(ctx context.Context, records []store.EventFields) (added, skipped int, err error)

// FolderOptions controls import-folder behavior.
type FolderOptions struct {
	Dir      string
	Watch    bool
	Patterns []string // e.g. []string{"*.csv"}
	Logger   *log.Logger
	// SettleDelay waits for a just-written file to stop growing before
	// reading it. Exports from the workbook are not written atomically.
	SettleDelay time.Duration
}

// FolderIngestor imports workbook CSV exports from a directory, either
// one-shot or watching for new files.
type FolderIngestor struct {
	importFn ImportFunc
	opts     FolderOptions

	mu        sync.Mutex
	processed map[string]time.Time // path -> mod time at last import

	imported int
	errors   int
}

// NewFolderIngestor constructs a folder ingestor.
func NewFolderIngestor(importFn ImportFunc, opts FolderOptions) *FolderIngestor {
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[import-folder] ", log.LstdFlags)
	}
	if len(opts.Patterns) == 0 {
		opts.Patterns = []string{"*.csv"}
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 500 * time.Millisecond
	}
	return &FolderIngestor{
		importFn:  importFn,
		opts:      opts,
		processed: make(map[string]time.Time),
	}
}

// Run executes the import per options (one-shot or watch).
func (fi *FolderIngestor) Run(ctx context.Context) error {
	if err := fi.scanOnce(ctx); err != nil {
		return err
	}

	if !fi.opts.Watch {
		fi.opts.Logger.Printf("Completed one-shot import: files=%d errors=%d", fi.imported, fi.errors)
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(fi.opts.Dir); err != nil {
		return err
	}
	fi.opts.Logger.Printf("Watching %s for workbook exports", fi.opts.Dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !fi.matches(ev.Name) {
				continue
			}
			// Let the writer finish before reading.
			time.Sleep(fi.opts.SettleDelay)
			fi.importFile(ctx, ev.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fi.opts.Logger.Printf("watch error: %v", err)
		}
	}
}

// scanOnce imports every matching file currently in the directory.
func (fi *FolderIngestor) scanOnce(ctx context.Context) error {
	entries, err := os.ReadDir(fi.opts.Dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(fi.opts.Dir, entry.Name())
		if !fi.matches(path) {
			continue
		}
		fi.importFile(ctx, path)
	}
	return nil
}

func (fi *FolderIngestor) matches(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range fi.opts.Patterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// importFile reads and imports one CSV, skipping files already imported
// at their current mod time.
func (fi *FolderIngestor) importFile(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}

	fi.mu.Lock()
	if seen, ok := fi.processed[path]; ok && !info.ModTime().After(seen) {
		fi.mu.Unlock()
		return
	}
	fi.processed[path] = info.ModTime()
	fi.mu.Unlock()

	result, err := ReadRecords(path)
	if err != nil {
		fi.errors++
		fi.opts.Logger.Printf("Failed to read %s: %v", filepath.Base(path), err)
		return
	}

	added, skipped, err := fi.importFn(ctx, result.Records)
	if err != nil {
		fi.errors++
		fi.opts.Logger.Printf("Failed to import %s: %v", filepath.Base(path), err)
		return
	}
	fi.imported++
	fi.opts.Logger.Printf("Imported %s: added=%d skipped=%d spacer_rows=%d",
		filepath.Base(path), added, skipped, result.Skipped)

	if strings.HasSuffix(path, ".csv") {
		// Mark the file done so re-scans after restart skip it.
		_ = os.Rename(path, path+".done")
	}
}
