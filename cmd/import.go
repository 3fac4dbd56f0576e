package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/chainsmoker-project/chainsmoker/internal/bus"
	"github.com/chainsmoker-project/chainsmoker/internal/ingest"
	"github.com/chainsmoker-project/chainsmoker/internal/service"
	"github.com/chainsmoker-project/chainsmoker/internal/store"
)

var (
	importWatch bool
	importActor string
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import [file or directory]",
	Short: "Import workbook CSV exports",
	Long: `Import attack-chain events from CSV exports of the operational
workbook. The file must carry the workbook header; rows with no tactic
are treated as spacer rows and skipped, and rows that fail validation
are reported without aborting the rest of the file.

With a directory argument the command imports every CSV in it, and with
--watch it keeps running and imports files as they appear.

Examples:
  # Import a single export
  chainsmoker import ./ops-log.csv

  # Import everything in a directory, then keep watching it
  chainsmoker import ./data/imports --watch`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().BoolVar(&importWatch, "watch", false, "Keep watching a directory for new exports")
	importCmd.Flags().StringVar(&importActor, "actor", "import-cli", "Actor recorded in the audit trail")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	config := GetConfig()
	logger := log.New(os.Stderr, "[import] ", log.LstdFlags)

	st, err := store.NewStore(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	changeBus := bus.NewBus(config.Redis.URL, logger)
	defer changeBus.Close()

	svc, err := service.New(ctx, st, changeBus, logger)
	if err != nil {
		return fmt.Errorf("failed to build timeline service: %w", err)
	}

	target := args[0]
	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", target, err)
	}

	if !info.IsDir() {
		if importWatch {
			return fmt.Errorf("--watch requires a directory, got file %s", target)
		}
		result, err := ingest.ReadRecords(target)
		if err != nil {
			return err
		}
		imported, err := svc.ImportRecords(ctx, result.Records, importActor)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		for _, e := range imported.Errors {
			logger.Printf("row rejected: %v", e)
		}
		logger.Printf("Imported %s: added=%d skipped=%d spacer_rows=%d",
			target, imported.Added, imported.Skipped, result.Skipped)
		return nil
	}

	fing := ingest.NewFolderIngestor(importFunc(svc, importActor), ingest.FolderOptions{
		Dir:    target,
		Watch:  importWatch,
		Logger: logger,
	})
	return fing.Run(ctx)
}
