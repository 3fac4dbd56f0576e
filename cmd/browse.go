package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/chainsmoker-project/chainsmoker/internal/service"
	"github.com/chainsmoker-project/chainsmoker/internal/store"
	"github.com/chainsmoker-project/chainsmoker/internal/ui"
)

// browseCmd represents the browse command
var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse chains, events and annotations in the terminal",
	Long: `Open a read-only terminal browser over the timeline: attack chains
on the left, their events in the middle, and the selected event's
detail and annotations on the right.

Mutations go through the API server or the import commands; the browser
only reads.`,
	RunE: runBrowse,
}

func init() {
	rootCmd.AddCommand(browseCmd)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	config := GetConfig()

	// Logs go to a file so they don't corrupt the screen.
	logger := log.New(io.Discard, "", 0)
	logDir := filepath.Join(getWorkingDir(), "logs")
	if err := os.MkdirAll(logDir, 0755); err == nil {
		logPath := filepath.Join(logDir, "chainsmoker-browse.log")
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
			logger = log.New(f, "[browse] ", log.LstdFlags)
			defer f.Close()
		}
	}

	st, err := store.NewStore(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	svc, err := service.New(ctx, st, nil, logger)
	if err != nil {
		return fmt.Errorf("failed to build timeline service: %w", err)
	}

	browser := ui.NewUI(ctx, svc, logger)
	if err := browser.Start(ctx); err != nil {
		return fmt.Errorf("browser error: %w", err)
	}
	return nil
}
