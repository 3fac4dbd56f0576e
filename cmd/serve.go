package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chainsmoker-project/chainsmoker/internal/bus"
	"github.com/chainsmoker-project/chainsmoker/internal/ingest"
	"github.com/chainsmoker-project/chainsmoker/internal/server"
	"github.com/chainsmoker-project/chainsmoker/internal/service"
	"github.com/chainsmoker-project/chainsmoker/internal/store"
)

var (
	serveBind    string
	serveToken   string
	serveRPS     int
	serveBurst   int
	serveWatch   bool
	serveImports string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the timeline API server",
	Long: `Start the Chainsmoker server which includes:

1. JSON HTTP API for figures, zoom/toggle sessions, events and annotations
2. Optional watched import directory for workbook CSV exports
3. Redis Streams change notifications for downstream consumers

The serve command runs until interrupted (Ctrl+C).

Examples:
  # Start on the default bind address
  chainsmoker serve

  # Start with bearer auth and a watched import directory
  chainsmoker serve --token s3cret --watch-imports`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveBind, "bind", "", "Bind address (default from config: 127.0.0.1:8080)")
	serveCmd.Flags().StringVar(&serveToken, "token", "", "Bearer token required for API access (optional)")
	serveCmd.Flags().IntVar(&serveRPS, "rps", 0, "Max API requests per second (0 disables limiting)")
	serveCmd.Flags().IntVar(&serveBurst, "burst", 0, "Burst size for the API rate limiter")
	serveCmd.Flags().BoolVar(&serveWatch, "watch-imports", false, "Watch the import directory for workbook CSV exports")
	serveCmd.Flags().StringVar(&serveImports, "import-dir", "", "Import directory (default from config: ./data/imports)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	config := GetConfig()
	logger := log.New(os.Stderr, "[serve] ", log.LstdFlags)

	logger.Println("Starting Chainsmoker server")

	logger.Println("Initializing database...")
	resolvedDBPath := resolvePathRelativeToBase(getWorkingDir(), config.Database.Path)
	logger.Printf("Using database at %s", resolvedDBPath)
	st, err := store.NewStore(resolvedDBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	logger.Println("Connecting to change bus...")
	changeBus := bus.NewBus(config.Redis.URL, logger)
	defer changeBus.Close()

	svc, err := service.New(ctx, st, changeBus, logger)
	if err != nil {
		return fmt.Errorf("failed to build timeline service: %w", err)
	}

	opts := server.Options{
		Bind:   firstNonEmpty(serveBind, config.HTTP.Bind),
		Token:  firstNonEmpty(serveToken, config.HTTP.Token),
		RPS:    serveRPS,
		Burst:  serveBurst,
		Logger: logger,
	}
	if opts.RPS == 0 {
		opts.RPS = config.HTTP.RPS
		opts.Burst = config.HTTP.Burst
	}
	srv, err := server.New(svc, opts)
	if err != nil {
		return fmt.Errorf("failed to build API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	if serveWatch {
		dir := resolvePathRelativeToBase(getWorkingDir(), firstNonEmpty(serveImports, config.Import.Dir))
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create import dir %s: %w", dir, err)
		}
		fing := ingest.NewFolderIngestor(importFunc(svc, "import-folder"), ingest.FolderOptions{
			Dir:    dir,
			Watch:  true,
			Logger: logger,
		})
		go func() {
			if err := fing.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Printf("Folder import error: %v", err)
			}
		}()
		logger.Printf("Watching %s for workbook exports", dir)
	}

	<-ctx.Done()
	logger.Println("Received shutdown signal")
	logger.Println("Chainsmoker server stopped")
	return nil
}

// importFunc adapts the service's bulk import to the ingest callback.
func importFunc(svc *service.Service, actor string) ingest.ImportFunc {
	return func(ctx context.Context, records []store.EventFields) (int, int, error) {
		result, err := svc.ImportRecords(ctx, records, actor)
		if err != nil {
			return 0, 0, err
		}
		return result.Added, result.Skipped, nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// getExecutableDir returns the directory of the running executable.
// Falls back to current directory on error.
func getExecutableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// getWorkingDir returns the current working directory.
// Falls back to executable directory if os.Getwd fails.
func getWorkingDir() string {
	if wd, err := os.Getwd(); err == nil && wd != "" {
		return wd
	}
	return getExecutableDir()
}

// resolvePathRelativeToBase resolves a possibly relative path against a base directory.
// Absolute paths are returned unchanged.
func resolvePathRelativeToBase(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	// Normalize leading "./" for consistent joining
	p = strings.TrimPrefix(p, "./")
	return filepath.Join(base, p)
}
