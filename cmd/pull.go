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
	pullURL    string
	pullAPIKey string
	pullTag    string
	pullActor  string
)

// pullCmd represents the pull command
var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull events from the case-management feed",
	Long: `Pull attack-chain events from a case-management feed (Kibana Cases
API shape). Cases carrying the configured tag are converted to events
using their custom fields and imported in one batch.

Examples:
  # Pull with settings from the config file
  chainsmoker pull

  # Pull from an explicit feed
  chainsmoker pull --url https://kibana.lan:9200 --api-key $KEY`,
	RunE: runPull,
}

func init() {
	rootCmd.AddCommand(pullCmd)

	pullCmd.Flags().StringVar(&pullURL, "url", "", "Feed base URL (default from config)")
	pullCmd.Flags().StringVar(&pullAPIKey, "api-key", "", "Feed API key (default from config)")
	pullCmd.Flags().StringVar(&pullTag, "tag", "", "Only pull cases carrying this tag (default from config)")
	pullCmd.Flags().StringVar(&pullActor, "actor", "feed-pull", "Actor recorded in the audit trail")
}

func runPull(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	config := GetConfig()
	logger := log.New(os.Stderr, "[pull] ", log.LstdFlags)

	baseURL := firstNonEmpty(pullURL, config.Feed.URL)
	if baseURL == "" {
		return fmt.Errorf("no feed URL configured (set feed.url or pass --url)")
	}

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

	client := ingest.NewFeedClient(ingest.FeedOptions{
		BaseURL: baseURL,
		APIKey:  firstNonEmpty(pullAPIKey, config.Feed.APIKey),
		Tag:     firstNonEmpty(pullTag, config.Feed.Tag),
		Logger:  logger,
	})

	records, err := client.Pull(ctx)
	if err != nil {
		return fmt.Errorf("feed pull failed: %w", err)
	}
	if len(records) == 0 {
		logger.Println("Feed returned no matching cases")
		return nil
	}

	result, err := svc.ImportRecords(ctx, records, pullActor)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	for _, e := range result.Errors {
		logger.Printf("case rejected: %v", e)
	}
	logger.Printf("Feed import done: added=%d skipped=%d", result.Added, result.Skipped)
	return nil
}
