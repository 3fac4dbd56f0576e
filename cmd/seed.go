package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/chainsmoker-project/chainsmoker/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed sample attack chains into the database",
	Long: `Seed sample attack-chain events into the SQLite database.
This is useful for local testing when the database is empty.`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	config := GetConfig()

	logger := log.New(cmd.OutOrStdout(), "[seed] ", log.LstdFlags)
	logger.Println("Seeding sample data...")

	st, err := store.NewStore(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	count, err := st.CountEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to count events: %w", err)
	}
	if count > 0 {
		logger.Printf("Database already has %d events, skipping", count)
		return nil
	}

	samples := []store.EventFields{
		{
			Timestamp:  "04/01/2025, 0830",
			Tactic:     "Initial Access",
			SourceHost: "203.0.113.44",
			DestHost:   "web-dmz-01",
			Details:    "Phish landed, beacon callback observed",
			Operator:   "alice",
			ChainID:    "Chain Alpha",
		},
		{
			Timestamp:  "04/01/2025, 0915",
			Tactic:     "Execution",
			SourceHost: "web-dmz-01",
			DestHost:   "web-dmz-01",
			Details:    "Stage two loader executed from temp",
			Operator:   "alice",
			ChainID:    "Chain Alpha",
		},
		{
			Timestamp:  "04/01/2025, 1040",
			Tactic:     "Lateral Movement",
			SourceHost: "web-dmz-01",
			DestHost:   "fs-internal-02",
			Details:    "SMB session with harvested creds",
			Operator:   "bob",
			ChainID:    "Chain Alpha",
		},
		{
			Timestamp:  "04/01/2025, 1315",
			Tactic:     "C2",
			SourceHost: "fs-internal-02",
			DestHost:   "203.0.113.44",
			Details:    "Long-haul channel established over 443",
			Operator:   "bob",
			ChainID:    "Chain Alpha",
		},
		{
			Timestamp:  "04/02/2025, 0800",
			Tactic:     "Initial Access",
			SourceHost: "198.51.100.7",
			DestHost:   "vpn-gw-01",
			Details:    "Password spray against VPN portal",
			Operator:   "carol",
			ChainID:    "Chain Bravo",
		},
		{
			Timestamp:  "04/02/2025, 1120",
			Tactic:     "Credential Access",
			SourceHost: "vpn-gw-01",
			DestHost:   "dc-01",
			Details:    "Kerberoast against service accounts",
			Operator:   "carol",
			ChainID:    "Chain Bravo",
		},
		{
			Timestamp:  "04/02/2025, 1550",
			Tactic:     "Exfiltration",
			SourceHost: "fs-internal-02",
			DestHost:   "198.51.100.7",
			Details:    "Staged archive pulled over HTTPS",
			Operator:   "carol",
			ChainID:    "Chain Bravo",
		},
	}

	for _, f := range samples {
		if _, err := st.AddEvent(ctx, f); err != nil {
			logger.Printf("Failed to seed event (%s / %s): %v", f.ChainID, f.Tactic, err)
		}
	}

	logger.Printf("Seeded %d events across 2 chains", len(samples))
	logger.Println("Seeding completed")
	return nil
}
