package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chainsmoker-project/chainsmoker/internal/store"
	"github.com/chainsmoker-project/chainsmoker/internal/tactic"
	"github.com/chainsmoker-project/chainsmoker/internal/timeline"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List events, chains and audit entries",
	Long: `List timeline data from the database in a simple text format.
This command works in any terminal environment and provides an
alternative to the browser when terminal capabilities are limited.

Examples:
  # List all events in plot order
  chainsmoker list events

  # List events of one attack chain
  chainsmoker list events --chain "Chain Alpha"

  # List attack chains with their tactic coverage
  chainsmoker list chains

  # List the most recent audit entries
  chainsmoker list audit --limit 10`,
	RunE: runList,
}

var (
	listChain string
	listLimit int
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVar(&listChain, "chain", "", "Only show events of this attack chain")
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum number of audit entries to show")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	config := GetConfig()

	st, err := store.NewStore(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	targetType := "events"
	if len(args) > 0 {
		targetType = strings.ToLower(args[0])
	}

	switch targetType {
	case "events":
		return listEvents(ctx, st, listChain)
	case "chains":
		return listChains(ctx, st)
	case "audit":
		return listAudit(ctx, st, listLimit)
	default:
		return fmt.Errorf("unknown list type: %s (use 'events', 'chains' or 'audit')", targetType)
	}
}

func listEvents(ctx context.Context, st *store.Store, chain string) error {
	events, err := st.ListEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to list events: %w", err)
	}
	if chain != "" {
		filtered := events[:0]
		for _, ev := range events {
			if ev.ChainID == chain {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}

	if len(events) == 0 {
		fmt.Println("No events found.")
		return nil
	}

	fmt.Printf("Found %d events:\n\n", len(events))
	for i, ev := range events {
		fmt.Printf("%d. [%s] %s -> %s\n", i+1, ev.Tactic, ev.SourceHost, ev.DestHost)
		fmt.Printf("   ID: %d\n", ev.ID)
		fmt.Printf("   Time: %s\n", ev.Timestamp)
		if !ev.Plottable {
			fmt.Printf("   (timestamp not plottable)\n")
		}
		if ev.ChainID != "" {
			fmt.Printf("   Chain: %s\n", ev.ChainID)
		}
		if ev.Operator != "" {
			fmt.Printf("   Operator: %s\n", ev.Operator)
		}
		if ev.Details != "" {
			fmt.Printf("   Details: %s\n", ev.Details)
		}
		fmt.Println()
	}
	return nil
}

func listChains(ctx context.Context, st *store.Store) error {
	events, err := st.ListEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to list events: %w", err)
	}
	figs := timeline.Build(events)

	if len(figs.Compact.Traces) == 0 {
		fmt.Println("No attack chains found.")
		return nil
	}

	fmt.Printf("Found %d attack chains:\n\n", len(figs.Compact.Traces))
	for i, tr := range figs.Compact.Traces {
		seen := make(map[string]bool)
		for _, p := range tr.Points {
			if p != nil {
				seen[p.Tactic] = true
			}
		}
		covered := tactic.Visible(seen)
		fmt.Printf("%d. %s\n", i+1, tr.ChainID)
		fmt.Printf("   Events: %d\n", countPoints(tr))
		fmt.Printf("   Tactics: %s\n", strings.Join(covered, ", "))
		fmt.Println()
	}

	fmt.Printf("Tactic coverage: %d/%d", len(figs.Visible), len(figs.All))
	if len(figs.Missing) > 0 {
		fmt.Printf("  (missing: %s)", strings.Join(figs.Missing, ", "))
	}
	fmt.Println()
	return nil
}

func countPoints(tr timeline.Trace) int {
	n := 0
	for _, p := range tr.Points {
		if p != nil {
			n++
		}
	}
	return n
}

func listAudit(ctx context.Context, st *store.Store, limit int) error {
	entries, err := st.ListAudit(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list audit entries: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No audit entries found.")
		return nil
	}

	fmt.Printf("Showing %d audit entries (newest first):\n\n", len(entries))
	for i, e := range entries {
		fmt.Printf("%d. %s by %s\n", i+1, e.Action, e.Actor)
		if e.EventID > 0 {
			fmt.Printf("   Event: %d\n", e.EventID)
		}
		for k, v := range e.Details {
			fmt.Printf("   %s: %s\n", k, v)
		}
		fmt.Printf("   At: %s\n", e.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Println()
	}
	return nil
}
