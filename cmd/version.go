package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/chainsmoker-project/chainsmoker/internal/tactic"
)

var (
	appVersion string
	buildTime  string
)

// SetVersion sets version/build metadata and wires Cobra's --version flag.
func SetVersion(v, bt string) {
	appVersion = v
	buildTime = bt
	// Enable --version flag output via Cobra when Version is non-empty
	rootCmd.Version = v
}

// versionCmd prints detailed version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		v := appVersion
		if v == "" {
			v = "dev"
		}
		fmt.Printf("Chainsmoker %s (%s/%s)\n", v, runtime.GOOS, runtime.GOARCH)
		if buildTime != "" {
			fmt.Printf("Build Time: %s\n", buildTime)
		}
		config := GetConfig()
		fmt.Printf("Database:   %s\n", config.Database.Path)
		if config.Redis.URL != "" {
			fmt.Printf("Change bus: %s\n", config.Redis.URL)
		} else {
			fmt.Printf("Change bus: disabled\n")
		}
		axis := tactic.All()
		fmt.Printf("Tactics:    %d (%s ... %s)\n", tactic.Count(), axis[0], axis[len(axis)-1])
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}