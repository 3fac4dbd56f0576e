package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile  string
	dbPath   string
	redisURL string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chainsmoker",
	Short: "Attack-chain timeline tracker for red team operations",
	Long: `Chainsmoker tracks red team activity as attack chains on a shared
timeline. Events are tagged with their MITRE ATT&CK tactic and drawn in
two views: a compact view of only the tactics seen so far, and a full
view of the complete tactic ladder with untouched rungs highlighted.

Features:
- ATT&CK-tactic tagged events grouped into attack chains
- Compact and full timeline figures with zoom-preserving toggle
- Spreadsheet (CSV export) and case-management feed import
- SQLite storage with an append-only audit trail
- Redis Streams change notifications for downstream consumers`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.chainsmoker.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "./data/chainsmoker.db", "SQLite database path")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis", "", "Redis connection URL (empty disables the bus)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	// Bind flags to viper
	viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("redis.url", rootCmd.PersistentFlags().Lookup("redis"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".chainsmoker" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".chainsmoker")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	// Set defaults
	viper.SetDefault("database.path", "./data/chainsmoker.db")
	viper.SetDefault("redis.url", "")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("http.bind", "127.0.0.1:8080")
	viper.SetDefault("http.token", "")
	viper.SetDefault("http.rps", 0)
	viper.SetDefault("http.burst", 0)
	viper.SetDefault("import.dir", "./data/imports")
	viper.SetDefault("feed.url", "")
	viper.SetDefault("feed.api_key", "")
	viper.SetDefault("feed.tag", "chainsmoker")
}

// GetConfig returns the current configuration values
func GetConfig() Config {
	return Config{
		Database: DatabaseConfig{
			Path: viper.GetString("database.path"),
		},
		Redis: RedisConfig{
			URL: viper.GetString("redis.url"),
		},
		Log: LogConfig{
			Level: viper.GetString("log.level"),
		},
		HTTP: HTTPConfig{
			Bind:  viper.GetString("http.bind"),
			Token: viper.GetString("http.token"),
			RPS:   viper.GetInt("http.rps"),
			Burst: viper.GetInt("http.burst"),
		},
		Import: ImportConfig{
			Dir: viper.GetString("import.dir"),
		},
		Feed: FeedConfig{
			URL:    viper.GetString("feed.url"),
			APIKey: viper.GetString("feed.api_key"),
			Tag:    viper.GetString("feed.tag"),
		},
	}
}

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Import   ImportConfig   `mapstructure:"import"`
	Feed     FeedConfig     `mapstructure:"feed"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type HTTPConfig struct {
	Bind  string `mapstructure:"bind"`
	Token string `mapstructure:"token"`
	RPS   int    `mapstructure:"rps"`
	Burst int    `mapstructure:"burst"`
}

type ImportConfig struct {
	Dir string `mapstructure:"dir"`
}

type FeedConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
	Tag    string `mapstructure:"tag"`
}
