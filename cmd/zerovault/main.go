// Command zerovault is the CLI front end for the zerovault store:
// run migrations, sync a database against a remote, or open an
// interactive SQL console.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zerovault/zerovault/internal/config"
	"github.com/zerovault/zerovault/internal/zvlog"
)

var (
	logLevel   string
	logJSON    bool
	configPath string

	// cfg holds defaults loaded from --config; subcommand flags that
	// were left at their zero value fall back to it.
	cfg = config.Default()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "zerovault",
	Short: "zerovault is a local-first reactive SQL store with object-storage sync",
	Long: `zerovault embeds a SQLite-backed SQL store with change tracking,
live query subscriptions, and CRDT-based multi-replica sync over plain
object storage (filesystem, S3, or memory).`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a zerovault.yaml config file; unset command flags fall back to its values")
	cobra.OnInitialize(loadConfig, initLogging)

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(replCmd)
}

// loadConfig populates cfg from --config, or leaves it at
// config.Default() when the flag is unset. Runs before initLogging so
// a config file's log settings can seed the logger when the
// corresponding flags weren't passed on the command line.
func loadConfig() {
	if configPath == "" {
		return
	}
	loaded, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg = loaded
	if !rootCmd.PersistentFlags().Changed("log-level") && cfg.Log.Level != "" {
		logLevel = cfg.Log.Level
	}
	if !rootCmd.PersistentFlags().Changed("log-json") {
		logJSON = cfg.Log.JSON
	}
}

func initLogging() {
	var level zvlog.Level
	switch logLevel {
	case "debug":
		level = zvlog.DebugLevel
	case "warn":
		level = zvlog.WarnLevel
	case "error":
		level = zvlog.ErrorLevel
	default:
		level = zvlog.InfoLevel
	}
	zvlog.Init(zvlog.Config{Level: level, JSON: logJSON, Output: os.Stderr})
}
