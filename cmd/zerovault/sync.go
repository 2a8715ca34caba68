package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zerovault/zerovault"
)

var (
	syncDBPath        string
	syncRemote        string
	syncPassphraseEnv string
	syncBatched       bool
	syncMaxBatchBytes int64
	syncChaosRate     float64
	syncChaosLatency  time.Duration
	syncWatch         time.Duration
)

var syncCmd = &cobra.Command{
	Use:   "sync --db <path> --remote <url>",
	Short: "Run one pull-merge-push cycle against a remote",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncDBPath, "db", "", "database path (falls back to --config's path)")
	syncCmd.Flags().StringVar(&syncRemote, "remote", "", "remote storage URL: memory://, file://, s3:// (falls back to --config's remote)")
	syncCmd.Flags().StringVar(&syncPassphraseEnv, "passphrase-env", "", "environment variable holding the encryption passphrase (falls back to --config's passphrase)")
	syncCmd.Flags().BoolVar(&syncBatched, "batched", false, "use the manifest+batch changelog layout instead of one-file-per-entry")
	syncCmd.Flags().Int64Var(&syncMaxBatchBytes, "max-batch-bytes", 0, "override the batch size cap (batched layout only; falls back to --config's max_batch_bytes)")
	syncCmd.Flags().Float64Var(&syncChaosRate, "chaos-failure-rate", 0, "inject transient remote failures at this rate [0,1], for testing against a flaky remote")
	syncCmd.Flags().DurationVar(&syncChaosLatency, "chaos-max-latency", 0, "inject up to this much latency per remote call (requires --chaos-failure-rate or nonzero latency to take effect)")
	syncCmd.Flags().DurationVar(&syncWatch, "watch", 0, "repeat the sync cycle at this interval instead of running once (falls back to --config's sync_interval); Ctrl+C stops it")
}

func runSync(cmd *cobra.Command, args []string) error {
	if syncDBPath == "" {
		syncDBPath = cfg.Path
	}
	if syncRemote == "" {
		syncRemote = cfg.Remote
	}
	if syncDBPath == "" {
		return fmt.Errorf("--db is required (or set path in --config)")
	}
	if syncRemote == "" {
		return fmt.Errorf("--remote is required (or set remote in --config)")
	}
	if syncMaxBatchBytes == 0 {
		syncMaxBatchBytes = cfg.MaxBatchBytes
	}

	db, err := zerovault.Open(syncDBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	var opts []zerovault.SyncOption
	passphrase := cfg.Passphrase
	if syncPassphraseEnv != "" {
		passphrase = os.Getenv(syncPassphraseEnv)
		if passphrase == "" {
			return fmt.Errorf("%s is unset or empty", syncPassphraseEnv)
		}
	}
	if passphrase != "" {
		opts = append(opts, zerovault.WithPassphrase(passphrase))
	}
	if syncBatched {
		opts = append(opts, zerovault.WithBatched(true))
	}
	if syncMaxBatchBytes > 0 {
		opts = append(opts, zerovault.WithMaxBatchBytes(syncMaxBatchBytes))
	}
	if syncChaosRate > 0 || syncChaosLatency > 0 {
		opts = append(opts, zerovault.WithChaos(0, syncChaosLatency, syncChaosRate))
	}

	sync, err := zerovault.NewSync(syncRemote, opts...)
	if err != nil {
		return fmt.Errorf("open remote: %w", err)
	}

	watch := syncWatch
	if watch == 0 {
		watch, err = cfg.SyncIntervalDuration()
		if err != nil {
			return err
		}
	}

	if watch == 0 {
		if err := sync.Sync(context.Background(), db); err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		fmt.Printf("synced %s against %s as replica %s\n", syncDBPath, syncRemote, db.ReplicaID())
		return nil
	}

	return runSyncLoop(db, sync, watch)
}

// runSyncLoop repeats sync.Sync on a ticker until Ctrl+C or SIGTERM,
// logging each cycle's outcome rather than exiting on the first
// transient failure (the orchestrator always retries cleanly from
// IDLE on its next call).
func runSyncLoop(db *zerovault.DB, sync *zerovault.Sync, interval time.Duration) error {
	fmt.Printf("watching %s against %s every %s as replica %s. Press Ctrl+C to stop.\n",
		syncDBPath, syncRemote, interval, db.ReplicaID())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runOnce := func() {
		if err := sync.Sync(context.Background(), db); err != nil {
			fmt.Fprintf(os.Stderr, "sync cycle failed: %v\n", err)
			return
		}
		fmt.Printf("sync cycle completed at %s\n", time.Now().UTC().Format(time.RFC3339))
	}

	runOnce()
	for {
		select {
		case <-sigCh:
			fmt.Println("shutting down")
			return nil
		case <-ticker.C:
			runOnce()
		}
	}
}
