package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Run the full pipeline: discover, analyze, filter, group, organize",
	RunE:  runClean,
}

func init() {
	cleanCmd.Flags().StringSlice("source", nil, "source roots to scan (overrides config)")
	cleanCmd.Flags().String("target", "", "target root for the organized tree")
	cleanCmd.Flags().String("rejected", "", "rejected root for quarantined and duplicate files")
	cleanCmd.Flags().Int("batch-size", 0, "files per batch")
	cleanCmd.Flags().Int("workers", 0, "worker pool size per stage")

	viper.BindPFlag("source_roots", cleanCmd.Flags().Lookup("source"))
	viper.BindPFlag("target_root", cleanCmd.Flags().Lookup("target"))
	viper.BindPFlag("rejected_root", cleanCmd.Flags().Lookup("rejected"))
	viper.BindPFlag("batch_size", cleanCmd.Flags().Lookup("batch-size"))
	viper.BindPFlag("max_workers", cleanCmd.Flags().Lookup("workers"))

	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	if len(viper.GetStringSlice("source_roots")) == 0 {
		return fmt.Errorf("no source roots configured (use --source or source_roots in config)")
	}
	if viper.GetString("target_root") == "" {
		return fmt.Errorf("no target root configured (use --target or target_root in config)")
	}
	if viper.GetString("rejected_root") == "" {
		return fmt.Errorf("no rejected root configured (use --rejected or rejected_root in config)")
	}

	s, dbPath, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	logger := newEventLogger()
	if logger != nil {
		defer logger.Close()
	}

	orchestrator, checkpointer := buildOrchestrator(s, dbPath, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	checkpointer.NotifyShutdown(cancel)

	recordEffectiveConfig(s)

	exitCode, err := orchestrator.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Pipeline error: %v\n", err)
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}

// recordEffectiveConfig snapshots the settings this run used
func recordEffectiveConfig(s interface {
	SetSystemConfig(key, value string) error
}) {
	for _, key := range []string{
		"target_root", "rejected_root", "duplicate_action", "handle_conflicts",
		"batch_size", "max_workers", "duplicate_similarity_threshold",
		"min_health_score", "dry_run",
	} {
		s.SetSystemConfig(key, viper.GetString(key))
	}
}
