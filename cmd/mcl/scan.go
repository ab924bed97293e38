package main

import (
	"context"
	"fmt"

	"github.com/franz/music-cleanup/internal/discover"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var scanCmd = &cobra.Command{
	Use:   "scan [source...]",
	Short: "Discover audio files without analyzing them",
	RunE:  runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	sources := args
	if len(sources) == 0 {
		sources = viper.GetStringSlice("source_roots")
	}
	if len(sources) == 0 {
		return fmt.Errorf("no source roots given")
	}

	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	logger := newEventLogger()
	if logger != nil {
		defer logger.Close()
	}

	producer := discover.New(&discover.Config{
		Store:          s,
		Extensions:     viper.GetStringSlice("supported_extensions"),
		ProtectedRoots: viper.GetStringSlice("protected_roots"),
		MinSizeBytes:   viper.GetInt64("min_size_bytes"),
		MaxSizeBytes:   viper.GetInt64("max_size_bytes"),
		BatchSize:      viper.GetInt("batch_size"),
		Logger:         logger,
	})

	result, err := producer.Discover(context.Background(), sources)
	if err != nil {
		return err
	}

	fmt.Printf("Discovered %d new files (%d already known, %d errors)\n",
		result.FilesDiscovered, result.FilesSkipped, len(result.Errors))
	return nil
}
