package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/franz/music-cleanup/internal/reject"
	"github.com/franz/music-cleanup/internal/txn"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <rejection-id>",
	Short: "Restore a rejected file to its original path",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestore,
}

func init() {
	rootCmd.AddCommand(restoreCmd)
}

func runRestore(cmd *cobra.Command, args []string) error {
	rejectionID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid rejection id %q: %w", args[0], err)
	}

	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	manager := txn.New(&txn.Config{
		Store:          s,
		ProtectedRoots: viper.GetStringSlice("protected_roots"),
		HashAlgorithm:  viper.GetString("hash_algorithm"),
	})

	manifest := reject.New(s, manager, viper.GetString("rejected_root"))
	return manifest.Restore(context.Background(), rejectionID)
}
