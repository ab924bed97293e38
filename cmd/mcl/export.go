package main

import (
	"github.com/franz/music-cleanup/internal/reject"
	"github.com/franz/music-cleanup/internal/txn"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var exportCmd = &cobra.Command{
	Use:   "export-manifest",
	Short: "Re-export the rejection manifest JSON and CSV sidecars",
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
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
	return manifest.Export()
}
