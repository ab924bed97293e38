package main

import (
	"fmt"

	"github.com/franz/music-cleanup/internal/txn"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Roll back incomplete transactions from a crashed run",
	Long: `recover reads the last checkpoint, rolls back every transaction left
open or committing by a previous run, and reports where the pipeline
stopped. A subsequent clean resumes from that point.`,
	RunE: runRecover,
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}

func runRecover(cmd *cobra.Command, args []string) error {
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

	recovered, err := manager.RecoverOpen()
	if err != nil {
		return err
	}

	cp, err := s.LatestCheckpoint()
	if err != nil {
		return err
	}

	fmt.Printf("Rolled back %d incomplete transactions\n", recovered)
	if cp != nil {
		fmt.Printf("Last checkpoint: phase %s, batch %d (checkpoint id %d)\n",
			cp.Phase, cp.LastBatchID, cp.ID)
		fmt.Println("Run 'mcl clean' to resume from here")
	} else {
		fmt.Println("No checkpoint found; nothing to resume")
	}
	return nil
}
