package main

import (
	"fmt"

	"github.com/franz/music-cleanup/internal/store"
	"github.com/franz/music-cleanup/internal/txn"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <transaction-id>",
	Short: "Reverse a transaction's performed operations",
	Args:  cobra.ExactArgs(1),
	RunE:  runRollback,
}

func init() {
	rootCmd.AddCommand(rollbackCmd)
}

func runRollback(cmd *cobra.Command, args []string) error {
	txnID := args[0]

	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	t, err := s.GetTxn(txnID)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("transaction %s not found", txnID)
	}
	if t.Status == store.TxnRolledBack {
		fmt.Printf("Transaction %s is already rolled back\n", txnID)
		return nil
	}

	manager := txn.New(&txn.Config{
		Store:          s,
		ProtectedRoots: viper.GetStringSlice("protected_roots"),
		HashAlgorithm:  viper.GetString("hash_algorithm"),
	})

	if err := manager.Rollback(txnID); err != nil {
		return err
	}

	fmt.Printf("Transaction %s rolled back\n", txnID)
	return nil
}
