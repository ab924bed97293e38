package main

import (
	"fmt"

	"github.com/franz/music-cleanup/internal/report"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print run statistics, rejections and the needs-review queue",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().Bool("needs-review", false, "list the needs-review queue")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	s, dbPath, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	summary, err := report.Build(s)
	if err != nil {
		return err
	}
	summary.DatabasePath = dbPath
	summary.TargetRoot = viper.GetString("target_root")
	summary.RejectedRoot = viper.GetString("rejected_root")
	fmt.Print(summary.Render())

	if needsReview, _ := cmd.Flags().GetBool("needs-review"); needsReview {
		entries, err := s.GetNeedsReview()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("\nNeeds-review queue is empty")
			return nil
		}
		fmt.Println("\nNeeds-review queue:")
		for _, e := range entries {
			file, err := s.GetFileByID(e.FileID)
			if err != nil || file == nil {
				continue
			}
			fmt.Printf("  %6d  %-40s  %s\n", e.ID, e.Reason, file.Path)
		}
	}
	return nil
}
