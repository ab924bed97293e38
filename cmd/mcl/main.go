package main

import (
	"fmt"
	"os"

	"github.com/franz/music-cleanup/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "mcl",
		Short: "Music Cleanup - fingerprint, deduplicate and organize large music libraries",
		Long: `mcl is a streaming music-library cleanup engine. It discovers audio
files across chaotic source trees, fingerprints and quality-scores them,
groups duplicates, and atomically relocates the best version of each
recording into a genre/decade-organized target tree. Originals are never
deleted unless move mode is explicitly configured, and every filesystem
mutation goes through a logged, recoverable transaction.`,
		Version: Version,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/mcl.yaml)")
	rootCmd.PersistentFlags().String("db", "music_cleanup.db", "unified state database file")
	rootCmd.PersistentFlags().String("workspace", ".", "workspace directory holding the database and reports")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")
	rootCmd.PersistentFlags().Bool("dry-run", false, "plan transactions but perform nothing")

	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	viper.BindPFlag("dry_run", rootCmd.PersistentFlags().Lookup("dry-run"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("mcl")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("MCL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}

	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
