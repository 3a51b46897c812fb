package cmd

import (
	"github.com/spf13/cobra"
	"gorm.io/gorm"
	"meetmate-worker/config"
)

func Root(config *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "meetmate-worker",
		Short:         "meeting recording transcription and summary worker",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.AddCommand(
		server(config),
		run(config),
		migrate(config),
		ingest(config),
		retry(config),
		report(config),
	)
	return rootCmd
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
