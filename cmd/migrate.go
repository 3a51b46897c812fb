package cmd

import (
	"fmt"
	"github.com/spf13/cobra"
	"meetmate-worker/config"
	server2 "meetmate-worker/server"
)

func migrate(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := server2.NewDatabase(server2.SetupLogger(config), config)
			if err != nil {
				return err
			}
			defer closeDB(db)

			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}
