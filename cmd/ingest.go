package cmd

import (
	"fmt"
	"github.com/spf13/cobra"
	"meetmate-worker/config"
	"meetmate-worker/constant"
	server2 "meetmate-worker/server"
	"meetmate-worker/service"
)

func ingest(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <platform> <meeting_id> <recording_url>",
		Short: "register a recording by hand",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := server2.SetupLogger(config)
			db, repo, err := server2.NewDatabase(ctx, config)
			if err != nil {
				return err
			}
			defer closeDB(db)

			rec, created, err := service.NewGateway(repo).Ingest(ctx, constant.Platform(args[0]), args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s stage=%s created=%t\n", rec.ID, rec.MeetingID, rec.Stage, created)
			return nil
		},
	}
}
