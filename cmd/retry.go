package cmd

import (
	"fmt"
	"github.com/spf13/cobra"
	"meetmate-worker/config"
	"meetmate-worker/constant"
	server2 "meetmate-worker/server"
)

func retry(config *config.Config) *cobra.Command {
	var stage string
	cmd := &cobra.Command{
		Use:   "retry <platform> <meeting_id>",
		Short: "rewind a recording to an earlier stage so the next pass redoes it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := constant.ParseStage(stage)
			if err != nil {
				return err
			}

			ctx := server2.SetupLogger(config)
			db, repo, err := server2.NewDatabase(ctx, config)
			if err != nil {
				return err
			}
			defer closeDB(db)

			rec, err := repo.FindByIdentity(ctx, constant.Platform(args[0]), args[1])
			if err != nil {
				return err
			}
			if err := repo.Rewind(ctx, rec.ID, to); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s rewound from %s to %s\n", rec.MeetingID, rec.Stage, to)
			return nil
		},
	}
	cmd.Flags().StringVar(&stage, "stage", constant.StageNew.String(), "stage to rewind to")
	return cmd
}
