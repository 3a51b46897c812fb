package cmd

import (
	"fmt"
	"github.com/spf13/cobra"
	"meetmate-worker/config"
	"meetmate-worker/errs"
	server2 "meetmate-worker/server"
)

func run(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "run a single pipeline pass and print its report",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := server2.SetupLogger(config)
			app, err := server2.NewApp(ctx, config)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.Runner.RunOnce(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "transcribed=%d summarized=%d published=%d failed=%d skipped=%d\n",
				report.Transcribed, report.Summarized, report.Published, report.Failed, report.Skipped)
			for _, f := range report.Failures() {
				fmt.Fprintf(out, "  %s/%s at %s: [%s] %v\n", f.Platform, f.MeetingID, f.From, errs.Kind(f.Err), f.Err)
			}
			return nil
		},
	}
}
