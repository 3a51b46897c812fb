package cmd

import (
	"fmt"
	"github.com/spf13/cobra"
	"meetmate-worker/config"
	report2 "meetmate-worker/report"
	server2 "meetmate-worker/server"
	"time"
)

func report(config *config.Config) *cobra.Command {
	var since, out string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "print daily token usage and cost",
		RunE: func(cmd *cobra.Command, args []string) error {
			from := time.Now().UTC().AddDate(0, 0, -30)
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("--since: %w", err)
				}
				from = t
			}

			ctx := server2.SetupLogger(config)
			db, repo, err := server2.NewDatabase(ctx, config)
			if err != nil {
				return err
			}
			defer closeDB(db)

			metrics, err := repo.ListMetrics(ctx, from)
			if err != nil {
				return err
			}
			rows := report2.Daily(metrics)

			if err := report2.WriteTable(cmd.OutOrStdout(), rows); err != nil {
				return err
			}
			if out != "" {
				if err := report2.WriteExcel(out, rows); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "first day to include (YYYY-MM-DD), default 30 days ago")
	cmd.Flags().StringVar(&out, "out", "", "also write an Excel workbook to this path")
	return cmd
}
