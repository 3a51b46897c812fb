package cmd

import (
	"github.com/spf13/cobra"
	"meetmate-worker/config"
	server2 "meetmate-worker/server"
)

func server(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "start http server, pipeline loop and ingestion sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return server2.RunHttp(config)
		},
	}
}
