package cmd

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current status of a request",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		req, err := readRequest(requestPath)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		hyperbridge, spokes, err := connectClients(ctx, cfg)
		if err != nil {
			return err
		}
		status, err := newTracker(spokes, hyperbridge, cfg, req).QueryStatus(ctx, req.Request)
		if err != nil {
			return err
		}
		printJSON(status)
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&requestPath, "request", "request.json", "Path to the request file")
}
