package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

func NewReportCommand(runtime Runtime) *cobra.Command {
	return newGroupCommand(
		"report",
		"Daily Telegram performance report",
		newReportRunCommand(runtime),
	)
}

func newReportRunCommand(runtime Runtime) *cobra.Command {
	var opts reportOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build and send one report now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithServices(cmd, runtime, "adsrocket report run", func(ctx context.Context, s *services) (any, error) {
				job, err := s.reportJob(ctx, opts)
				if err != nil {
					return nil, err
				}
				return job.Run(ctx)
			})
		},
	}
	cmd.Flags().StringVar(&opts.AccountID, "account-id", "", "Ad account id, default from profile")
	cmd.Flags().StringVar(&opts.ChatID, "chat-id", "", "Telegram chat id, default from profile")
	cmd.Flags().StringVar(&opts.Window, "window", "", "Preset or YYYY-MM-DD..YYYY-MM-DD, default from config")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Number of ads, default from config")
	return cmd
}
