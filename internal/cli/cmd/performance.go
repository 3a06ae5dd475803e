package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

func NewPerformanceCommand(runtime Runtime) *cobra.Command {
	return newGroupCommand(
		"performance",
		"Read ranked ads and the campaign tree",
		newPerformanceTopCommand(runtime),
		newPerformanceCampaignsCommand(runtime),
		newPerformanceAdSetsCommand(runtime),
		newPerformanceAdsCommand(runtime),
	)
}

func newPerformanceTopCommand(runtime Runtime) *cobra.Command {
	var (
		accountID string
		windowRaw string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Top ads by purchases, then ROAS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithServices(cmd, runtime, "adsrocket performance top", func(ctx context.Context, s *services) (any, error) {
				account, err := s.accountID(accountID)
				if err != nil {
					return nil, err
				}
				spec, err := s.window(windowRaw)
				if err != nil {
					return nil, err
				}
				if limit <= 0 {
					limit = s.Config.ReportLimit()
				}
				return s.fetcher().FetchTopPerformers(ctx, account, s.Creds, spec, limit)
			})
		},
	}
	cmd.Flags().StringVar(&accountID, "account-id", "", "Ad account id, default from profile")
	cmd.Flags().StringVar(&windowRaw, "window", "", "Preset (today|yesterday|last_3d|last_4d|last_7d|maximum) or YYYY-MM-DD..YYYY-MM-DD")
	cmd.Flags().IntVar(&limit, "limit", 0, "Number of ads, default from config")
	return cmd
}

func newPerformanceCampaignsCommand(runtime Runtime) *cobra.Command {
	var (
		accountID string
		windowRaw string
	)
	cmd := &cobra.Command{
		Use:   "campaigns",
		Short: "List campaigns with metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithServices(cmd, runtime, "adsrocket performance campaigns", func(ctx context.Context, s *services) (any, error) {
				account, err := s.accountID(accountID)
				if err != nil {
					return nil, err
				}
				spec, err := s.window(windowRaw)
				if err != nil {
					return nil, err
				}
				return s.fetcher().Campaigns(ctx, account, s.Creds, spec)
			})
		},
	}
	cmd.Flags().StringVar(&accountID, "account-id", "", "Ad account id, default from profile")
	cmd.Flags().StringVar(&windowRaw, "window", "", "Preset or YYYY-MM-DD..YYYY-MM-DD")
	return cmd
}

func newPerformanceAdSetsCommand(runtime Runtime) *cobra.Command {
	var (
		campaignID string
		windowRaw  string
	)
	cmd := &cobra.Command{
		Use:   "adsets",
		Short: "List a campaign's ad sets with metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithServices(cmd, runtime, "adsrocket performance adsets", func(ctx context.Context, s *services) (any, error) {
				spec, err := s.window(windowRaw)
				if err != nil {
					return nil, err
				}
				return s.fetcher().AdSets(ctx, campaignID, s.Creds, spec)
			})
		},
	}
	cmd.Flags().StringVar(&campaignID, "campaign-id", "", "Campaign id")
	cmd.Flags().StringVar(&windowRaw, "window", "", "Preset or YYYY-MM-DD..YYYY-MM-DD")
	mustMarkFlagRequired(cmd, "campaign-id")
	return cmd
}

func newPerformanceAdsCommand(runtime Runtime) *cobra.Command {
	var (
		adSetID   string
		windowRaw string
	)
	cmd := &cobra.Command{
		Use:   "ads",
		Short: "List an ad set's ads with metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithServices(cmd, runtime, "adsrocket performance ads", func(ctx context.Context, s *services) (any, error) {
				spec, err := s.window(windowRaw)
				if err != nil {
					return nil, err
				}
				return s.fetcher().Ads(ctx, adSetID, s.Creds, spec)
			})
		},
	}
	cmd.Flags().StringVar(&adSetID, "adset-id", "", "Ad set id")
	cmd.Flags().StringVar(&windowRaw, "window", "", "Preset or YYYY-MM-DD..YYYY-MM-DD")
	mustMarkFlagRequired(cmd, "adset-id")
	return cmd
}
