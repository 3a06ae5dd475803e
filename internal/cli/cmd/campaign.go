package cmd

import (
	"context"

	"github.com/adsrocket/adsrocket/internal/marketing"
	"github.com/spf13/cobra"
)

func NewCampaignCommand(runtime Runtime) *cobra.Command {
	return newGroupCommand(
		"campaign",
		"Campaign lifecycle commands",
		newCampaignCreateCommand(runtime),
	)
}

func newCampaignCreateCommand(runtime Runtime) *cobra.Command {
	var (
		input     marketing.CampaignCreateInput
		paramsRaw string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a campaign, paused unless --status says otherwise",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithServices(cmd, runtime, "adsrocket campaign create", func(ctx context.Context, s *services) (any, error) {
				params, err := parseKeyValueList(paramsRaw)
				if err != nil {
					return nil, err
				}
				accountID, err := s.accountID(input.AccountID)
				if err != nil {
					return nil, err
				}
				input.AccountID = accountID
				input.Params = params
				return s.marketing().CreateCampaign(ctx, s.Creds, input)
			})
		},
	}
	cmd.Flags().StringVar(&input.AccountID, "account-id", "", "Ad account id, default from profile")
	cmd.Flags().StringVar(&input.Name, "name", "", "Campaign name")
	cmd.Flags().StringVar(&input.Objective, "objective", "", "Objective, e.g. OUTCOME_SALES")
	cmd.Flags().StringVar(&input.Status, "status", "", "ACTIVE|PAUSED (default PAUSED)")
	cmd.Flags().Int64Var(&input.DailyBudget, "daily-budget", 0, "Daily budget in minor units")
	cmd.Flags().Int64Var(&input.LifetimeBudget, "lifetime-budget", 0, "Lifetime budget in minor units")
	cmd.Flags().StringSliceVar(&input.SpecialAdCategories, "special-ad-categories", nil, "Comma-separated special ad categories")
	cmd.Flags().StringVar(&paramsRaw, "params", "", "Extra fields as comma-separated key=value pairs")
	mustMarkFlagRequired(cmd, "name")
	mustMarkFlagRequired(cmd, "objective")
	cmd.MarkFlagsMutuallyExclusive("daily-budget", "lifetime-budget")
	return cmd
}
