package cmd

import (
	"context"

	"github.com/adsrocket/adsrocket/internal/marketing"
	"github.com/spf13/cobra"
)

func NewEntityCommand(runtime Runtime) *cobra.Command {
	return newGroupCommand(
		"entity",
		"Change the status or budget of a campaign, ad set or ad",
		newEntityStatusCommand(runtime),
		newEntityBudgetCommand(runtime),
	)
}

func newEntityStatusCommand(runtime Runtime) *cobra.Command {
	var input marketing.StatusInput
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Set ACTIVE or PAUSED",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithServices(cmd, runtime, "adsrocket entity status", func(ctx context.Context, s *services) (any, error) {
				return s.marketing().SetStatus(ctx, s.Creds, input)
			})
		},
	}
	cmd.Flags().StringVar(&input.EntityID, "id", "", "Campaign, ad set or ad id")
	cmd.Flags().StringVar(&input.Level, "level", "", "campaign|adset|ad")
	cmd.Flags().StringVar(&input.Status, "status", "", "ACTIVE|PAUSED")
	mustMarkFlagRequired(cmd, "id")
	mustMarkFlagRequired(cmd, "status")
	return cmd
}

func newEntityBudgetCommand(runtime Runtime) *cobra.Command {
	var input marketing.BudgetInput
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Set a daily or lifetime budget in minor units",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithServices(cmd, runtime, "adsrocket entity budget", func(ctx context.Context, s *services) (any, error) {
				return s.marketing().UpdateBudget(ctx, s.Creds, input)
			})
		},
	}
	cmd.Flags().StringVar(&input.EntityID, "id", "", "Campaign or ad set id")
	cmd.Flags().Int64Var(&input.DailyBudget, "daily-budget", 0, "Daily budget in minor units")
	cmd.Flags().Int64Var(&input.LifetimeBudget, "lifetime-budget", 0, "Lifetime budget in minor units")
	mustMarkFlagRequired(cmd, "id")
	cmd.MarkFlagsMutuallyExclusive("daily-budget", "lifetime-budget")
	return cmd
}
