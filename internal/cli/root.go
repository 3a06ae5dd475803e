package cli

import (
	"errors"
	"fmt"

	"github.com/adsrocket/adsrocket/internal/cli/cmd"
	"github.com/adsrocket/adsrocket/internal/output"
	"github.com/spf13/cobra"
)

const appName = "adsrocket"

// Version is overridden at build time with -ldflags "-X".
var Version = "dev"

type GlobalFlags struct {
	Profile string
	Output  string
	Debug   bool
	Config  string
}

// Execute runs the command tree and returns an *ExitError for any failure.
func Execute() error {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return err
		}
		return WrapExit(ExitCodeFor(err), err)
	}
	return nil
}

func NewRootCommand() *cobra.Command {
	flags := &GlobalFlags{}
	runtime := cmd.Runtime{
		Profile: &flags.Profile,
		Output:  &flags.Output,
		Debug:   &flags.Debug,
		Config:  &flags.Config,
	}

	root := &cobra.Command{
		Use:               appName,
		Short:             "Ads Rocket",
		Long:              "Ads Rocket ranks Meta ads by purchases and ROAS, manages campaigns and sends a daily Telegram report.",
		Version:           Version,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: validateGlobalFlags(flags),
	}

	root.SetVersionTemplate("{{.Version}}\n")

	root.PersistentFlags().StringVar(&flags.Profile, "profile", "", "Auth profile name, default from config")
	root.PersistentFlags().StringVar(&flags.Output, "output", output.FormatJSON, "Output format: json|jsonl|table|csv")
	root.PersistentFlags().BoolVar(&flags.Debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flags.Config, "config", "", "Config file path, default $ADSROCKET_CONFIG or ~/.adsrocket/config.yaml")

	root.AddCommand(cmd.NewAuthCommand(runtime))
	root.AddCommand(cmd.NewPerformanceCommand(runtime))
	root.AddCommand(cmd.NewEntityCommand(runtime))
	root.AddCommand(cmd.NewCampaignCommand(runtime))
	root.AddCommand(cmd.NewReportCommand(runtime))
	root.AddCommand(cmd.NewServeCommand(runtime))
	return root
}

func validateGlobalFlags(flags *GlobalFlags) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, _ []string) error {
		switch flags.Output {
		case output.FormatJSON, output.FormatJSONL, output.FormatTable, output.FormatCSV:
			return nil
		default:
			return WrapExit(ExitCodeInput, fmt.Errorf("invalid --output value %q; expected json|jsonl|table|csv", flags.Output))
		}
	}
}
