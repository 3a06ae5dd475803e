package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// missingSubcommandError is returned when a command group runs on its own.
// Usage has already been written to stderr by then.
type missingSubcommandError struct {
	path string
}

func (e *missingSubcommandError) Error() string {
	return e.path + " requires a subcommand"
}

func (e *missingSubcommandError) AlreadyPrinted() bool { return true }

func (e *missingSubcommandError) InputError() bool { return true }

// newGroupCommand builds a parent command whose only job is to hold
// subcommands. Run bare, it prints usage to stderr and fails.
func newGroupCommand(use string, short string, children ...*cobra.Command) *cobra.Command {
	group := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE:  requireSubcommand,
	}
	group.AddCommand(children...)
	return group
}

func requireSubcommand(cmd *cobra.Command, _ []string) error {
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	err := &missingSubcommandError{path: cmd.CommandPath()}
	stderr := cmd.ErrOrStderr()
	_, _ = fmt.Fprintln(stderr, err.Error())
	_, _ = fmt.Fprint(stderr, cmd.UsageString())
	return err
}
