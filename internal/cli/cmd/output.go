package cmd

import (
	"fmt"

	"github.com/adsrocket/adsrocket/internal/output"
	"github.com/spf13/cobra"
)

func writeSuccess(cmd *cobra.Command, runtime Runtime, commandName string, data any) error {
	return output.Write(cmd.OutOrStdout(), selectedOutputFormat(runtime), output.Success(commandName, data))
}

// writeCommandError prints the failure envelope on stderr and returns err
// marked as printed so main does not repeat it.
func writeCommandError(cmd *cobra.Command, runtime Runtime, commandName string, err error) error {
	if err == nil {
		return nil
	}
	if writeErr := output.Write(cmd.ErrOrStderr(), selectedOutputFormat(runtime), output.Failure(commandName, err)); writeErr != nil {
		return fmt.Errorf("%w (secondary output error: %v)", err, writeErr)
	}
	return &printedError{err: err}
}

func selectedOutputFormat(runtime Runtime) string {
	if runtime.Output == nil || *runtime.Output == "" {
		return output.FormatJSON
	}
	return *runtime.Output
}

type printedError struct {
	err error
}

func (e *printedError) Error() string {
	if e == nil || e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *printedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

func (e *printedError) AlreadyPrinted() bool {
	return true
}

// inputError marks flag and argument problems for the exit code mapping.
type inputError struct {
	err error
}

func newInputError(format string, args ...any) error {
	return &inputError{err: fmt.Errorf(format, args...)}
}

func (e *inputError) Error() string {
	return e.err.Error()
}

func (e *inputError) Unwrap() error {
	return e.err
}

func (e *inputError) InputError() bool {
	return true
}

type configError struct {
	err error
}

func (e *configError) Error() string {
	return e.err.Error()
}

func (e *configError) Unwrap() error {
	return e.err
}

func (e *configError) ConfigError() bool {
	return true
}
