package cli

import (
	"errors"
	"fmt"

	"github.com/adsrocket/adsrocket/internal/graph"
	"github.com/adsrocket/adsrocket/internal/window"
)

const (
	ExitCodeUnknown   = 1
	ExitCodeConfig    = 2
	ExitCodeAuth      = 3
	ExitCodeInput     = 4
	ExitCodeAPI       = 5
	ExitCodeRateLimit = 6
)

type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("command failed with exit code %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func WrapExit(code int, err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: code, Err: err}
}

type inputError interface {
	InputError() bool
}

type configError interface {
	ConfigError() bool
}

// ExitCodeFor classifies a command error. An ExitError anywhere in the chain
// keeps its own code.
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	var input inputError
	var cfg configError
	var apiErr *graph.APIError
	var transient *graph.TransientError
	switch {
	case errors.Is(err, graph.ErrRateLimited):
		return ExitCodeRateLimit
	case errors.Is(err, graph.ErrAuth):
		return ExitCodeAuth
	case errors.Is(err, window.ErrInvalid):
		return ExitCodeInput
	case errors.As(err, &input) && input.InputError():
		return ExitCodeInput
	case errors.As(err, &cfg) && cfg.ConfigError():
		return ExitCodeConfig
	case errors.As(err, &apiErr), errors.As(err, &transient):
		return ExitCodeAPI
	default:
		return ExitCodeUnknown
	}
}
