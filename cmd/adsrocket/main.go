package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/adsrocket/adsrocket/internal/cli"
)

func main() {
	err := cli.Execute()
	if err == nil {
		return
	}
	if !errorAlreadyPrinted(err) {
		fmt.Fprintln(os.Stderr, err.Error())
	}
	code := cli.ExitCodeUnknown
	var exitErr *cli.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.Code
	}
	os.Exit(code)
}

type alreadyPrintedError interface {
	AlreadyPrinted() bool
}

func errorAlreadyPrinted(err error) bool {
	var marker alreadyPrintedError
	return errors.As(err, &marker) && marker.AlreadyPrinted()
}
