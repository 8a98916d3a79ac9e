package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ILLUVRSE/resource-selector/internal/service"
)

const (
	ExitSuccess    = 0
	ExitNoResource = 1 // selection ran but nothing matched
	ExitError      = 2
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, service.ErrNoSuitableResource) {
			os.Exit(ExitNoResource)
		}
		os.Exit(ExitError)
	}
}
