// Package main provides the entry point for the amanidx CLI.
package main

import (
	"fmt"
	"os"

	"github.com/Aman-CERP/amanidx/cmd/amanidx/cmd"
	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if !cmd.Reported(err) {
			_, _ = fmt.Fprint(os.Stderr, amerrors.FormatForCLI(err))
		}
		os.Exit(1)
	}
}
