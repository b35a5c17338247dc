// Command bsbi builds and queries blocked sort-based inverted indices.
package main

import (
	"fmt"
	"os"

	"github.com/Adithya-Monish-Kumar-K/bsbi-search/cmd/bsbi/cmd"
	apperrors "github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "bsbi:", err)
		os.Exit(apperrors.ExitCode(err))
	}
}
