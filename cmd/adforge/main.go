// cmd/adforge/main.go
//
// Entry point for the adforge CLI. All commands operate on the .adforge/
// directory in the current working directory; see internal/cli for the
// command set.
package main

import (
	"fmt"
	"os"

	"github.com/adforge/adforge/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "adforge: %v\n", err)
		os.Exit(1)
	}
}
