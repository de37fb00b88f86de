package main

import (
	"fmt"
	"os"

	"github.com/psantana5/perfee/cmd/perfee-bench/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
