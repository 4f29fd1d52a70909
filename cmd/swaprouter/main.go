package main

import (
	"fmt"
	"os"

	"github.com/olyamironova/swap-router/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
