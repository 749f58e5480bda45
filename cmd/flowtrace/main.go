package main

import (
	"os"

	"github.com/randalmurphal/flowtrace/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
