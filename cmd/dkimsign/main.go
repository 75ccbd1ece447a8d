package main

import (
	"os"

	"github.com/synqronlabs/dkimsign/cmd/dkimsign/cli"
)

func main() {
	if err := cli.New().Execute(); err != nil {
		os.Exit(1)
	}
}
