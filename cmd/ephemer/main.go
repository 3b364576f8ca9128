package main

import (
	"os"

	"github.com/ephemerchat/ephemer/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
