package main

import (
	"os"

	"github.com/majorcontext/tabclose/cmd/tabclose/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
