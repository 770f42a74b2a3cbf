package main

import (
	"os"

	"github.com/p-n-ai/pai-guidance/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
