package main

import (
	"os"

	"github.com/ordesk/ordesk/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
