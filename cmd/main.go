package main

import (
	"os"

	"wildlife-rewards-service/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
