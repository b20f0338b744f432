package main

import (
	"os"

	"github.com/GabrielNunesIT/cwlogs-connector/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
