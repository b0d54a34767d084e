package main

import (
	"os"

	"github.com/ginja-dev/ginja/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
