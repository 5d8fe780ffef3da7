package main

import (
	"os"

	"github.com/nikhilbhutani/medqa-sft/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
