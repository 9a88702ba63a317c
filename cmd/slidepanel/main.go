package main

import (
	"fmt"
	"os"

	"github.com/gep-landslides/slidepanel/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\nERROR: %s\n\n", err)
		os.Exit(1)
	}
}
