package main

import (
	"fmt"
	"os"

	"github.com/tobitege/tiny-clips-mac/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tinyclips: %v\n", err)
		os.Exit(1)
	}
}
