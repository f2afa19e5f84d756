package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/verifybot/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "verifybot: %v\n", err)
		os.Exit(1)
	}
}
