package main

import (
	"fmt"
	"os"

	"telechat/internal/app"
)

func main() {
	if err := app.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "telechat: %v\n", err)
		os.Exit(1)
	}
}
