package main

import (
	"fmt"
	"os"

	"telechat/internal/app"
)

func main() {
	if err := app.NewClientCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
