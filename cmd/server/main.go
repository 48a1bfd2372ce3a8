package main

import (
	"fmt"
	"os"

	"telechat/internal/app"
)

func main() {
	if err := app.NewServerCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
