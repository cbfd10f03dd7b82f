package main

import (
	"fmt"
	"os"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "enrollhub: %v\n", err)
		os.Exit(1)
	}
}
