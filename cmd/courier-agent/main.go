// Package main запускает агент курьера службы доставки лекарств.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/mmeshcher/courier-agent/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.New(color.FgRed).Sprint("error:"), err)
		os.Exit(1)
	}
}
