package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "chromium-pdf-api",
		Short: "Renders URLs to PDF by driving headless Chromium over CDP",
	}
	root.AddCommand(newServeCmd())
	return root
}
