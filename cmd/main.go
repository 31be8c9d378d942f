package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pannier-io/pannier/cmd/apikey"
	"github.com/pannier-io/pannier/cmd/serve"
	"github.com/pannier-io/pannier/cmd/sync"
	"github.com/pannier-io/pannier/cmd/version"
	"github.com/pannier-io/pannier/cmd/worker"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pannier",
		Short: "Pannier is a newsletter subscription API",
		Long:  "An HTTP JSON API that manages newsletter subscriptions on top of a CTMS contact store.",
	}

	rootCmd.AddCommand(serve.NewServeCommand())
	rootCmd.AddCommand(worker.NewWorkerCommand())
	rootCmd.AddCommand(sync.NewSyncCommand())
	rootCmd.AddCommand(apikey.NewAPIKeyCommand())
	rootCmd.AddCommand(version.NewVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
