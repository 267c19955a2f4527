// Package main provides the CLI entry point for clarify.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const (
	appName    = "clarify"
	appVersion = "0.1.0"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Enhance photos and videos",
		Long:          "clarify denoises, sharpens and tone-adjusts photos, and re-encodes videos to AV1 with enhanced frames.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newPhotoCmd(),
		newVideoCmd(),
		newProfilesCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, appVersion)
			},
		},
	)
	return root
}
