// Package main provides the opal binary entry point.
// Opal is an engineering knowledge graph server exposed over MCP stdio:
// typed nodes and relationships with full audit history, consistency
// checking, and a phase-gated planning hierarchy.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/opal-se/opal/internal/config"
	"github.com/opal-se/opal/internal/server"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "opal",
		Short:        "Engineering knowledge graph MCP server",
		SilenceUsage: true,
	}
	cmd.AddCommand(serveCmd(), versionCmd())
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the MCP transport; everything else goes
			// to stderr.
			log.SetOutput(os.Stderr)

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			s, cleanup, err := server.New(cfg)
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}
			defer cleanup()

			go func() {
				sig := make(chan os.Signal, 1)
				signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
				<-sig
				cleanup()
				os.Exit(0)
			}()

			return mcpserver.ServeStdio(s)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the opal version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("opal v%s\n", server.Version)
		},
	}
}
