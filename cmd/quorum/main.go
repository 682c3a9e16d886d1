// Package main implements the quorum CLI.
//
// quorum drives a project through its governed delivery pipeline, reading
// deliverables from .quorum/deliverables and recording every artifact,
// check result and consensus packet under .quorum.
//
// Usage:
//
//	# Start a pipeline in the current project
//	quorum run
//
//	# Continue after a crash, cancellation or integrity halt
//	quorum resume
//
//	# Inspect progress
//	quorum status
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/quorum/internal/orchestrator"
)

var (
	// projectDir is the project root every command operates on
	projectDir string
	// configPath overrides <project>/.quorum/config.yaml
	configPath string
	// version information (set via ldflags during build)
	version = "dev"
)

// Exit codes let scripts tell a stuck pipeline from a tampered one.
const (
	exitError     = 1
	exitStuck     = 2
	exitIntegrity = 3
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(exitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "quorum",
	Short: "Governed delivery pipeline with multi-reviewer consensus",
	Long: `quorum moves a project from intake to production through a fixed chain
of phases. Every phase exit is guarded by a gate: governance integrity,
structural validation, sandboxed checks and, for plans, a consensus vote
among independent reviewers.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project", "C", ".", "project root directory")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default <project>/.quorum/config.yaml)")
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrIntegrity):
		return exitIntegrity
	case errors.Is(err, orchestrator.ErrStuck):
		return exitStuck
	default:
		return exitError
	}
}
