// ABOUTME: Main entry point for the scanseal CLI application
// ABOUTME: Sets up the root command and executes the CLI
package main

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/scanseal/scanseal/internal/cmd"
	"github.com/scanseal/scanseal/internal/cmd/attest"
	"github.com/scanseal/scanseal/internal/cmd/auth"
	"github.com/scanseal/scanseal/internal/cmd/verify"
)

var (
	// Global flags
	configPath string
	verbose    bool
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "scanseal",
	Short: "Provenance attestation for security scan results",
	Long: `Scanseal generates, signs, and verifies SLSA provenance attestations
for security scan result files.

Attestations record the subject file digests, scan parameters, and CI
builder identity. Signing uses the keyless Sigstore flow; verification
recomputes digests, checks the signature bundle, and runs tamper
detection heuristics.`,
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging (debug level)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Enable quiet mode (warnings and errors only)")
}

func main() {
	// Initialize logger based on flags
	var logger *pterm.Logger
	if quiet {
		logger = pterm.DefaultLogger.WithTime(false).WithLevel(pterm.LogLevelWarn)
	} else if verbose {
		logger = pterm.DefaultLogger.WithTime(false).WithLevel(pterm.LogLevelDebug)
	} else {
		logger = pterm.DefaultLogger.WithTime(false).WithLevel(pterm.LogLevelInfo)
	}

	// Configure logger to write to stderr to keep stdout clean
	logger = logger.WithWriter(os.Stderr)

	// Initialize command context with global flags
	cmdContext := &cmd.CommandContext{
		ConfigPath: configPath,
		Logger:     logger,
	}

	// Add commands with context
	rootCmd.AddCommand(attest.NewAttestCommand(cmdContext))
	rootCmd.AddCommand(verify.NewVerifyCommand(cmdContext))
	rootCmd.AddCommand(auth.NewAuthCommand(cmdContext))

	if err := rootCmd.Execute(); err != nil {
		logger.Error("Command execution failed", logger.Args("error", err))
		os.Exit(1)
	}
}
