// ABOUTME: Verify command checking attestations against scan result files
// ABOUTME: Runs the sequential verification contract and renders the verdict
package verify

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scanseal/scanseal/internal/cmd"
	"github.com/scanseal/scanseal/internal/config"
	"github.com/scanseal/scanseal/internal/signer"
	"github.com/scanseal/scanseal/internal/tamper"
	"github.com/scanseal/scanseal/internal/verify"
)

type verifyFlags struct {
	signature        string
	history          []string
	noTamperCheck    bool
	maxAgeDays       int
	maxDurationHours int
	staging          bool
	rekorURL         string
	jsonOutput       bool
}

func NewVerifyCommand(ctx *cmd.CommandContext) *cobra.Command {
	flags := &verifyFlags{}

	verifyCmd := &cobra.Command{
		Use:   "verify [SCAN_RESULT_FILE] [ATTESTATION_FILE]",
		Short: "Verify an attestation against a scan result file",
		Long: `Verify a provenance attestation against its scan result file.

The verification checks the attestation structure, recomputes every
recorded subject digest, optionally verifies the Sigstore signature
bundle, and runs tamper detection heuristics. The command exits
non-zero when the attestation is invalid.

Example:
  scanseal verify results.json results.json.attestation.json \
    --signature results.json.attestation.json.sigstore.json`,
		Args: cobra.ExactArgs(2),
		Run: func(cobraCmd *cobra.Command, args []string) {
			subjectPath, attestationPath := args[0], args[1]

			cfg := loadConfig(ctx)
			result := runVerify(subjectPath, attestationPath, flags, cfg, ctx)

			jsonOutput := flags.jsonOutput
			if !cobraCmd.Flags().Changed("json") {
				jsonOutput = cfg.Output.Format == "json"
			}

			if jsonOutput {
				encoded, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					ctx.Logger.Error("Failed to encode result", ctx.Logger.Args("error", err))
					os.Exit(1)
				}
				fmt.Println(string(encoded))
			} else {
				fmt.Print(verify.FormatVerificationResult(result))
			}

			if !result.IsValid {
				os.Exit(1)
			}
		},
	}

	verifyCmd.Flags().StringVar(&flags.signature, "signature", "", "Sigstore signature bundle path (skips signature verification when omitted)")
	verifyCmd.Flags().StringArrayVar(&flags.history, "history", nil, "Historical attestation for lineage checks (repeatable)")
	verifyCmd.Flags().BoolVar(&flags.noTamperCheck, "no-tamper-check", false, "Skip tamper detection heuristics")
	verifyCmd.Flags().IntVar(&flags.maxAgeDays, "max-age-days", 0, "Maximum attestation age before flagging (0 uses configuration)")
	verifyCmd.Flags().IntVar(&flags.maxDurationHours, "max-duration-hours", 0, "Maximum plausible scan duration (0 uses configuration)")
	verifyCmd.Flags().BoolVar(&flags.staging, "staging", false, "Derive log entry URLs from the Sigstore staging infrastructure")
	verifyCmd.Flags().StringVar(&flags.rekorURL, "rekor-url", "", "Transparency log endpoint override")
	verifyCmd.Flags().BoolVar(&flags.jsonOutput, "json", false, "Emit the verification result as JSON")

	return verifyCmd
}

func runVerify(subjectPath, attestationPath string, flags *verifyFlags, cfg *config.Config, ctx *cmd.CommandContext) *verify.VerificationResult {
	detectorOpts := tamper.DefaultDetectorOpts().
		WithMaxAgeDays(resolveInt(flags.maxAgeDays, cfg.Verification.MaxAgeDays)).
		WithMaxDurationHours(resolveInt(flags.maxDurationHours, cfg.Verification.MaxDurationHours)).
		WithAllowBuilderVersionChange(cfg.Verification.AllowBuilderVersionChange)

	rekorURL := flags.rekorURL
	if rekorURL == "" && cfg.Attestation.RekorURL != "" {
		rekorURL = cfg.Attestation.RekorURL
	}
	if rekorURL == "" {
		rekorURL = signer.DefaultRekorURL
		if flags.staging || cfg.Attestation.Staging {
			rekorURL = signer.StagingRekorURL
		}
	}

	verifierOpts := verify.DefaultVerifierOpts().
		WithTamperDetection(!flags.noTamperCheck && cfg.Verification.TamperDetection).
		WithDetectorOpts(detectorOpts).
		WithRekorURL(rekorURL)

	verifier := verify.NewVerifier(verifierOpts, ctx.Logger)
	return verifier.Verify(subjectPath, attestationPath, flags.signature, flags.history)
}

func loadConfig(ctx *cmd.CommandContext) *config.Config {
	configOpts := config.DefaultConfigOpts().WithCreateIfMissing(false)
	if ctx.ConfigPath != "" {
		configOpts = configOpts.WithConfigPath(ctx.ConfigPath)
	}
	cfg, _, err := config.NewConfigManager(configOpts).LoadConfig()
	if err != nil {
		ctx.Logger.Debug("No configuration loaded, using defaults", ctx.Logger.Args("error", err))
		return config.DefaultConfig()
	}
	return cfg
}

func resolveInt(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}
