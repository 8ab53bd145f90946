// ABOUTME: Attest command producing signed provenance for scan result files
// ABOUTME: Generates SLSA statements and optionally signs them through the keyless toolchain
package attest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"
	"github.com/spf13/cobra"

	"github.com/scanseal/scanseal/internal/cienv"
	"github.com/scanseal/scanseal/internal/cmd"
	"github.com/scanseal/scanseal/internal/config"
	"github.com/scanseal/scanseal/internal/metadata"
	"github.com/scanseal/scanseal/internal/provenance"
	"github.com/scanseal/scanseal/internal/signer"
)

type attestFlags struct {
	profile       string
	tools         []string
	targets       []string
	algorithms    []string
	output        string
	sign          bool
	auto          bool
	staging       bool
	fulcioURL     string
	rekorURL      string
	identityToken string
}

func NewAttestCommand(ctx *cmd.CommandContext) *cobra.Command {
	flags := &attestFlags{}

	attestCmd := &cobra.Command{
		Use:   "attest [SCAN_RESULT_FILE]",
		Short: "Generate a provenance attestation for a scan result file",
		Long: `Generate a SLSA provenance attestation for a scan result file and
optionally sign it with keyless Sigstore signing.

The attestation records the subject file digests, the scan parameters,
git context, and the CI builder identity. With --sign the statement is
signed through cosign and the signature bundle is written alongside it.

Example:
  scanseal attest results.json --profile deep --tool trivy@0.50.0 --sign`,
		Args: cobra.ExactArgs(1),
		Run: func(cobraCmd *cobra.Command, args []string) {
			subjectPath := args[0]

			if !shouldAttest(flags, ctx) {
				ctx.Logger.Info("Auto-attestation disabled, skipping",
					ctx.Logger.Args("subject", subjectPath))
				return
			}

			if err := runAttest(subjectPath, flags, ctx); err != nil {
				ctx.Logger.Error("Attestation failed", ctx.Logger.Args("error", err))
				os.Exit(1)
			}
		},
	}

	attestCmd.Flags().StringVar(&flags.profile, "profile", "", "Scan profile name recorded in the attestation")
	attestCmd.Flags().StringArrayVar(&flags.tools, "tool", nil, "Scan tool as name@version (repeatable)")
	attestCmd.Flags().StringArrayVar(&flags.targets, "target", nil, "Scan target recorded in the attestation (repeatable)")
	attestCmd.Flags().StringSliceVar(&flags.algorithms, "digest-algorithm", []string{"sha256"}, "Subject digest algorithms (sha256, sha384, sha512)")
	attestCmd.Flags().StringVarP(&flags.output, "output", "o", "", "Attestation output path (default: <subject>.attestation.json)")
	attestCmd.Flags().BoolVar(&flags.sign, "sign", false, "Sign the attestation with keyless Sigstore signing")
	attestCmd.Flags().BoolVar(&flags.auto, "auto", false, "Only attest when auto-attestation is enabled for this environment")
	attestCmd.Flags().BoolVar(&flags.staging, "staging", false, "Use the Sigstore staging infrastructure")
	attestCmd.Flags().StringVar(&flags.fulcioURL, "fulcio-url", "", "Certificate authority endpoint override")
	attestCmd.Flags().StringVar(&flags.rekorURL, "rekor-url", "", "Transparency log endpoint override")
	attestCmd.Flags().StringVar(&flags.identityToken, "identity-token", "", "Pre-acquired OIDC identity token")

	return attestCmd
}

// shouldAttest applies the auto-attestation precedence. A plain invocation is
// an explicit request; --auto defers the decision to the environment toggle
// and configuration, both gated on CI detection.
func shouldAttest(flags *attestFlags, ctx *cmd.CommandContext) bool {
	cfg := loadConfig(ctx)

	if !flags.auto {
		explicit := true
		return cienv.ShouldAutoAttest(&explicit, cfg, ctx.Logger)
	}
	return cienv.ShouldAutoAttest(nil, cfg, ctx.Logger)
}

func runAttest(subjectPath string, flags *attestFlags, ctx *cmd.CommandContext) error {
	cfg := loadConfig(ctx)

	tools, err := parseTools(flags.tools)
	if err != nil {
		return err
	}

	algorithms, err := parseAlgorithms(flags.algorithms)
	if err != nil {
		return err
	}

	opCtx := context.Background()

	scanArgs := metadata.ScanArgs{
		Tools: flags.tools,
	}
	if flags.profile != "" {
		scanArgs.Profile = &flags.profile
	}
	scanMeta := metadata.FromScanArgs(scanArgs)
	// The generator records profile and tools as structured parameters
	delete(scanMeta, "profile")
	delete(scanMeta, "tools")

	gitContext := metadata.CaptureGitContext(opCtx, filepath.Dir(subjectPath))
	if len(gitContext) > 0 {
		ctx.Logger.Debug("Captured git context", ctx.Logger.Args("commit", gitContext["commit"]))
	}

	generator := provenance.NewGenerator(provenance.DefaultGeneratorOpts().
		WithAlgorithms(algorithms...).
		WithScanMetadata(scanMeta).
		WithSourceContext(gitContext))

	statement, err := generator.Generate(subjectPath, flags.profile, tools, flags.targets)
	if err != nil {
		return fmt.Errorf("failed to generate attestation: %w", err)
	}

	outputPath := flags.output
	if outputPath == "" {
		outputPath = subjectPath + ".attestation.json"
	}

	if err := provenance.WriteFile(statement, outputPath); err != nil {
		return fmt.Errorf("failed to write attestation: %w", err)
	}

	ctx.Logger.Info("Attestation written",
		ctx.Logger.Args(
			"subject", subjectPath,
			"attestation", outputPath,
			"builder", statement.Predicate.RunDetails.Builder.ID,
		))

	if !flags.sign {
		return nil
	}

	return signAttestation(opCtx, outputPath, cfg, flags, ctx)
}

func signAttestation(opCtx context.Context, attestationPath string, cfg *config.Config, flags *attestFlags, ctx *cmd.CommandContext) error {
	signerOpts := signer.DefaultSignerOpts().
		WithStaging(flags.staging || cfg.Attestation.Staging).
		WithEndpoints(
			firstNonEmpty(flags.fulcioURL, cfg.Attestation.FulcioURL),
			firstNonEmpty(flags.rekorURL, cfg.Attestation.RekorURL),
		)
	if flags.identityToken != "" {
		signerOpts = signerOpts.WithIdentityToken(flags.identityToken)
	}

	attestationSigner := signer.NewSigner(signerOpts, ctx.Logger)

	result, err := attestationSigner.Sign(opCtx, attestationPath)
	if err != nil {
		return fmt.Errorf("failed to sign attestation: %w", err)
	}

	ctx.Logger.Info("Attestation signed",
		ctx.Logger.Args(
			"bundle", result.BundlePath,
			"signature", result.SignaturePath,
			"certificate", result.CertificatePath,
		))

	if result.RekorEntryURL != "" {
		present, err := attestationSigner.VerifyRekorEntry(opCtx, result.RekorEntryURL)
		if err != nil {
			ctx.Logger.Warn("Transparency log lookup failed", ctx.Logger.Args("error", err))
		} else if present {
			ctx.Logger.Info("Transparency log entry confirmed", ctx.Logger.Args("entry", result.RekorEntryURL))
		} else {
			ctx.Logger.Warn("Transparency log entry not found yet", ctx.Logger.Args("entry", result.RekorEntryURL))
		}
	}

	return nil
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

// parseTools splits repeatable name@version flags into tool records. A bare
// name is accepted with an empty version.
func parseTools(raw []string) ([]provenance.Tool, error) {
	tools := make([]provenance.Tool, 0, len(raw))
	for _, entry := range raw {
		name, version, _ := strings.Cut(entry, "@")
		if name == "" {
			return nil, fmt.Errorf("invalid tool %q: expected name@version", entry)
		}
		tools = append(tools, provenance.Tool{Name: name, Version: version})
	}
	return tools, nil
}

func parseAlgorithms(names []string) ([]digest.Algorithm, error) {
	algorithms := make([]digest.Algorithm, 0, len(names))
	for _, name := range names {
		algorithm, ok := provenance.RecognizedAlgorithm(name)
		if !ok {
			return nil, fmt.Errorf("unsupported digest algorithm %q", name)
		}
		algorithms = append(algorithms, algorithm)
	}
	if len(algorithms) == 0 {
		algorithms = append(algorithms, digest.SHA256)
	}
	return algorithms, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
