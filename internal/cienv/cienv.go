// ABOUTME: CI environment detection and auto-attestation gating
// ABOUTME: Resolves the CI provider once per call and applies three-tier attestation precedence
package cienv

import (
	"os"
	"strings"

	"github.com/pterm/pterm"

	"github.com/scanseal/scanseal/internal/config"
)

// AutoAttestEnvVar is the environment toggle for opting into attestation
// after scans. It only takes effect inside CI; see ShouldAutoAttest.
const AutoAttestEnvVar = "SCANSEAL_AUTO_ATTEST"

// Provider identifies the CI platform the current process runs under.
// The set is closed; callers should switch exhaustively over it.
type Provider string

const (
	ProviderGitHub  Provider = "github"
	ProviderGitLab  Provider = "gitlab"
	ProviderGeneric Provider = "generic"
	ProviderLocal   Provider = "local"
)

// IsCI reports whether the process runs under CI. Only the exact literal
// "true" counts; any other value, including unset, is treated as not CI.
func IsCI() bool {
	return os.Getenv("CI") == "true"
}

// Detect resolves the CI provider. GitHub wins over GitLab when a runner
// presents both sets of signals.
func Detect() Provider {
	if os.Getenv("GITHUB_ACTIONS") == "true" {
		return ProviderGitHub
	}
	if os.Getenv("GITLAB_CI") == "true" {
		return ProviderGitLab
	}
	if IsCI() {
		return ProviderGeneric
	}
	return ProviderLocal
}

// ShouldAutoAttest decides whether an attestation should be produced after a
// scan. Precedence, highest first:
//
//  1. An explicit CLI flag (including explicit false) is returned verbatim
//     and bypasses CI gating entirely.
//  2. The SCANSEAL_AUTO_ATTEST environment toggle. A parsed true only fires
//     inside CI; a parsed false wins immediately; unrecognized values warn
//     and fall through.
//  3. The configuration flag, again gated on CI detection.
//
// The default is false: scanseal never attests silently.
func ShouldAutoAttest(cliFlag *bool, cfg *config.Config, logger *pterm.Logger) bool {
	if cliFlag != nil {
		return *cliFlag
	}

	if raw, ok := os.LookupEnv(AutoAttestEnvVar); ok {
		parsed, recognized := parseBoolToggle(raw)
		switch {
		case recognized && parsed:
			return IsCI()
		case recognized && !parsed:
			return false
		default:
			if logger != nil {
				logger.Warn("Unrecognized auto-attest toggle value, ignoring",
					logger.Args("var", AutoAttestEnvVar, "value", raw))
			}
		}
	}

	if cfg != nil && cfg.Attestation.AutoAttest {
		return IsCI()
	}

	return false
}

// parseBoolToggle parses a permissive boolean. The second return value is
// false when the input is not a recognized boolean spelling.
func parseBoolToggle(raw string) (value bool, recognized bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes":
		return true, true
	case "false", "0", "no":
		return false, true
	default:
		return false, false
	}
}
