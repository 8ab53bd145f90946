// ABOUTME: Result formatting utilities for attestation verification
// ABOUTME: Provides human-readable summaries of verdicts and tamper evidence
package verify

import (
	"fmt"
	"strings"
)

// FormatVerificationResult creates a human-readable summary of a verdict
func FormatVerificationResult(result *VerificationResult) string {
	var output strings.Builder

	if result.IsValid {
		output.WriteString("Attestation: Valid\n")
	} else {
		output.WriteString("Attestation: Invalid\n")
		if result.ErrorMessage != "" {
			output.WriteString(fmt.Sprintf("  Reason: %s\n", result.ErrorMessage))
		}
	}

	if result.SubjectName != "" {
		output.WriteString(fmt.Sprintf("  Subject: %s\n", result.SubjectName))
	}
	if result.SubjectDigest != "" {
		output.WriteString(fmt.Sprintf("  Digest: %s\n", result.SubjectDigest))
	}
	if result.BuilderID != "" {
		output.WriteString(fmt.Sprintf("  Builder: %s\n", result.BuilderID))
	}
	if result.BuildTime != "" {
		output.WriteString(fmt.Sprintf("  Built: %s\n", result.BuildTime))
	}
	if result.RekorEntry != "" {
		output.WriteString(fmt.Sprintf("  Rekor entry: %s\n", result.RekorEntry))
	}

	if result.TamperDetected {
		output.WriteString("  Tampering: DETECTED\n")
	}

	if len(result.TamperIndicators) > 0 {
		output.WriteString(fmt.Sprintf("  Indicators (%d):\n", len(result.TamperIndicators)))
		for _, indicator := range result.TamperIndicators {
			output.WriteString(fmt.Sprintf("    [%s] %s: %s\n",
				indicator.Severity, indicator.Kind, indicator.Description))
		}
	}

	return output.String()
}
