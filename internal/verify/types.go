// ABOUTME: Verification result types for attestation verification
// ABOUTME: Defines the terminal caller-facing verdict with its supporting tamper evidence
package verify

import (
	"github.com/scanseal/scanseal/internal/tamper"
)

// VerificationResult is the terminal verdict of a verification call. It is
// immutable once returned; tamper indicators are always fully enumerated so
// operators can inspect the complete evidence set even when verification
// failed for a different reason.
type VerificationResult struct {
	IsValid bool `json:"is_valid"`

	SubjectName   string `json:"subject_name,omitempty"`
	SubjectDigest string `json:"subject_digest,omitempty"`
	BuilderID     string `json:"builder_id,omitempty"`
	BuildTime     string `json:"build_time,omitempty"`
	RekorEntry    string `json:"rekor_entry,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`

	TamperDetected   bool               `json:"tamper_detected"`
	TamperIndicators []tamper.Indicator `json:"tamper_indicators"`
}

// failed marks the result invalid with a human-readable message
func (r *VerificationResult) failed(message string) *VerificationResult {
	r.IsValid = false
	r.ErrorMessage = message
	return r
}
