// ABOUTME: Attestation verification orchestration with multi-hash digest checking
// ABOUTME: Drives structural validation, signature verification, and tamper detection to one verdict
package verify

import (
	"fmt"
	"os"
	"sort"

	"github.com/pterm/pterm"

	"github.com/scanseal/scanseal/internal/provenance"
	"github.com/scanseal/scanseal/internal/signer"
	"github.com/scanseal/scanseal/internal/sigstore"
	"github.com/scanseal/scanseal/internal/tamper"
)

// BundleVerifier is the external signature-verification delegate
type BundleVerifier interface {
	VerifyBundle(bundlePath, artifactPath string) error
}

// VerifierOpts configures verification behavior
type VerifierOpts struct {
	// TamperDetection toggles the heuristic tamper engine (default: on)
	TamperDetection bool

	// DetectorOpts tunes the tamper detector thresholds
	DetectorOpts *tamper.DetectorOpts

	// RekorURL is the transparency log base used to derive entry URLs
	RekorURL string

	// BundleVerifier overrides the signature verification delegate,
	// primarily for tests. When nil a Sigstore service is created on
	// demand.
	BundleVerifier BundleVerifier
}

// DefaultVerifierOpts returns the default verification options
func DefaultVerifierOpts() *VerifierOpts {
	return &VerifierOpts{
		TamperDetection: true,
		RekorURL:        signer.DefaultRekorURL,
	}
}

// WithTamperDetection toggles tamper detection
func (opts *VerifierOpts) WithTamperDetection(enabled bool) *VerifierOpts {
	opts.TamperDetection = enabled
	return opts
}

// WithDetectorOpts sets the tamper detector thresholds
func (opts *VerifierOpts) WithDetectorOpts(detectorOpts *tamper.DetectorOpts) *VerifierOpts {
	opts.DetectorOpts = detectorOpts
	return opts
}

// WithRekorURL sets the transparency log base URL
func (opts *VerifierOpts) WithRekorURL(rekorURL string) *VerifierOpts {
	opts.RekorURL = rekorURL
	return opts
}

// WithBundleVerifier overrides the signature verification delegate
func (opts *VerifierOpts) WithBundleVerifier(bundleVerifier BundleVerifier) *VerifierOpts {
	opts.BundleVerifier = bundleVerifier
	return opts
}

// Verifier validates attestations against their subjects
type Verifier struct {
	opts     *VerifierOpts
	detector *tamper.Detector
	logger   *pterm.Logger
}

// NewVerifier creates a verifier with the given options
func NewVerifier(opts *VerifierOpts, logger *pterm.Logger) *Verifier {
	if opts == nil {
		opts = DefaultVerifierOpts()
	}
	return &Verifier{
		opts:     opts,
		detector: tamper.NewDetector(opts.DetectorOpts, logger),
		logger:   logger,
	}
}

// Verify runs the sequential verification contract: structure, multi-hash
// digests, optional signature, then tamper detection. signaturePath and
// historicalPaths may be empty. The verdict is always expressed on the
// returned result, never as an error.
func (v *Verifier) Verify(subjectPath, attestationPath, signaturePath string, historicalPaths []string) *VerificationResult {
	result := &VerificationResult{TamperIndicators: []tamper.Indicator{}}

	statement, err := provenance.LoadStatement(attestationPath)
	if err != nil || statement.Type != provenance.StatementType {
		return result.failed("Invalid attestation format")
	}

	subject := statement.FirstSubject()
	if subject == nil {
		return result.failed("No subjects in attestation")
	}
	if len(subject.Digest) == 0 {
		return result.failed("No digest in attestation")
	}
	result.SubjectName = subject.Name

	if _, err := os.Stat(subjectPath); err != nil {
		return result.failed("Subject file not found")
	}

	if mismatch := v.checkDigests(subjectPath, subject, result); mismatch {
		// Enumerate tamper evidence even though the verdict is already
		// decided, so operators see the whole picture.
		v.runTamperChecks(subjectPath, attestationPath, historicalPaths, result)
		result.TamperDetected = true
		return result.failed("Subject digest mismatch")
	}

	if signaturePath != "" {
		if _, err := os.Stat(signaturePath); err != nil {
			return result.failed("Signature file not found")
		}
		if err := v.verifySignature(signaturePath, attestationPath, result); err != nil {
			v.warn("Signature verification failed", "error", err)
			return result.failed("Signature verification failed")
		}
	}

	if v.opts.TamperDetection {
		v.runTamperChecks(subjectPath, attestationPath, historicalPaths, result)
		if critical := tamper.FirstCritical(result.TamperIndicators); critical != nil {
			result.TamperDetected = true
			return result.failed(fmt.Sprintf("Tampering detected: %s", critical.Description))
		}
	}

	if runDetails := statement.Predicate.RunDetails; runDetails != nil {
		if runDetails.Builder != nil {
			result.BuilderID = runDetails.Builder.ID
		}
		if runDetails.Metadata != nil {
			result.BuildTime = runDetails.Metadata.FinishedOn
		}
	}
	result.SubjectDigest = primaryDigest(subject.Digest)
	result.IsValid = true

	return result
}

// checkDigests recomputes every recognized digest entry and reports whether
// any present entry mismatched. Unrecognized algorithm names are logged and
// skipped; partial coverage is accepted.
func (v *Verifier) checkDigests(subjectPath string, subject *provenance.Subject, result *VerificationResult) bool {
	mismatch := false

	for _, name := range sortedKeys(subject.Digest) {
		algorithm, ok := provenance.RecognizedAlgorithm(name)
		if !ok {
			v.warn("Skipping unrecognized digest algorithm", "algorithm", name)
			continue
		}

		expected := subject.Digest[name]
		actual, err := provenance.RecomputeDigest(subjectPath, algorithm)
		if err != nil {
			v.warn("Failed to recompute subject digest", "algorithm", name, "error", err)
			mismatch = true
			continue
		}

		if actual != expected {
			mismatch = true
			result.TamperIndicators = append(result.TamperIndicators, tamper.Indicator{
				Severity:    tamper.SeverityCritical,
				Kind:        tamper.KindDigestMismatch,
				Description: fmt.Sprintf("Subject %s digest does not match attestation", name),
				Evidence: map[string]any{
					"algorithm": name,
					"expected":  expected,
					"actual":    actual,
				},
			})
		}
	}

	return mismatch
}

// verifySignature delegates to the external signature-verification
// operation and extracts the transparency log reference on success
func (v *Verifier) verifySignature(signaturePath, attestationPath string, result *VerificationResult) error {
	bundleVerifier := v.opts.BundleVerifier
	if bundleVerifier == nil {
		service, err := sigstore.NewService()
		if err != nil {
			return fmt.Errorf("failed to create sigstore service: %w", err)
		}
		bundleVerifier = service
	}

	if err := bundleVerifier.VerifyBundle(signaturePath, attestationPath); err != nil {
		return err
	}

	// Log entry reference is informational; a bundle without one is fine
	if info, err := signer.ParseBundle(signaturePath); err == nil && info.LogIndex != nil {
		result.RekorEntry = signer.RekorEntryURL(v.opts.RekorURL, *info.LogIndex)
	}

	return nil
}

// runTamperChecks invokes the detector and attaches every indicator to the
// result. A detector panic degrades gracefully: verification proceeds on
// whatever evidence was collected.
func (v *Verifier) runTamperChecks(subjectPath, attestationPath string, historicalPaths []string, result *VerificationResult) {
	defer func() {
		if r := recover(); r != nil {
			v.warn("Tamper detection failed, continuing without it", "panic", fmt.Sprintf("%v", r))
		}
	}()

	indicators := v.detector.CheckAll(subjectPath, attestationPath, historicalPaths)
	result.TamperIndicators = append(result.TamperIndicators, indicators...)
}

// primaryDigest picks the digest exposed for display: sha256 when present,
// else the alphabetically first algorithm
func primaryDigest(digests map[string]string) string {
	if value, ok := digests["sha256"]; ok {
		return value
	}
	for _, name := range sortedKeys(digests) {
		return digests[name]
	}
	return ""
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (v *Verifier) warn(msg string, args ...any) {
	if v.logger != nil {
		v.logger.Warn(msg, v.logger.Args(args...))
	}
}
