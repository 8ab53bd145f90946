// ABOUTME: Keyless attestation signing via the external cosign delegate
// ABOUTME: Handles endpoint selection, identity token plumbing, and signature artifact persistence
package signer

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/scanseal/scanseal/internal/auth"
)

const (
	DefaultFulcioURL = "https://fulcio.sigstore.dev"
	DefaultRekorURL  = "https://rekor.sigstore.dev"
	StagingFulcioURL = "https://fulcio.sigstage.dev"
	StagingRekorURL  = "https://rekor.sigstage.dev"

	// BundleSuffix names the signature bundle sibling of an attestation
	BundleSuffix = ".sigstore.json"
)

// SignerOpts configures signing behavior
type SignerOpts struct {
	// Staging swaps to the Sigstore staging endpoints
	Staging bool

	// Explicit endpoint overrides; these win regardless of Staging
	FulcioURL string
	RekorURL  string

	// CosignPath locates the external signing delegate (default: "cosign")
	CosignPath string

	// SignTimeout bounds the external signing operation
	SignTimeout time.Duration

	// VerifyTimeout bounds transparency log lookups
	VerifyTimeout time.Duration

	// IdentityToken bypasses token acquisition entirely when set
	IdentityToken string

	// TokenOpts configures identity token acquisition
	TokenOpts *auth.TokenOpts

	// HTTPClient override for Rekor lookups, primarily for tests
	HTTPClient *http.Client
}

// DefaultSignerOpts returns the default signing options
func DefaultSignerOpts() *SignerOpts {
	return &SignerOpts{
		CosignPath:    "cosign",
		SignTimeout:   120 * time.Second,
		VerifyTimeout: 10 * time.Second,
	}
}

// WithStaging switches signing to the Sigstore staging infrastructure
func (opts *SignerOpts) WithStaging(staging bool) *SignerOpts {
	opts.Staging = staging
	return opts
}

// WithEndpoints sets explicit endpoint overrides
func (opts *SignerOpts) WithEndpoints(fulcioURL, rekorURL string) *SignerOpts {
	opts.FulcioURL = fulcioURL
	opts.RekorURL = rekorURL
	return opts
}

// WithCosignPath overrides the signing delegate binary
func (opts *SignerOpts) WithCosignPath(path string) *SignerOpts {
	opts.CosignPath = path
	return opts
}

// WithIdentityToken supplies a pre-acquired OIDC identity token
func (opts *SignerOpts) WithIdentityToken(token string) *SignerOpts {
	opts.IdentityToken = token
	return opts
}

// WithHTTPClient overrides the HTTP client used for Rekor lookups
func (opts *SignerOpts) WithHTTPClient(client *http.Client) *SignerOpts {
	opts.HTTPClient = client
	return opts
}

// Signer signs attestations through the keyless toolchain
type Signer struct {
	opts        *SignerOpts
	tokenClient *auth.TokenClient
	logger      *pterm.Logger
}

// NewSigner creates a signer with the given options
func NewSigner(opts *SignerOpts, logger *pterm.Logger) *Signer {
	if opts == nil {
		opts = DefaultSignerOpts()
	}
	return &Signer{
		opts:        opts,
		tokenClient: auth.NewTokenClient(opts.TokenOpts),
		logger:      logger,
	}
}

// Endpoints resolves the effective certificate authority and transparency
// log endpoints: production by default, staging when the flag is set, and
// explicit overrides always win.
func (s *Signer) Endpoints() (fulcioURL, rekorURL string) {
	fulcioURL = DefaultFulcioURL
	rekorURL = DefaultRekorURL
	if s.opts.Staging {
		fulcioURL = StagingFulcioURL
		rekorURL = StagingRekorURL
	}
	if s.opts.FulcioURL != "" {
		fulcioURL = s.opts.FulcioURL
	}
	if s.opts.RekorURL != "" {
		rekorURL = s.opts.RekorURL
	}
	return fulcioURL, rekorURL
}

// SignResult carries the artifacts produced by a signing operation
type SignResult struct {
	AttestationPath string
	BundlePath      string
	SignaturePath   string
	CertificatePath string

	// Signature and Certificate are base64 encoded
	Signature   string
	Certificate string

	// LogIndex is nil when the bundle carries no transparency log entry;
	// RekorEntryURL is empty in that case (an expected outcome, not an error)
	LogIndex      *int64
	RekorEntryURL string
}

// Sign signs the attestation file with the external keyless signing
// delegate and persists the signature bundle plus .sig/.crt siblings.
func (s *Signer) Sign(ctx context.Context, attestationPath string) (*SignResult, error) {
	if _, err := os.Stat(attestationPath); err != nil {
		return nil, fmt.Errorf("attestation file not found: %s", attestationPath)
	}

	token := s.opts.IdentityToken
	if token == "" {
		environment := auth.DetectSigningEnvironment()
		acquired, err := s.tokenClient.IdentityToken(ctx, environment)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire identity token (%s): %w", environment, err)
		}
		token = acquired
	}

	fulcioURL, rekorURL := s.Endpoints()
	bundlePath := attestationPath + BundleSuffix

	args := []string{
		"sign-blob", attestationPath,
		"--bundle", bundlePath,
		"--new-bundle-format=true",
		"--fulcio-url", fulcioURL,
		"--rekor-url", rekorURL,
		"--yes",
	}
	if token != "" {
		args = append(args, "--identity-token", token)
	}

	signCtx, cancel := context.WithTimeout(ctx, s.opts.SignTimeout)
	defer cancel()

	cmd := exec.CommandContext(signCtx, s.opts.CosignPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("signing operation failed: %s: %w", strings.TrimSpace(string(output)), err)
	}

	info, err := ParseBundle(bundlePath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signature bundle: %w", err)
	}

	result := &SignResult{
		AttestationPath: attestationPath,
		BundlePath:      bundlePath,
		SignaturePath:   attestationPath + ".sig",
		CertificatePath: attestationPath + ".crt",
		Signature:       info.Signature,
		Certificate:     info.Certificate,
		LogIndex:        info.LogIndex,
	}

	if info.LogIndex != nil {
		result.RekorEntryURL = RekorEntryURL(rekorURL, *info.LogIndex)
	} else if s.logger != nil {
		s.logger.Warn("Signature bundle carries no transparency log entry")
	}

	if err := os.WriteFile(result.SignaturePath, []byte(info.Signature+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("failed to write signature file: %w", err)
	}
	if err := os.WriteFile(result.CertificatePath, []byte(info.Certificate+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("failed to write certificate file: %w", err)
	}

	return result, nil
}

// RekorEntryURL derives a browsable log entry URL. It is recomputed from the
// log index rather than stored, so the configured log base always wins.
func RekorEntryURL(rekorURL string, logIndex int64) string {
	return fmt.Sprintf("%s/api/v1/log/entries?logIndex=%d", strings.TrimRight(rekorURL, "/"), logIndex)
}

// VerifyRekorEntry checks that a transparency log entry exists. HTTP 200
// means present, 404 means absent - both are ordinary outcomes. Any other
// status logs a warning and reports absent. Transport failures propagate.
func (s *Signer) VerifyRekorEntry(ctx context.Context, entryURL string) (bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.opts.VerifyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, entryURL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build log entry request: %w", err)
	}

	client := s.opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: s.opts.VerifyTimeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Errorf("transparency log lookup failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		if s.logger != nil {
			s.logger.Warn("Unexpected transparency log response",
				s.logger.Args("status", resp.StatusCode, "url", entryURL))
		}
		return false, nil
	}
}
