// ABOUTME: Sigstore bundle verification service backed by the public good trust roots
// ABOUTME: Implements the external signature-verification delegate used by the verifier
package sigstore

import (
	"fmt"
	"os"

	"github.com/sigstore/sigstore-go/pkg/bundle"
	"github.com/sigstore/sigstore-go/pkg/root"
	"github.com/sigstore/sigstore-go/pkg/verify"
)

// Service verifies signature bundles against the Sigstore trust roots
type Service struct {
	verifier *verify.Verifier
}

// NewService creates a verification service with production trust roots
func NewService() (*Service, error) {
	trustedRoot, err := root.FetchTrustedRoot()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch trusted root: %w", err)
	}

	verifier, err := verify.NewVerifier(trustedRoot,
		verify.WithTransparencyLog(1),
		verify.WithObserverTimestamps(1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create verifier: %w", err)
	}

	return &Service{verifier: verifier}, nil
}

// VerifyBundle cryptographically verifies the signature bundle over the
// artifact file. Identity constraints are left to policy tooling further up
// the stack; this check establishes signature and log inclusion validity.
func (s *Service) VerifyBundle(bundlePath, artifactPath string) error {
	b, err := bundle.LoadJSONFromPath(bundlePath)
	if err != nil {
		return fmt.Errorf("failed to load signature bundle: %w", err)
	}

	artifact, err := os.Open(artifactPath)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer artifact.Close()

	policy := verify.NewPolicy(
		verify.WithArtifact(artifact),
		verify.WithoutIdentitiesUnsafe(),
	)

	if _, err := s.verifier.Verify(b, policy); err != nil {
		return fmt.Errorf("bundle verification failed: %w", err)
	}

	return nil
}
