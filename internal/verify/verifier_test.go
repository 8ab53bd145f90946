package verify

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/scanseal/scanseal/internal/provenance"
	"github.com/scanseal/scanseal/internal/tamper"
)

type fakeBundleVerifier struct {
	err    error
	called bool
}

func (f *fakeBundleVerifier) VerifyBundle(bundlePath, artifactPath string) error {
	f.called = true
	return f.err
}

// rewriteStatement re-serializes an already-written attestation with plain
// JSON so tests can inject shapes the generator would refuse to produce
func rewriteStatement(t *testing.T, path string, statement *provenance.Statement) {
	t.Helper()
	data, err := json.Marshal(statement)
	if err != nil {
		t.Fatalf("failed to marshal statement: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to rewrite attestation: %v", err)
	}
}

// makeAttestation writes a subject file and a matching attestation and
// returns both paths
func makeAttestation(t *testing.T, content string, algorithms ...digest.Algorithm) (string, string) {
	t.Helper()
	if len(algorithms) == 0 {
		algorithms = []digest.Algorithm{digest.SHA256}
	}

	dir := t.TempDir()
	subjectPath := filepath.Join(dir, "results.json")
	if err := os.WriteFile(subjectPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write subject: %v", err)
	}

	digests, err := provenance.ComputeDigests(subjectPath, algorithms)
	if err != nil {
		t.Fatalf("failed to digest subject: %v", err)
	}

	now := time.Now().UTC()
	statement := &provenance.Statement{
		Type: provenance.StatementType,
		Subject: []provenance.Subject{{
			Name:   "results.json",
			Digest: digests,
		}},
		PredicateType: provenance.SLSAPredicateV1,
		Predicate: provenance.Predicate{
			BuildDefinition: &provenance.BuildDefinition{
				BuildType:            provenance.ScanBuildType,
				ResolvedDependencies: []provenance.Tool{{Name: "trivy", Version: "0.50.0"}},
			},
			RunDetails: &provenance.RunDetails{
				Builder: &provenance.Builder{ID: "https://github.com/example/app", Version: "0.1.0"},
				Metadata: &provenance.BuildMetadata{
					InvocationID: "42",
					StartedOn:    now.Add(-10 * time.Minute).Format(time.RFC3339),
					FinishedOn:   now.Add(-5 * time.Minute).Format(time.RFC3339),
				},
			},
		},
	}

	attestationPath := filepath.Join(dir, "results.json.attestation.json")
	if err := provenance.WriteFile(statement, attestationPath); err != nil {
		t.Fatalf("failed to write attestation: %v", err)
	}

	return subjectPath, attestationPath
}

func TestVerifyHappyPath(t *testing.T) {
	subjectPath, attestationPath := makeAttestation(t, `{"findings": [{"id": "CVE-2026-0001"}]}`)

	verifier := NewVerifier(nil, nil)
	result := verifier.Verify(subjectPath, attestationPath, "", nil)

	if !result.IsValid {
		t.Fatalf("expected valid result, got error: %s", result.ErrorMessage)
	}
	if result.SubjectName != "results.json" {
		t.Errorf("expected subject name, got '%s'", result.SubjectName)
	}
	if result.SubjectDigest == "" {
		t.Error("expected a subject digest")
	}
	if result.BuilderID != "https://github.com/example/app" {
		t.Errorf("expected builder id, got '%s'", result.BuilderID)
	}
	if result.BuildTime == "" {
		t.Error("expected a build time")
	}
	if result.TamperDetected {
		t.Error("expected no tampering on a clean attestation")
	}
}

func TestVerifyDetectsSubjectAlteration(t *testing.T) {
	algorithmSets := [][]digest.Algorithm{
		{digest.SHA256},
		{digest.SHA256, digest.SHA384, digest.SHA512},
	}

	for _, algorithms := range algorithmSets {
		subjectPath, attestationPath := makeAttestation(t, `{"findings": []}`, algorithms...)

		// Single-byte alteration after attestation
		if err := os.WriteFile(subjectPath, []byte(`{"findings": [}`), 0644); err != nil {
			t.Fatalf("failed to alter subject: %v", err)
		}

		verifier := NewVerifier(nil, nil)
		result := verifier.Verify(subjectPath, attestationPath, "", nil)

		if result.IsValid {
			t.Fatal("expected verification to fail after subject alteration")
		}
		if result.ErrorMessage != "Subject digest mismatch" {
			t.Errorf("expected digest mismatch error, got '%s'", result.ErrorMessage)
		}
		if !result.TamperDetected {
			t.Error("expected tamper_detected on digest mismatch")
		}

		mismatches := 0
		for _, indicator := range result.TamperIndicators {
			if indicator.Kind == tamper.KindDigestMismatch && indicator.Severity == tamper.SeverityCritical {
				mismatches++
			}
		}
		if mismatches != len(algorithms) {
			t.Errorf("expected %d digest mismatch indicators, got %d", len(algorithms), mismatches)
		}
	}
}

func TestVerifyInvalidAttestationFormat(t *testing.T) {
	subjectPath, _ := makeAttestation(t, "content")
	attestationPath := filepath.Join(t.TempDir(), "attestation.json")
	if err := os.WriteFile(attestationPath, []byte(`{"_type": "https://example.com/other/v1"}`), 0644); err != nil {
		t.Fatalf("failed to write attestation: %v", err)
	}

	verifier := NewVerifier(nil, nil)
	result := verifier.Verify(subjectPath, attestationPath, "", nil)

	if result.IsValid || result.ErrorMessage != "Invalid attestation format" {
		t.Errorf("expected invalid format error, got valid=%v message='%s'", result.IsValid, result.ErrorMessage)
	}
}

func TestVerifyStructuralFailures(t *testing.T) {
	subjectPath, _ := makeAttestation(t, "content")

	tests := []struct {
		name     string
		document string
		expected string
	}{
		{
			name:     "no subjects",
			document: `{"_type": "https://in-toto.io/Statement/v1", "subject": [], "predicateType": "https://slsa.dev/provenance/v1", "predicate": {}}`,
			expected: "No subjects in attestation",
		},
		{
			name:     "no digest",
			document: `{"_type": "https://in-toto.io/Statement/v1", "subject": [{"name": "results.json", "digest": {}}], "predicateType": "https://slsa.dev/provenance/v1", "predicate": {}}`,
			expected: "No digest in attestation",
		},
		{
			name:     "unparseable",
			document: `{not json`,
			expected: "Invalid attestation format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attestationPath := filepath.Join(t.TempDir(), "attestation.json")
			if err := os.WriteFile(attestationPath, []byte(tt.document), 0644); err != nil {
				t.Fatalf("failed to write attestation: %v", err)
			}

			verifier := NewVerifier(nil, nil)
			result := verifier.Verify(subjectPath, attestationPath, "", nil)

			if result.IsValid || result.ErrorMessage != tt.expected {
				t.Errorf("expected '%s', got valid=%v message='%s'", tt.expected, result.IsValid, result.ErrorMessage)
			}
		})
	}
}

func TestVerifyMissingSubjectFile(t *testing.T) {
	subjectPath, attestationPath := makeAttestation(t, "content")
	if err := os.Remove(subjectPath); err != nil {
		t.Fatalf("failed to remove subject: %v", err)
	}

	verifier := NewVerifier(nil, nil)
	result := verifier.Verify(subjectPath, attestationPath, "", nil)

	if result.IsValid || result.ErrorMessage != "Subject file not found" {
		t.Errorf("expected missing subject error, got valid=%v message='%s'", result.IsValid, result.ErrorMessage)
	}
}

func TestVerifySkipsUnrecognizedAlgorithms(t *testing.T) {
	subjectPath, attestationPath := makeAttestation(t, "content")

	// Add an unrecognized digest entry alongside the valid one
	statement, err := provenance.LoadStatement(attestationPath)
	if err != nil {
		t.Fatalf("failed to load attestation: %v", err)
	}
	statement.Subject[0].Digest["blake3"] = "0000000000000000000000000000000000000000000000000000000000000000"
	rewriteStatement(t, attestationPath, statement)

	verifier := NewVerifier(nil, nil)
	result := verifier.Verify(subjectPath, attestationPath, "", nil)

	if !result.IsValid {
		t.Errorf("unrecognized algorithms must be skipped, got error: %s", result.ErrorMessage)
	}
}

func TestVerifyMissingSignatureFile(t *testing.T) {
	subjectPath, attestationPath := makeAttestation(t, "content")

	verifier := NewVerifier(nil, nil)
	result := verifier.Verify(subjectPath, attestationPath, filepath.Join(t.TempDir(), "absent.sigstore.json"), nil)

	if result.IsValid || result.ErrorMessage != "Signature file not found" {
		t.Errorf("expected missing signature error, got valid=%v message='%s'", result.IsValid, result.ErrorMessage)
	}
}

func TestVerifyWithSignatureDelegate(t *testing.T) {
	subjectPath, attestationPath := makeAttestation(t, "content")
	signaturePath := attestationPath + ".sigstore.json"
	if err := os.WriteFile(signaturePath, []byte(`{}`), 0644); err != nil {
		t.Fatalf("failed to write signature file: %v", err)
	}

	delegate := &fakeBundleVerifier{}
	verifier := NewVerifier(DefaultVerifierOpts().WithBundleVerifier(delegate), nil)
	result := verifier.Verify(subjectPath, attestationPath, signaturePath, nil)

	if !delegate.called {
		t.Error("expected the signature delegate to be invoked")
	}
	if !result.IsValid {
		t.Errorf("expected valid result with passing delegate, got: %s", result.ErrorMessage)
	}
}

func TestVerifySignatureFailure(t *testing.T) {
	subjectPath, attestationPath := makeAttestation(t, "content")
	signaturePath := attestationPath + ".sigstore.json"
	if err := os.WriteFile(signaturePath, []byte(`{}`), 0644); err != nil {
		t.Fatalf("failed to write signature file: %v", err)
	}

	delegate := &fakeBundleVerifier{err: errors.New("certificate identity mismatch")}
	verifier := NewVerifier(DefaultVerifierOpts().WithBundleVerifier(delegate), nil)
	result := verifier.Verify(subjectPath, attestationPath, signaturePath, nil)

	if result.IsValid || result.ErrorMessage != "Signature verification failed" {
		t.Errorf("expected signature failure, got valid=%v message='%s'", result.IsValid, result.ErrorMessage)
	}
}

func TestVerifyCriticalTamperFails(t *testing.T) {
	subjectPath, attestationPath := makeAttestation(t, "content")

	// Push startedOn into the future
	statement, err := provenance.LoadStatement(attestationPath)
	if err != nil {
		t.Fatalf("failed to load attestation: %v", err)
	}
	statement.Predicate.RunDetails.Metadata.StartedOn = time.Now().UTC().Add(2 * time.Hour).Format(time.RFC3339)
	statement.Predicate.RunDetails.Metadata.FinishedOn = time.Now().UTC().Add(3 * time.Hour).Format(time.RFC3339)
	if err := provenance.WriteFile(statement, attestationPath); err != nil {
		t.Fatalf("failed to rewrite attestation: %v", err)
	}

	verifier := NewVerifier(nil, nil)
	result := verifier.Verify(subjectPath, attestationPath, "", nil)

	if result.IsValid {
		t.Fatal("expected verification to fail on critical tamper evidence")
	}
	if !strings.HasPrefix(result.ErrorMessage, "Tampering detected:") {
		t.Errorf("expected tampering error, got '%s'", result.ErrorMessage)
	}
	if !result.TamperDetected {
		t.Error("expected tamper_detected to be set")
	}
	if len(result.TamperIndicators) == 0 {
		t.Error("expected tamper indicators to be enumerated")
	}
}

func TestVerifyTamperDetectionDisabled(t *testing.T) {
	subjectPath, attestationPath := makeAttestation(t, "content")

	statement, err := provenance.LoadStatement(attestationPath)
	if err != nil {
		t.Fatalf("failed to load attestation: %v", err)
	}
	statement.Predicate.RunDetails.Metadata.StartedOn = time.Now().UTC().Add(2 * time.Hour).Format(time.RFC3339)
	statement.Predicate.RunDetails.Metadata.FinishedOn = time.Now().UTC().Add(3 * time.Hour).Format(time.RFC3339)
	if err := provenance.WriteFile(statement, attestationPath); err != nil {
		t.Fatalf("failed to rewrite attestation: %v", err)
	}

	verifier := NewVerifier(DefaultVerifierOpts().WithTamperDetection(false), nil)
	result := verifier.Verify(subjectPath, attestationPath, "", nil)

	if !result.IsValid {
		t.Errorf("expected valid result with tamper detection disabled, got: %s", result.ErrorMessage)
	}
	if len(result.TamperIndicators) != 0 {
		t.Errorf("expected no indicators with tamper detection disabled, got %v", result.TamperIndicators)
	}
}

func TestVerifyBuilderChangeAgainstHistory(t *testing.T) {
	subjectPath, attestationPath := makeAttestation(t, "content")

	_, historicalPath := makeAttestation(t, "older content")
	historical, err := provenance.LoadStatement(historicalPath)
	if err != nil {
		t.Fatalf("failed to load historical attestation: %v", err)
	}
	historical.Predicate.RunDetails.Builder.ID = "https://github.com/other/repo"
	if err := provenance.WriteFile(historical, historicalPath); err != nil {
		t.Fatalf("failed to rewrite historical attestation: %v", err)
	}

	verifier := NewVerifier(nil, nil)
	result := verifier.Verify(subjectPath, attestationPath, "", []string{historicalPath})

	if result.IsValid {
		t.Fatal("expected builder inconsistency to fail verification")
	}
	if !result.TamperDetected {
		t.Error("expected tamper_detected to be set")
	}
}

func TestPrimaryDigest(t *testing.T) {
	tests := []struct {
		name     string
		digests  map[string]string
		expected string
	}{
		{
			name:     "sha256 preferred",
			digests:  map[string]string{"sha512": "b", "sha256": "a"},
			expected: "a",
		},
		{
			name:     "alphabetical fallback",
			digests:  map[string]string{"sha512": "b", "sha384": "c"},
			expected: "c",
		},
		{
			name:     "empty",
			digests:  map[string]string{},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := primaryDigest(tt.digests); got != tt.expected {
				t.Errorf("expected '%s', got '%s'", tt.expected, got)
			}
		})
	}
}

func TestFormatVerificationResult(t *testing.T) {
	result := &VerificationResult{
		IsValid:       true,
		SubjectName:   "results.json",
		SubjectDigest: "abc123",
		BuilderID:     "https://github.com/example/app",
	}

	output := FormatVerificationResult(result)
	if !strings.Contains(output, "Attestation: Valid") {
		t.Errorf("expected valid marker, got: %s", output)
	}
	if !strings.Contains(output, "results.json") {
		t.Errorf("expected subject name, got: %s", output)
	}

	invalid := &VerificationResult{
		ErrorMessage:   "Subject digest mismatch",
		TamperDetected: true,
		TamperIndicators: []tamper.Indicator{
			{Severity: tamper.SeverityCritical, Kind: tamper.KindDigestMismatch, Description: "mismatch"},
		},
	}

	output = FormatVerificationResult(invalid)
	if !strings.Contains(output, "Attestation: Invalid") {
		t.Errorf("expected invalid marker, got: %s", output)
	}
	if !strings.Contains(output, "Subject digest mismatch") {
		t.Errorf("expected failure reason, got: %s", output)
	}
	if !strings.Contains(output, "DIGEST_MISMATCH") {
		t.Errorf("expected indicator kind, got: %s", output)
	}
}
