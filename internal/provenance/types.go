// ABOUTME: Type definitions and constants for scan provenance statements
// ABOUTME: Defines the in-toto statement document shape shared by generator, verifier, and tamper detector
package provenance

import (
	"encoding/json"
	"fmt"
	"os"
)

const (
	// StatementType is the in-toto statement discriminator every scanseal
	// attestation must carry
	StatementType = "https://in-toto.io/Statement/v1"

	// SLSAPredicateV1 is the provenance predicate type for scan attestations
	SLSAPredicateV1 = "https://slsa.dev/provenance/v1"

	// ScanBuildType identifies a scanseal security scan in buildDefinition
	ScanBuildType = "https://scanseal.dev/buildtypes/scan/v1"
)

// Tool is a scanner with an optional resolved version
type Tool struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// Statement is the parsed form of an attestation document. It is read-only
// after creation; Signer, Verifier, and TamperDetector only inspect it.
type Statement struct {
	Type          string    `json:"_type"`
	Subject       []Subject `json:"subject"`
	PredicateType string    `json:"predicateType"`
	Predicate     Predicate `json:"predicate"`
}

// Subject names an artifact and its digests, keyed by hash algorithm name.
// Multiple algorithms may be present simultaneously.
type Subject struct {
	Name   string            `json:"name"`
	Digest map[string]string `json:"digest"`
}

type Predicate struct {
	BuildDefinition *BuildDefinition `json:"buildDefinition,omitempty"`
	RunDetails      *RunDetails      `json:"runDetails,omitempty"`
}

type BuildDefinition struct {
	BuildType            string         `json:"buildType,omitempty"`
	ExternalParameters   map[string]any `json:"externalParameters,omitempty"`
	ResolvedDependencies []Tool         `json:"resolvedDependencies,omitempty"`
}

type RunDetails struct {
	Builder  *Builder       `json:"builder,omitempty"`
	Metadata *BuildMetadata `json:"metadata,omitempty"`
}

type Builder struct {
	ID      string `json:"id"`
	Version string `json:"version,omitempty"`
}

// BuildMetadata carries the invocation identity and the timestamps
// bracketing statement generation, formatted as RFC 3339.
type BuildMetadata struct {
	InvocationID string `json:"invocationId,omitempty"`
	StartedOn    string `json:"startedOn,omitempty"`
	FinishedOn   string `json:"finishedOn,omitempty"`
}

// LoadStatement reads and parses an attestation document from disk
func LoadStatement(path string) (*Statement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read attestation: %w", err)
	}

	var statement Statement
	if err := json.Unmarshal(data, &statement); err != nil {
		return nil, fmt.Errorf("failed to parse attestation: %w", err)
	}

	return &statement, nil
}

// FirstSubject returns the statement's first subject, or nil when the
// subject list is empty
func (s *Statement) FirstSubject() *Subject {
	if len(s.Subject) == 0 {
		return nil
	}
	return &s.Subject[0]
}
