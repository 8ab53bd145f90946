package provenance

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

func sampleStatement() *Statement {
	return &Statement{
		Type: StatementType,
		Subject: []Subject{{
			Name:   "results.json",
			Digest: map[string]string{"sha256": "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"},
		}},
		PredicateType: SLSAPredicateV1,
		Predicate: Predicate{
			BuildDefinition: &BuildDefinition{
				BuildType: ScanBuildType,
				ExternalParameters: map[string]any{
					"profile": "deep",
				},
				ResolvedDependencies: []Tool{{Name: "trivy", Version: "0.50.0"}},
			},
			RunDetails: &RunDetails{
				Builder: &Builder{ID: "https://github.com/example/app", Version: "0.1.0"},
				Metadata: &BuildMetadata{
					InvocationID: "4242",
					StartedOn:    "2026-08-01T10:00:00Z",
					FinishedOn:   "2026-08-01T10:05:00Z",
				},
			},
		},
	}
}

func TestMarshal(t *testing.T) {
	data, err := Marshal(sampleStatement())
	if err != nil {
		t.Fatalf("failed to marshal statement: %v", err)
	}

	var document map[string]any
	if err := json.Unmarshal(data, &document); err != nil {
		t.Fatalf("marshaled statement is not valid JSON: %v", err)
	}

	if document["_type"] != StatementType {
		t.Errorf("expected _type %s, got %v", StatementType, document["_type"])
	}
	if document["predicateType"] != SLSAPredicateV1 {
		t.Errorf("expected predicateType %s, got %v", SLSAPredicateV1, document["predicateType"])
	}

	subjects, ok := document["subject"].([]any)
	if !ok || len(subjects) != 1 {
		t.Fatalf("expected one subject, got %v", document["subject"])
	}
}

func TestMarshalRejectsIncompleteStatement(t *testing.T) {
	statement := sampleStatement()
	statement.Subject = nil

	if _, err := Marshal(statement); err == nil {
		t.Error("expected validation error for statement without subjects")
	}
}

func TestWriteFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json.attestation.json")

	original := sampleStatement()
	if err := WriteFile(original, path); err != nil {
		t.Fatalf("failed to write attestation: %v", err)
	}

	loaded, err := LoadStatement(path)
	if err != nil {
		t.Fatalf("failed to load attestation: %v", err)
	}

	if loaded.Type != original.Type {
		t.Errorf("expected _type %s, got %s", original.Type, loaded.Type)
	}
	if loaded.FirstSubject().Digest["sha256"] != original.Subject[0].Digest["sha256"] {
		t.Error("subject digest did not round-trip")
	}
	if loaded.Predicate.RunDetails.Builder.ID != original.Predicate.RunDetails.Builder.ID {
		t.Error("builder id did not round-trip")
	}
	if loaded.Predicate.BuildDefinition.ExternalParameters["profile"] != "deep" {
		t.Error("external parameters did not round-trip")
	}
	if len(loaded.Predicate.BuildDefinition.ResolvedDependencies) != 1 {
		t.Error("resolved dependencies did not round-trip")
	}
}

func TestLoadStatementErrors(t *testing.T) {
	if _, err := LoadStatement(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected error for missing attestation")
	}

	path := writeSubject(t, "{not json")
	if _, err := LoadStatement(path); err == nil {
		t.Error("expected error for malformed attestation")
	}
}
