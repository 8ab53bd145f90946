// ABOUTME: Statement serialization using in-toto attestation primitives
// ABOUTME: Marshals statements through the official protos and writes attestation files atomically
package provenance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	v1 "github.com/in-toto/attestation/go/v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Marshal serializes a statement through the in-toto Statement proto so the
// document shape stays aligned with the upstream schema.
func Marshal(statement *Statement) ([]byte, error) {
	predicateJSON, err := json.Marshal(statement.Predicate)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal predicate: %w", err)
	}

	var predicateMap map[string]any
	if err := json.Unmarshal(predicateJSON, &predicateMap); err != nil {
		return nil, fmt.Errorf("failed to normalize predicate: %w", err)
	}

	predicate, err := structpb.NewStruct(predicateMap)
	if err != nil {
		return nil, fmt.Errorf("failed to build predicate struct: %w", err)
	}

	subjects := make([]*v1.ResourceDescriptor, 0, len(statement.Subject))
	for _, subject := range statement.Subject {
		subjects = append(subjects, &v1.ResourceDescriptor{
			Name:   subject.Name,
			Digest: subject.Digest,
		})
	}

	pb := &v1.Statement{
		Type:          statement.Type,
		Subject:       subjects,
		PredicateType: statement.PredicateType,
		Predicate:     predicate,
	}

	if err := pb.Validate(); err != nil {
		return nil, fmt.Errorf("statement failed in-toto validation: %w", err)
	}

	data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(pb)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal statement: %w", err)
	}

	return data, nil
}

// WriteFile marshals the statement and writes it atomically: the document is
// staged in a temp file and renamed into place so consumers never observe a
// partial attestation.
func WriteFile(statement *Statement, path string) error {
	data, err := Marshal(statement)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".attestation-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp attestation file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write attestation: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close attestation file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move attestation into place: %w", err)
	}

	return nil
}
