// ABOUTME: Signature bundle parsing for cosign-produced sigstore bundles
// ABOUTME: Extracts signature, certificate, and transparency log index via the sigstore protos
package signer

import (
	"encoding/base64"
	"fmt"

	protobundle "github.com/sigstore/protobuf-specs/gen/pb-go/bundle/v1"
	"github.com/sigstore/sigstore-go/pkg/bundle"
)

// BundleInfo is the extracted content of a signature bundle
type BundleInfo struct {
	// Signature and Certificate are base64 encoded
	Signature   string
	Certificate string

	// LogIndex is nil when the bundle has no transparency log entry
	LogIndex *int64
}

// ParseBundle loads a .sigstore.json bundle and extracts its signing
// material
func ParseBundle(path string) (*BundleInfo, error) {
	b, err := bundle.LoadJSONFromPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load bundle: %w", err)
	}

	return extractBundleInfo(b.Bundle)
}

// extractBundleInfo pulls signature, certificate, and log index out of the
// protobuf bundle. A missing transparency log entry is not an error.
func extractBundleInfo(pb *protobundle.Bundle) (*BundleInfo, error) {
	if pb == nil {
		return nil, fmt.Errorf("empty bundle")
	}

	messageSignature := pb.GetMessageSignature()
	if messageSignature == nil || len(messageSignature.GetSignature()) == 0 {
		return nil, fmt.Errorf("bundle has no message signature")
	}

	material := pb.GetVerificationMaterial()
	if material == nil {
		return nil, fmt.Errorf("bundle has no verification material")
	}

	certificate := material.GetCertificate()
	if certificate == nil || len(certificate.GetRawBytes()) == 0 {
		return nil, fmt.Errorf("bundle has no signing certificate")
	}

	info := &BundleInfo{
		Signature:   base64.StdEncoding.EncodeToString(messageSignature.GetSignature()),
		Certificate: base64.StdEncoding.EncodeToString(certificate.GetRawBytes()),
	}

	if entries := material.GetTlogEntries(); len(entries) > 0 {
		logIndex := entries[0].GetLogIndex()
		info.LogIndex = &logIndex
	}

	return info, nil
}
