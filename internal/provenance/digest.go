// ABOUTME: Multi-algorithm subject digest computation and recomputation
// ABOUTME: Wraps opencontainers/go-digest for sha256/sha384/sha512 hashing of subject files
package provenance

import (
	// register sha384/sha512 with go-digest
	_ "crypto/sha512"
	"fmt"
	"io"
	"os"

	"github.com/opencontainers/go-digest"
)

// recognizedAlgorithms maps digest map keys to hash implementations. Keys
// outside this set are skipped by the verifier rather than failed.
var recognizedAlgorithms = map[string]digest.Algorithm{
	"sha256": digest.SHA256,
	"sha384": digest.SHA384,
	"sha512": digest.SHA512,
}

// RecognizedAlgorithm resolves a digest map key to a hash algorithm
func RecognizedAlgorithm(name string) (digest.Algorithm, bool) {
	alg, ok := recognizedAlgorithms[name]
	return alg, ok
}

// ComputeDigests hashes the file at path with every requested algorithm in a
// single pass and returns hex digests keyed by algorithm name.
func ComputeDigests(path string, algorithms []digest.Algorithm) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open subject file: %w", err)
	}
	defer file.Close()

	digesters := make(map[string]digest.Digester, len(algorithms))
	writers := make([]io.Writer, 0, len(algorithms))
	for _, alg := range algorithms {
		d := alg.Digester()
		digesters[alg.String()] = d
		writers = append(writers, d.Hash())
	}

	if _, err := io.Copy(io.MultiWriter(writers...), file); err != nil {
		return nil, fmt.Errorf("failed to hash subject file: %w", err)
	}

	digests := make(map[string]string, len(digesters))
	for name, d := range digesters {
		digests[name] = d.Digest().Encoded()
	}

	return digests, nil
}

// RecomputeDigest hashes the file at path with the named algorithm and
// returns the hex digest
func RecomputeDigest(path string, algorithm digest.Algorithm) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open subject file: %w", err)
	}
	defer file.Close()

	d, err := algorithm.FromReader(file)
	if err != nil {
		return "", fmt.Errorf("failed to hash subject file: %w", err)
	}

	return d.Encoded(), nil
}
