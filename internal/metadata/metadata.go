// ABOUTME: Scan and CI metadata capture feeding provenance construction
// ABOUTME: Produces flat key/value maps from scan arguments and CI environment signals
package metadata

import (
	"os"

	"github.com/scanseal/scanseal/internal/cienv"
)

// ScanArgs carries the scan parameters supplied by the orchestrating scan
// pipeline. Nil pointer and empty slice fields were not supplied and
// contribute no keys.
type ScanArgs struct {
	Profile      *string
	Tools        []string
	Repositories []string
	Images       []string
	URLs         []string
	Threads      *int
	Timeout      *int

	// Extra pairs are merged in verbatim and may overwrite standard keys
	Extra map[string]any
}

// FromScanArgs flattens scan arguments into a metadata map. Only keys whose
// arguments were actually supplied appear; profile is duplicated under
// profile_name for downstream compatibility.
func FromScanArgs(args ScanArgs) map[string]any {
	meta := make(map[string]any)

	if args.Profile != nil {
		meta["profile"] = *args.Profile
		meta["profile_name"] = *args.Profile
	}
	if len(args.Tools) > 0 {
		meta["tools"] = args.Tools
	}
	if len(args.Repositories) > 0 {
		meta["repositories"] = args.Repositories
	}
	if len(args.Images) > 0 {
		meta["images"] = args.Images
	}
	if len(args.URLs) > 0 {
		meta["urls"] = args.URLs
	}
	if args.Threads != nil {
		meta["threads"] = *args.Threads
	}
	if args.Timeout != nil {
		meta["timeout"] = *args.Timeout
	}

	for key, value := range args.Extra {
		meta[key] = value
	}

	return meta
}

// CaptureCIMetadata extracts provider-specific fields from the environment.
// Fields whose source signal is absent are dropped rather than set empty.
// Outside CI the map is empty.
func CaptureCIMetadata() map[string]string {
	meta := make(map[string]string)

	switch cienv.Detect() {
	case cienv.ProviderGitHub:
		setIfPresent(meta, "repository", "GITHUB_REPOSITORY")
		setIfPresent(meta, "commit", "GITHUB_SHA")
		setIfPresent(meta, "ref", "GITHUB_REF")
		setIfPresent(meta, "workflow", "GITHUB_WORKFLOW")
		setIfPresent(meta, "run_id", "GITHUB_RUN_ID")
		setIfPresent(meta, "run_number", "GITHUB_RUN_NUMBER")
	case cienv.ProviderGitLab:
		setIfPresent(meta, "repository", "CI_PROJECT_PATH")
		setIfPresent(meta, "commit", "CI_COMMIT_SHA")
		setIfPresent(meta, "ref", "CI_COMMIT_REF_NAME")
		setIfPresent(meta, "pipeline_id", "CI_PIPELINE_ID")
		setIfPresent(meta, "pipeline_url", "CI_PIPELINE_URL")
		setIfPresent(meta, "job_id", "CI_JOB_ID")
		setIfPresent(meta, "job_name", "CI_JOB_NAME")
	case cienv.ProviderGeneric:
		meta["ci_provider"] = "generic"
	case cienv.ProviderLocal:
	}

	return meta
}

func setIfPresent(meta map[string]string, key, envVar string) {
	if value := os.Getenv(envVar); value != "" {
		meta[key] = value
	}
}
